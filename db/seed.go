package db

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"whatschat/models"
)

const seedPassword = "password123"

var seedHash struct {
	once sync.Once
	hash string
	err  error
}

// Seed returns the initial snapshot used when the store is empty: three
// users, no messages, no groups and a fixed contact graph.
func Seed() (*models.Snapshot, error) {
	seedHash.once.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
		seedHash.hash, seedHash.err = string(h), err
	})
	if seedHash.err != nil {
		return nil, fmt.Errorf("seed: hash password: %w", seedHash.err)
	}

	return &models.Snapshot{
		Users: []models.User{
			{
				ID:           "user_1",
				Name:         "Sofia Martinez",
				Username:     "sofia_m",
				Email:        "sofia@gmail.com",
				PasswordHash: seedHash.hash,
				Avatar:       "Sofia",
			},
			{
				ID:           "user_2",
				Name:         "Alex Johnson",
				Username:     "tech_alex",
				Email:        "alex@gmail.com",
				PasswordHash: seedHash.hash,
				Avatar:       "Alex",
			},
			{
				ID:           "user_3",
				Name:         "Grandma",
				Username:     "granny_love",
				Email:        "grandma@gmail.com",
				PasswordHash: seedHash.hash,
				Avatar:       "Grandma",
			},
		},
		Messages: []models.Message{},
		Contacts: map[string][]string{
			"user_1": {"user_2", "user_3"},
			"user_2": {"user_1"},
			"user_3": {"user_1"},
		},
		Groups: []models.Group{},
	}, nil
}
