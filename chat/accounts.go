package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"whatschat/models"
)

// DefaultAbout is the about text of a freshly registered user.
const DefaultAbout = "Hey there! I am using WhatsChat."

type RegisterRequest struct {
	Name     string
	Username string
	Email    string
	Password string
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name  *string
	About *string
}

// foldEqual compares with full Unicode case folding.
func foldEqual(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// Register creates a user with an empty contact list. Username and email
// must be unique ignoring case.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), e.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	var user models.User
	err = e.mutateAndNotify(ctx, "register", func(snap *models.Snapshot) (bool, error) {
		for _, u := range snap.Users {
			if foldEqual(u.Username, req.Username) {
				return false, ErrUsernameTaken
			}
			if foldEqual(u.Email, req.Email) {
				return false, ErrEmailTaken
			}
		}

		user = models.User{
			ID:           e.id("u_"),
			Name:         req.Name,
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
			Avatar:       req.Username,
			About:        DefaultAbout,
		}
		snap.Users = append(snap.Users, user)
		if snap.Contacts == nil {
			snap.Contacts = make(map[string][]string)
		}
		snap.Contacts[user.ID] = []string{}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login matches identifier against usernames and emails ignoring case.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)

	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	for _, u := range snap.Users {
		if !foldEqual(u.Username, identifier) && !foldEqual(u.Email, identifier) {
			continue
		}
		err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		user := u
		return &user, nil
	}
	return nil, ErrInvalidCredentials
}

func (e *Engine) GetUser(ctx context.Context, userID string) (*models.User, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := snap.User(userID)
	if !ok {
		return nil, ErrUserNotFound
	}
	user := *u
	return &user, nil
}

// UpdateProfile changes only the supplied fields. A blank name is rejected.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, ErrEmptyName
	}

	var user models.User
	err := e.mutateAndNotify(ctx, "update profile", func(snap *models.Snapshot) (bool, error) {
		u, ok := snap.User(userID)
		if !ok {
			return false, ErrUserNotFound
		}

		changed := false
		if upd.Name != nil && *upd.Name != u.Name {
			u.Name = *upd.Name
			changed = true
		}
		if upd.About != nil && *upd.About != u.About {
			u.About = *upd.About
			changed = true
		}
		user = *u
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveUser finds a user by id or by username ignoring case.
func (e *Engine) ResolveUser(ctx context.Context, identifier string) (*models.User, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	u := findUser(snap, strings.TrimSpace(identifier))
	if u == nil {
		return nil, ErrUserNotFound
	}
	user := *u
	return &user, nil
}
