package db

import (
	"bytes"
	"encoding/json"
	"fmt"

	"whatschat/models"
)

// record mirrors models.Snapshot with pointer fields so that a missing
// section can be told apart from an empty one.
type record struct {
	Users    *[]models.User       `json:"users"`
	Messages *[]models.Message    `json:"messages"`
	Contacts *map[string][]string `json:"contacts"`
	Groups   *[]models.Group      `json:"groups"`
}

// Encode serializes snap. It normalizes snap in place first: nil sections
// become empty and timestamps are converted to UTC, so the caller's value
// stays deep-equal to what a later Decode returns.
func Encode(snap *models.Snapshot) ([]byte, error) {
	normalize(snap)

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a persisted snapshot. Any failure is reported as ErrCorrupt.
func Decode(data []byte) (*models.Snapshot, error) {
	var rec record
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after snapshot", ErrCorrupt)
	}

	if rec.Users == nil {
		return nil, fmt.Errorf("%w: missing users", ErrCorrupt)
	}
	if rec.Messages == nil {
		return nil, fmt.Errorf("%w: missing messages", ErrCorrupt)
	}
	if rec.Contacts == nil {
		return nil, fmt.Errorf("%w: missing contacts", ErrCorrupt)
	}

	snap := &models.Snapshot{
		Users:    *rec.Users,
		Messages: *rec.Messages,
		Contacts: *rec.Contacts,
		Groups:   []models.Group{},
	}
	// Snapshots written before groups existed have no groups section.
	if rec.Groups != nil {
		snap.Groups = *rec.Groups
	}

	if err := validate(snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snap, nil
}

func normalize(snap *models.Snapshot) {
	if snap.Users == nil {
		snap.Users = []models.User{}
	}
	if snap.Messages == nil {
		snap.Messages = []models.Message{}
	}
	if snap.Contacts == nil {
		snap.Contacts = map[string][]string{}
	}
	if snap.Groups == nil {
		snap.Groups = []models.Group{}
	}

	for i := range snap.Messages {
		snap.Messages[i].Timestamp = snap.Messages[i].Timestamp.UTC()
	}
	for i := range snap.Groups {
		g := &snap.Groups[i]
		g.CreatedAt = g.CreatedAt.UTC()
		if g.LastMessageTime != nil {
			t := g.LastMessageTime.UTC()
			g.LastMessageTime = &t
		}
	}
}

func validate(snap *models.Snapshot) error {
	users := make(map[string]struct{}, len(snap.Users))
	for _, u := range snap.Users {
		if u.ID == "" {
			return fmt.Errorf("user without id")
		}
		if _, dup := users[u.ID]; dup {
			return fmt.Errorf("duplicate user id %q", u.ID)
		}
		users[u.ID] = struct{}{}
	}

	for _, m := range snap.Messages {
		if m.ID == "" {
			return fmt.Errorf("message without id")
		}
		if (m.ReceiverID == "") == (m.GroupID == "") {
			return fmt.Errorf("message %q must have exactly one of receiverId and groupId", m.ID)
		}
		if !m.Status.Valid() {
			return fmt.Errorf("message %q has unknown status %q", m.ID, m.Status)
		}
	}

	for _, g := range snap.Groups {
		if g.ID == "" {
			return fmt.Errorf("group without id")
		}
	}
	return nil
}
