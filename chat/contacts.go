package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"whatschat/models"
)

// GetContacts returns the viewer's direct contacts and groups, most recent
// conversation first. Conversations without messages come last, in
// adjacency order followed by group order.
func (e *Engine) GetContacts(ctx context.Context, userID string) ([]models.Contact, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.User(userID); !ok {
		return nil, ErrUserNotFound
	}
	views := contactViews(snap, userID)
	if e.presence != nil {
		e.markPresence(ctx, views)
	}
	return views, nil
}

// markPresence sets Status on direct contacts. When presence is unknown the
// views are left as they are.
func (e *Engine) markPresence(ctx context.Context, views []models.Contact) {
	online, err := e.presence(ctx)
	if err != nil {
		e.logger.Debug("presence unavailable", zap.Error(err))
		return
	}
	connected := make(map[string]bool, len(online))
	for _, id := range online {
		connected[id] = true
	}
	for i := range views {
		if views[i].IsGroup {
			continue
		}
		views[i].Status = models.PresenceOffline
		if connected[views[i].ID] {
			views[i].Status = models.PresenceOnline
		}
	}
}

type summary struct {
	last   *models.Message
	unread int
}

// contactViews derives the contact list of userID from snap.
func contactViews(snap *models.Snapshot, userID string) []models.Contact {
	summaries := make(map[string]*summary)
	touch := func(key string) *summary {
		s, ok := summaries[key]
		if !ok {
			s = &summary{}
			summaries[key] = s
		}
		return s
	}

	for i := range snap.Messages {
		m := &snap.Messages[i]

		var s *summary
		switch {
		case m.IsGroup():
			g, ok := snap.Group(m.GroupID)
			if !ok || !g.HasMember(userID) {
				continue
			}
			s = touch(m.GroupID)
			if m.SenderID != userID && !m.HasReadBy(userID) {
				s.unread++
			}
		case m.SenderID == userID:
			s = touch(m.ReceiverID)
		case m.ReceiverID == userID:
			s = touch(m.SenderID)
			if m.Status != models.StatusRead {
				s.unread++
			}
		default:
			continue
		}

		// Later insertion wins a timestamp tie.
		if s.last == nil || !m.Timestamp.Before(s.last.Timestamp) {
			s.last = m
		}
	}

	var views []models.Contact
	apply := func(c *models.Contact) {
		s, ok := summaries[c.ID]
		if !ok {
			return
		}
		c.UnreadCount = s.unread
		if s.last != nil {
			c.LastMessage = s.last.Text
			ts := s.last.Timestamp
			c.LastMessageTime = &ts
		}
	}

	for _, id := range snap.Contacts[userID] {
		u, ok := snap.User(id)
		if !ok {
			continue
		}
		c := models.Contact{
			ID:       u.ID,
			Name:     u.Name,
			Username: u.Username,
			Email:    u.Email,
			Avatar:   u.Avatar,
			About:    u.About,
		}
		apply(&c)
		views = append(views, c)
	}

	for _, g := range snap.Groups {
		if !g.HasMember(userID) {
			continue
		}
		c := models.Contact{
			ID:      g.ID,
			Name:    g.Name,
			Avatar:  g.Avatar,
			About:   g.Description,
			IsGroup: true,
		}
		apply(&c)
		views = append(views, c)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return newer(views[i].LastMessageTime, views[j].LastMessageTime)
	})
	return views
}

// newer orders conversations with activity before those without.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

// AddContact links userID and the user matching identifier (an id, or a
// username compared ignoring case) in both directions.
func (e *Engine) AddContact(ctx context.Context, userID, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)

	var added models.User
	err := e.mutateAndNotify(ctx, "add contact", func(snap *models.Snapshot) (bool, error) {
		if _, ok := snap.User(userID); !ok {
			return false, ErrUserNotFound
		}

		target := findUser(snap, identifier)
		if target == nil {
			return false, ErrUserNotFound
		}
		if target.ID == userID {
			return false, ErrSelfContact
		}
		if contains(snap.Contacts[userID], target.ID) {
			return false, ErrAlreadyContact
		}

		if snap.Contacts == nil {
			snap.Contacts = make(map[string][]string)
		}
		snap.Contacts[userID] = append(snap.Contacts[userID], target.ID)
		if !contains(snap.Contacts[target.ID], userID) {
			snap.Contacts[target.ID] = append(snap.Contacts[target.ID], userID)
		}
		added = *target
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// RemoveContact unlinks both directions.
func (e *Engine) RemoveContact(ctx context.Context, userID, contactID string) error {
	return e.mutateAndNotify(ctx, "remove contact", func(snap *models.Snapshot) (bool, error) {
		if !contains(snap.Contacts[userID], contactID) {
			return false, ErrContactNotFound
		}
		snap.Contacts[userID] = without(snap.Contacts[userID], contactID)
		if list, ok := snap.Contacts[contactID]; ok {
			snap.Contacts[contactID] = without(list, userID)
		}
		return true, nil
	})
}

func findUser(snap *models.Snapshot, identifier string) *models.User {
	if identifier == "" {
		return nil
	}
	if u, ok := snap.User(identifier); ok {
		return u
	}
	for i := range snap.Users {
		if foldEqual(snap.Users[i].Username, identifier) {
			return &snap.Users[i]
		}
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
