package chat

import (
	"context"
	"sort"
	"strings"

	"whatschat/models"
)

// GetMessages returns the conversation between userID and peerID, oldest
// first. If peerID names a group, userID must be one of its members.
func (e *Engine) GetMessages(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if g, ok := snap.Group(peerID); ok && !g.HasMember(userID) {
		return nil, ErrNotGroupMember
	}
	return conversation(snap, userID, peerID), nil
}

func conversation(snap *models.Snapshot, userID, peerID string) []models.Message {
	_, isGroup := snap.Group(peerID)

	var out []models.Message
	for _, m := range snap.Messages {
		if isGroup {
			if m.GroupID == peerID {
				out = append(out, m)
			}
			continue
		}
		if m.IsGroup() {
			continue
		}
		if (m.SenderID == userID && m.ReceiverID == peerID) ||
			(m.SenderID == peerID && m.ReceiverID == userID) {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// SendMessage appends a sent message from senderID to a user or a group.
func (e *Engine) SendMessage(ctx context.Context, senderID, receiverID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}

	var msg models.Message
	err := e.mutateAndNotify(ctx, "send message", func(snap *models.Snapshot) (bool, error) {
		if _, ok := snap.User(senderID); !ok {
			return false, ErrUserNotFound
		}

		msg = models.Message{
			ID:        e.id("m_"),
			SenderID:  senderID,
			Text:      text,
			Timestamp: e.timestamp(),
			Status:    models.StatusSent,
		}

		if g, ok := snap.Group(receiverID); ok {
			if !g.HasMember(senderID) {
				return false, ErrNotGroupMember
			}
			msg.GroupID = g.ID
			g.LastMessage = text
			ts := msg.Timestamp
			g.LastMessageTime = &ts
		} else if _, ok := snap.User(receiverID); ok {
			msg.ReceiverID = receiverID
		} else {
			return false, ErrUserNotFound
		}

		snap.Messages = append(snap.Messages, msg)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkAsRead marks everything peerID sent to userID as read. For a group it
// records userID as a reader of every message from other members. Calling it
// again with nothing unread writes nothing.
func (e *Engine) MarkAsRead(ctx context.Context, userID, peerID string) error {
	return e.mutateAndNotify(ctx, "mark as read", func(snap *models.Snapshot) (bool, error) {
		if g, ok := snap.Group(peerID); ok {
			if !g.HasMember(userID) {
				return false, ErrNotGroupMember
			}
			return markGroupRead(snap, g, userID), nil
		}

		changed := false
		for i := range snap.Messages {
			m := &snap.Messages[i]
			if m.IsGroup() || m.SenderID != peerID || m.ReceiverID != userID {
				continue
			}
			if next := m.Status.Advance(models.StatusRead); next != m.Status {
				m.Status = next
				changed = true
			}
		}
		return changed, nil
	})
}

func markGroupRead(snap *models.Snapshot, g *models.Group, userID string) bool {
	changed := false
	for i := range snap.Messages {
		m := &snap.Messages[i]
		if m.GroupID != g.ID || m.SenderID == userID || m.HasReadBy(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		changed = true
	}
	if refreshGroupStatus(snap, g) {
		changed = true
	}
	return changed
}

// refreshGroupStatus marks group messages read once every current member
// other than the sender has read them.
func refreshGroupStatus(snap *models.Snapshot, g *models.Group) bool {
	changed := false
	for i := range snap.Messages {
		m := &snap.Messages[i]
		if m.GroupID != g.ID || m.Status == models.StatusRead {
			continue
		}
		readByAll := true
		for _, member := range g.MemberIDs {
			if member != m.SenderID && !m.HasReadBy(member) {
				readByAll = false
				break
			}
		}
		if readByAll {
			m.Status = m.Status.Advance(models.StatusRead)
			changed = true
		}
	}
	return changed
}

// MarkDelivered advances every sent message addressed to userID, directly
// or through one of its groups, to delivered.
func (e *Engine) MarkDelivered(ctx context.Context, userID string) error {
	return e.mutateAndNotify(ctx, "mark delivered", func(snap *models.Snapshot) (bool, error) {
		changed := false
		for i := range snap.Messages {
			m := &snap.Messages[i]
			if m.Status != models.StatusSent || m.SenderID == userID {
				continue
			}
			if m.IsGroup() {
				g, ok := snap.Group(m.GroupID)
				if !ok || !g.HasMember(userID) {
					continue
				}
			} else if m.ReceiverID != userID {
				continue
			}
			m.Status = m.Status.Advance(models.StatusDelivered)
			changed = true
		}
		return changed, nil
	})
}
