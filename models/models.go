package models

import "time"

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	Avatar       string `json:"avatar"`
	About        string `json:"about,omitempty"`
}

// MessageStatus is the delivery state of a message. It only moves forward:
// sent, then delivered, then read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses; unknown values rank below sent.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

func (s MessageStatus) Valid() bool {
	return s.Rank() > 0
}

// Advance returns the later of s and to. A status never regresses.
func (s MessageStatus) Advance(to MessageStatus) MessageStatus {
	if to.Rank() > s.Rank() {
		return to
	}
	return s
}

type Message struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId,omitempty"`
	GroupID    string        `json:"groupId,omitempty"`
	Text       string        `json:"text"`
	Timestamp  time.Time     `json:"timestamp"`
	Status     MessageStatus `json:"status"`
	ReadBy     []string      `json:"readBy,omitempty"` // group messages only
}

func (m Message) IsGroup() bool {
	return m.GroupID != ""
}

// HasReadBy reports whether userID has read a group message.
func (m Message) HasReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

type Group struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Avatar          string     `json:"avatar,omitempty"`
	MemberIDs       []string   `json:"memberIds"`
	AdminID         string     `json:"adminId"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastMessage     string     `json:"lastMessage,omitempty"`
	LastMessageTime *time.Time `json:"lastMessageTime,omitempty"`
}

func (g Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Snapshot is the full persisted state shared by every context.
// Version is the store revision the snapshot was read at; it is not part of
// the serialized record.
type Snapshot struct {
	Users    []User              `json:"users"`
	Messages []Message           `json:"messages"`
	Contacts map[string][]string `json:"contacts"`
	Groups   []Group             `json:"groups"`

	Version int64 `json:"-"`
}

func (s *Snapshot) User(id string) (*User, bool) {
	for i := range s.Users {
		if s.Users[i].ID == id {
			return &s.Users[i], true
		}
	}
	return nil, false
}

func (s *Snapshot) Group(id string) (*Group, bool) {
	for i := range s.Groups {
		if s.Groups[i].ID == id {
			return &s.Groups[i], true
		}
	}
	return nil, false
}

// Presence of a direct contact as shown in a contact view. Groups have none.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Contact is the per-viewer summary of one conversation. It is derived from
// the snapshot on every read and never stored.
type Contact struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Username        string     `json:"username,omitempty"`
	Email           string     `json:"email,omitempty"`
	Avatar          string     `json:"avatar"`
	About           string     `json:"about,omitempty"`
	LastMessage     string     `json:"lastMessage,omitempty"`
	LastMessageTime *time.Time `json:"lastMessageTime,omitempty"`
	UnreadCount     int        `json:"unreadCount"`
	IsGroup         bool       `json:"isGroup,omitempty"`
	// Status is PresenceOnline or PresenceOffline when the engine knows
	// who is connected, empty otherwise.
	Status string `json:"status,omitempty"`
}
