package protocol

import (
	"encoding/json"
	"fmt"
)

// ChannelName identifies the realtime channel shared by every context of
// one application instance.
const ChannelName = "whatschat_realtime"

// Kind discriminates realtime events.
type Kind string

const (
	KindUpdate Kind = TypeUpdate
	KindTyping Kind = TypeTyping
)

// Event is a realtime bus payload. The set of implementations is closed:
// Update and Typing.
type Event interface {
	Kind() Kind
	isEvent()
}

// Update tells receivers the shared store changed and they should re-read
// it. It carries no data.
type Update struct{}

func (Update) Kind() Kind { return KindUpdate }
func (Update) isEvent()   {}

// Typing is ephemeral presence for one conversation. Only the context whose
// local user is ReceiverID acts on it.
type Typing struct {
	SenderID   string
	ReceiverID string
	IsTyping   bool
}

func (Typing) Kind() Kind { return KindTyping }
func (Typing) isEvent()   {}

// FormatEvent encodes an event as a relay line.
func FormatEvent(ev Event) (string, error) {
	switch e := ev.(type) {
	case Update:
		return FormatPacket(TypeUpdate), nil
	case Typing:
		state := "0"
		if e.IsTyping {
			state = "1"
		}
		return FormatPacket(TypeTyping, e.SenderID, e.ReceiverID, state), nil
	default:
		return "", fmt.Errorf("unsupported event %T", ev)
	}
}

// PacketEvent decodes a relay packet carrying an event. ok is false for
// packets that are not events (ping, hello, ...).
func PacketEvent(pkt *Packet) (ev Event, ok bool, err error) {
	switch pkt.Type {
	case TypeUpdate:
		return Update{}, true, nil
	case TypeTyping:
		if len(pkt.Fields) < 3 || pkt.Field(0) == "" || pkt.Field(1) == "" {
			return nil, true, ErrInvalidPacket
		}
		var typing bool
		switch pkt.Field(2) {
		case "1":
			typing = true
		case "0":
		default:
			return nil, true, ErrInvalidPacket
		}
		return Typing{SenderID: pkt.Field(0), ReceiverID: pkt.Field(1), IsTyping: typing}, true, nil
	default:
		return nil, false, nil
	}
}

type wireTyping struct {
	Type       Kind   `json:"type"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

type wireUpdate struct {
	Type Kind `json:"type"`
}

// MarshalEvent encodes an event in the JSON shape used by websocket
// contexts: {"type":"update"} or {"type":"typing",...}.
func MarshalEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case Update:
		return json.Marshal(wireUpdate{Type: KindUpdate})
	case Typing:
		return json.Marshal(wireTyping{
			Type:       KindTyping,
			SenderID:   e.SenderID,
			ReceiverID: e.ReceiverID,
			IsTyping:   e.IsTyping,
		})
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
}

// UnmarshalEvent decodes the JSON shape produced by MarshalEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var w wireTyping
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}

	switch w.Type {
	case KindUpdate:
		return Update{}, nil
	case KindTyping:
		if w.SenderID == "" || w.ReceiverID == "" {
			return nil, ErrInvalidPacket
		}
		return Typing{SenderID: w.SenderID, ReceiverID: w.ReceiverID, IsTyping: w.IsTyping}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidPacket, w.Type)
	}
}
