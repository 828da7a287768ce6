package model

import "time"

// Status tracks the delivery state of a locally sent message.
type Status int

const (
	StatusSent Status = iota
	StatusPending
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "sent"
	}
}

// Message is a single chat message, used for REST payloads and socket events.
type Message struct {
	ID         ID        `json:"id"`
	ClientID   string    `json:"clientId,omitempty"`
	SenderID   ID        `json:"senderId"`
	ReceiverID ID        `json:"receiverId"`
	RoomID     string    `json:"roomId,omitempty"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`

	// Status is client-side only.
	Status Status `json:"-"`
}

// Between reports whether the message was exchanged by a and b, in either
// direction.
func (m Message) Between(a, b ID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// OutboundMessage is the sendMessage payload emitted over the socket.
type OutboundMessage struct {
	RoomID     string    `json:"roomId,omitempty"`
	Message    string    `json:"message"`
	SenderID   ID        `json:"senderId"`
	ReceiverID ID        `json:"receiverId"`
	CreatedAt  time.Time `json:"createdAt"`
	ClientID   string    `json:"clientId,omitempty"`
}

// TypingEvent is exchanged over the socket in both directions.
type TypingEvent struct {
	ConversationID ID   `json:"conversationId"`
	IsTyping       bool `json:"isTyping"`
}

// Presence maps user ids to their online state.
type Presence map[ID]bool
