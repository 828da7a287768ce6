// Package model defines data structure.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID identifies a user or a message. The backend encodes ids either as JSON
// strings or as JSON numbers; both decode to the same ID.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("internal/model: invalid id: %w", err)
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("internal/model: invalid id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Role decides which collection of counterparts a user can chat with.
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
)

// ParseRole defaults to RoleUser for anything that is not an owner.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleOwner)) {
		return RoleOwner
	}
	return RoleUser
}

// Identity is the authenticated user of a chat session.
type Identity struct {
	UserID ID
	Role   Role
	Token  string
}

// Participant is the other party of a conversation.
type Participant struct {
	ID            ID     `json:"id"`
	DisplayName   string `json:"displayName,omitempty"`
	Username      string `json:"username,omitempty"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	VenueImageURL string `json:"venueImage,omitempty"`
}

// Name returns the name shown for the participant.
func (p Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if full := strings.TrimSpace(p.FirstName + " " + p.LastName); full != "" {
		return full
	}
	return p.Username
}

// Avatar falls back to the venue image when the participant has no avatar.
func (p Participant) Avatar() string {
	if p.AvatarURL != "" {
		return p.AvatarURL
	}
	return p.VenueImageURL
}

// Conversation pairs the authenticated user with one participant. It is
// derived on every list load and never persisted.
type Conversation struct {
	Participant    Participant
	LastMessage    string
	LastMessageAgo string
	Online         bool
	Typing         bool
	Unread         bool
}

// LastMessageInfo is one entry of the backend's last-message listing.
type LastMessageInfo struct {
	ParticipantsIDs []ID `json:"participantsIds"`
	LastMessage     struct {
		Message string `json:"message"`
	} `json:"lastMessage"`
	TimeAgo string `json:"timeAgo"`
}

// Involves reports whether id is one of the entry's participants.
func (l LastMessageInfo) Involves(id ID) bool {
	for _, p := range l.ParticipantsIDs {
		if p == id {
			return true
		}
	}
	return false
}
