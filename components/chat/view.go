// Package chat holds the templ components of the chat view. Every fragment
// the server swaps in, over HTTP or the browser websocket, is rendered here.
//
// Edit the .templ files and run `templ generate`; the _templ.go files are
// generated from them.
package chat

import (
	"net/url"

	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/model"
)

//go:generate templ generate

// Element ids shared by the page and the fragments swapped into it.
const (
	IDPanel        = "chat-panel"
	IDTranscript   = "transcript"
	IDTyping       = "typing-indicator"
	IDList         = "conversation-list"
	IDSearch       = "conversation-search"
	IDRefresh      = "conversation-refresh"
	IDToasts       = "toasts"
	IDConnection   = "connection-banner"
	IDMessageInput = "message-input"
)

// PanelView is everything the main panel needs to render.
type PanelView struct {
	Me           model.ID
	State        chat.PanelState
	Conversation *model.Conversation
	Groups       []chat.Group
	IsTyping     bool
}

// PanelFor reads the panel state of a session.
func PanelFor(s *chat.Session) PanelView {
	snap := s.Store().Snapshot()
	return PanelView{
		Me:           s.Identity().UserID,
		State:        snap.State,
		Conversation: snap.Selected,
		Groups:       chat.GroupMessages(snap.Messages, s.GroupThreshold()),
		IsTyping:     snap.IsTyping,
	}
}

func (v PanelView) counterpart() model.Participant {
	if v.Conversation == nil {
		return model.Participant{}
	}
	return v.Conversation.Participant
}

// PageData is the state of a freshly loaded chat page.
type PageData struct {
	Title         string
	Room          string
	Query         string
	Conversations []model.Conversation
	Panel         PanelView
	Connected     bool
}

func (p PageData) title() string {
	if p.Title == "" {
		return "Messages"
	}
	return p.Title
}

func (p PageData) selectedID() model.ID {
	if p.Panel.Conversation == nil {
		return ""
	}
	return p.Panel.Conversation.Participant.ID
}

func (p PageData) socketURL() string {
	if p.Room == "" {
		return "/ws"
	}
	return "/ws?" + url.Values{"room": {p.Room}}.Encode()
}

func selectURL(id model.ID) string {
	return "/chat/conversations/" + url.PathEscape(id.String()) + "/select"
}

func side(mine bool) string {
	if mine {
		return "sent"
	}
	return "received"
}

func initial(name string) string {
	for _, r := range name {
		return string(r)
	}
	return "?"
}
