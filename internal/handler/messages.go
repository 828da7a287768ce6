package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"

	viewChat "github.com/johndosdos/venuechat/components/chat"
	"github.com/johndosdos/venuechat/internal/chat"
	ws "github.com/johndosdos/venuechat/internal/websocket"
)

// ServeSendMessage sends the "message" form field to the active conversation
// and renders the updated transcript.
func ServeSendMessage(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		s, ok := session(w, r, hub)
		if !ok {
			return
		}

		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		components := []templ.Component{}
		err := s.Send(ctx, r.PostForm.Get("message"))
		switch {
		case errors.Is(err, chat.ErrNoConversation):
			components = append(components, viewChat.Toast(chat.Notification{
				Level: chat.LevelInfo,
				Text:  "Select a user to chat",
			}))
		case err != nil:
			slog.DebugContext(ctx, "send failed", "error", err)
		}

		if err := s.Typing(ctx, false); err != nil {
			slog.DebugContext(ctx, "failed to clear typing", "error", err)
		}

		v := viewChat.PanelFor(s)
		render(w, r, append([]templ.Component{viewChat.Transcript(v, false)}, components...)...)
	}
}

// ServeTyping relays the user's typing state. The "typing" form field
// defaults to true.
func ServeTyping(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		s, ok := session(w, r, hub)
		if !ok {
			return
		}

		typing := true
		if v := r.FormValue("typing"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "invalid typing value", http.StatusBadRequest)
				return
			}
			typing = b
		}

		if err := s.Typing(ctx, typing); err != nil {
			slog.DebugContext(ctx, "failed to send typing", "error", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
