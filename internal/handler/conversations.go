package handler

import (
	"log"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	viewChat "github.com/johndosdos/venuechat/components/chat"
	"github.com/johndosdos/venuechat/internal/model"
	ws "github.com/johndosdos/venuechat/internal/websocket"
)

// ServeConversations renders the conversation list filtered by ?q=. With
// ?cached=1 the last loaded list is re-rendered without calling the backend.
func ServeConversations(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		s, ok := session(w, r, hub)
		if !ok {
			return
		}

		q := r.URL.Query().Get("q")

		var list []model.Conversation
		if r.URL.Query().Get("cached") == "1" && s.Listed() {
			list = s.ConversationList(q)
		} else {
			list = s.Conversations(ctx, q)
		}

		var selected model.ID
		if sel := s.Store().Selected(); sel != nil {
			selected = sel.Participant.ID
		}

		render(w, r, viewChat.ConversationList(list, selected, false))
	}
}

// ServeSelect opens a conversation and renders the main panel once its
// history is loaded.
func ServeSelect(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		s, ok := session(w, r, hub)
		if !ok {
			return
		}

		participantID := model.ID(chi.URLParam(r, "participantID"))
		if participantID == "" {
			http.Error(w, "missing participant", http.StatusBadRequest)
			return
		}

		// Failures are reported to the user as notifications.
		_ = s.Select(ctx, participantID)

		render(w, r, viewChat.MainPanel(viewChat.PanelFor(s), false))
	}
}

// ServeDeselect closes the active conversation.
func ServeDeselect(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := session(w, r, hub)
		if !ok {
			return
		}

		s.Deselect()

		render(w, r, viewChat.MainPanel(viewChat.PanelFor(s), false))
	}
}

func render(w http.ResponseWriter, r *http.Request, components ...templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	for _, c := range components {
		if err := c.Render(r.Context(), w); err != nil {
			log.Printf("handler: failed to render component: %v", err)
			return
		}
	}
}
