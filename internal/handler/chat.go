package handler

import (
	"log"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	viewChat "github.com/johndosdos/venuechat/components/chat"
	"github.com/johndosdos/venuechat/internal/auth"
	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/model"
	ws "github.com/johndosdos/venuechat/internal/websocket"
)

// VenueRoom is the realtime room of a venue's chat page.
func VenueRoom(venueID string) string { return "venue:" + venueID }

// ServeChat renders the chat page. Under /venues/{venueID}/chat the page
// also joins the venue's room. A participant query parameter opens that
// conversation right away.
func ServeChat(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		s, ok := session(w, r, hub)
		if !ok {
			return
		}

		page := viewChat.PageData{Query: r.URL.Query().Get("q")}
		if venueID := chi.URLParam(r, "venueID"); venueID != "" {
			page.Room = VenueRoom(venueID)
			page.Title = "Venue chat"
		}

		page.Conversations = s.Conversations(ctx, page.Query)

		if pid := r.URL.Query().Get("participant"); pid != "" {
			if err := s.Select(ctx, model.ID(pid)); err != nil {
				slog.WarnContext(ctx, "failed to open conversation",
					"participant", pid,
					"error", err)
			}
		}

		page.Panel = viewChat.PanelFor(s)
		page.Connected = !s.Attached() || s.Store().Snapshot().Connected

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := viewChat.ChatLayout(page).Render(ctx, w); err != nil {
			log.Printf("handler/chat: failed to render layout: %v", err)
		}
	}
}

// session resolves the session of the authenticated user. It writes a 401
// and returns false when the request carries no identity.
func session(w http.ResponseWriter, r *http.Request, hub *ws.Hub) (*chat.Session, bool) {
	id, err := auth.GetIdentityFromContext(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "request without identity",
			"path", r.URL.Path,
			"error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return hub.Session(id), true
}
