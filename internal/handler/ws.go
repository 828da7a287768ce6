package handler

import (
	"log"
	"net/http"

	"github.com/coder/websocket"

	"github.com/johndosdos/venuechat/internal/auth"
	ws "github.com/johndosdos/venuechat/internal/websocket"
)

// ServeWs handles the client's websocket connection upgrade. The connection
// holds the user's session, and with it the realtime channel, until it
// closes.
func ServeWs(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := auth.GetIdentityFromContext(ctx)
		if err != nil {
			log.Printf("%v", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Printf("failed to accept websocket: %v", err)
			return
		}

		s, release := hub.Acquire(id)
		defer release()

		if room := r.URL.Query().Get("room"); room != "" {
			if err := s.JoinRoom(ctx, room); err != nil {
				log.Printf("failed to join room %s: %v", room, err)
			}
		}

		c := ws.NewClient(conn, s)

		// We block on c.ReadMessage() because the request context will be canceled as soon
		// we return from the ServeWs() handler.
		go c.WriteMessage(ctx)
		c.ReadMessage(ctx)
	}
}
