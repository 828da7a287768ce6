package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"
)

// inbound is what htmx's ws-send posts: the form values plus a HEADERS
// object we ignore.
type inbound struct {
	Type string `json:"type"`
}

// ReadMessage reads the incoming data from the websocket stream until the
// browser goes away.
func (c *Client) ReadMessage(ctx context.Context) {
	defer func() {
		c.Stop()
		c.conn.CloseNow()
	}()

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				slog.WarnContext(ctx, "browser websocket read failed", "client_id", c.ID.String(), "error", err)
			}
			return
		}

		// The app only supports text format for now...
		if msgType != websocket.MessageText {
			continue
		}

		var in inbound
		if err := json.Unmarshal(p, &in); err != nil {
			slog.DebugContext(ctx, "failed to process payload from client", "error", err)
			continue
		}

		switch in.Type {
		case "typing":
			err = c.session.Typing(ctx, true)
		case "stopTyping":
			err = c.session.Typing(ctx, false)
		default:
			continue
		}
		if err != nil {
			slog.DebugContext(ctx, "failed to forward typing", "client_id", c.ID.String(), "error", err)
		}
	}
}
