package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/a-h/templ"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	viewChat "github.com/johndosdos/venuechat/components/chat"
	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/metrics"
)

const (
	writeTimeout = 10 * time.Second
	// pingInterval keeps idle connections alive through proxies.
	pingInterval = 30 * time.Second
)

// Client is one browser websocket. It renders store events of its session as
// out-of-band fragments and forwards typing signals back to the session.
type Client struct {
	ID      uuid.UUID
	session *chat.Session
	conn    *websocket.Conn
	events  <-chan chat.Event
	stop    func()

	// lastState is the panel state the browser currently shows.
	lastState chat.PanelState
}

func NewClient(conn *websocket.Conn, session *chat.Session) *Client {
	events, stop := session.Store().Subscribe()
	return &Client{
		ID:        uuid.New(),
		session:   session,
		conn:      conn,
		events:    events,
		stop:      stop,
		lastState: session.Store().Snapshot().State,
	}
}

// WriteMessage renders and writes to the outgoing websocket stream until ctx
// ends or the subscription is closed.
func (c *Client) WriteMessage(ctx context.Context) {
	metrics.IncBrowserConn()
	defer metrics.DecBrowserConn()

	// The initial page may have been rendered before the realtime channel
	// reported its state.
	c.write(ctx, viewChat.ConnectionBanner(c.connected(), true))

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "browser websocket ping failed", "client_id", c.ID.String(), "error", err)
				c.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}

		case ev, ok := <-c.events:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			for _, content := range c.fragments(ev) {
				c.write(ctx, content)
			}

		case <-ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "context cancelled")
			return
		}
	}
}

// Stop ends the store subscription, which makes WriteMessage return.
func (c *Client) Stop() { c.stop() }

func (c *Client) connected() bool {
	return !c.session.Attached() || c.session.Store().Snapshot().Connected
}

// fragments maps a store event to the components that need re-rendering.
func (c *Client) fragments(ev chat.Event) []templ.Component {
	var out []templ.Component

	if ev.Change.Has(chat.ChangeSelection | chat.ChangeMessages | chat.ChangeTyping) {
		v := viewChat.PanelFor(c.session)
		switch {
		case ev.Change.Has(chat.ChangeSelection) || v.State != c.lastState:
			out = append(out, viewChat.MainPanel(v, true))
		case v.State == chat.Ready:
			if ev.Change.Has(chat.ChangeMessages) {
				out = append(out, viewChat.Transcript(v, true))
			}
			if ev.Change.Has(chat.ChangeTyping) && v.Conversation != nil {
				out = append(out, viewChat.TypingIndicator(v.Conversation.Participant.Name(), v.IsTyping, true))
			}
		}
		c.lastState = v.State
	}
	if ev.Change.Has(chat.ChangeConversations | chat.ChangePresence) {
		out = append(out, viewChat.ConversationsRefresh(true))
	}
	if ev.Change.Has(chat.ChangeConnection) {
		out = append(out, viewChat.ConnectionBanner(c.connected(), true))
	}
	if ev.Change.Has(chat.ChangeNotification) {
		out = append(out, viewChat.Toast(ev.Notification))
	}
	return out
}

func (c *Client) write(ctx context.Context, content templ.Component) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	w, err := c.conn.Writer(writeCtx, websocket.MessageText)
	if err != nil {
		slog.WarnContext(ctx, "failed to return a writer",
			"error", err)
		return
	}

	if err := content.Render(writeCtx, w); err != nil {
		slog.ErrorContext(ctx, "failed to render component",
			"error", err,
			"client_id", c.ID.String(),
			"user_id", c.session.Identity().UserID)
	}
	w.Close()
}
