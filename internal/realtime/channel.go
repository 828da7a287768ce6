// Package realtime is the client side of the backend socket: one connection
// per chat session carrying JSON event envelopes in both directions.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/johndosdos/venuechat/internal/metrics"
	"github.com/johndosdos/venuechat/internal/model"
)

const (
	EventNewMessage  = "newMessage"
	EventTyping      = "typing"
	EventOnlineUsers = "onlineUsers"
	EventJoinRoom    = "joinRoom"
	EventSendMessage = "sendMessage"

	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

var (
	ErrNotConnected = errors.New("internal/realtime: not connected")
	ErrClosed       = errors.New("internal/realtime: channel closed")
)

// Handler receives inbound events and connection changes. Calls are made
// from a single goroutine, one at a time.
type Handler interface {
	OnNewMessage(m model.Message)
	OnTyping(ev model.TypingEvent)
	OnOnlineUsers(p model.Presence)
	// OnConnectionChange is called with a non-nil err once the channel has
	// given up reconnecting.
	OnConnectionChange(connected bool, err error)
}

type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "connecting"
	}
}

type Config struct {
	URL        string
	MaxRetries uint64
	RetryDelay time.Duration
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Channel is a self-healing socket connection. Dropped connections are
// redialled with a fixed delay until the retry budget runs out; rooms joined
// earlier are joined again on every new connection.
type Channel struct {
	cfg      Config
	identity model.Identity
	handler  Handler
	state    atomic.Int32

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	conn  *websocket.Conn
	rooms []string
}

// Open starts connecting in the background and returns immediately.
func Open(cfg Config, id model.Identity, h Handler) *Channel {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:      cfg,
		identity: id,
		handler:  h,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	go c.run()
	return c
}

func (c *Channel) State() State { return State(c.state.Load()) }

// JoinRoom subscribes to roomID now if connected, and after every reconnect.
func (c *Channel) JoinRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	if !slices.Contains(c.rooms, roomID) {
		c.rooms = append(c.rooms, roomID)
	}
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.emit(ctx, EventJoinRoom, roomID)
}

func (c *Channel) SendMessage(ctx context.Context, msg model.OutboundMessage) error {
	return c.emit(ctx, EventSendMessage, msg)
}

func (c *Channel) SendTyping(ctx context.Context, ev model.TypingEvent) error {
	return c.emit(ctx, EventTyping, ev)
}

// Close disconnects and stops reconnecting. It can be called any number of
// times, in any state.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "closing")
		}

		<-c.done
		c.state.Store(int32(StateClosed))
	})
	return nil
}

func (c *Channel) run() {
	defer close(c.done)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.IncRealtimeReconnect()
		}

		conn, err := c.connect(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.state.Store(int32(StateDisconnected))
			slog.Warn("realtime channel giving up",
				"user_id", c.identity.UserID,
				"retries", c.cfg.MaxRetries,
				"error", err)
			c.handler.OnConnectionChange(false, err)
			return
		}

		c.install(conn)
		err = c.read(conn)
		c.uninstall(conn)

		if c.ctx.Err() != nil {
			return
		}
		slog.Warn("realtime connection lost",
			"user_id", c.identity.UserID,
			"error", err)
		c.state.Store(int32(StateConnecting))
		c.handler.OnConnectionChange(false, nil)
	}
}

func (c *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("internal/realtime: invalid socket url: %w", err)
	}
	q := u.Query()
	q.Set("userId", c.identity.UserID.String())
	q.Set("token", c.identity.Token)
	u.RawQuery = q.Encode()

	var conn *websocket.Conn
	b := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewConstant(c.cfg.RetryDelay))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		var err error
		conn, _, err = websocket.Dial(dialCtx, u.String(), nil)
		if err != nil {
			slog.Debug("realtime dial failed", "user_id", c.identity.UserID, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("internal/realtime: dial: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// install makes conn the active connection and replays room joins.
func (c *Channel) install(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	rooms := slices.Clone(c.rooms)
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	metrics.IncRealtimeConn()

	for _, room := range rooms {
		if err := c.emit(c.ctx, EventJoinRoom, room); err != nil {
			slog.Warn("failed to rejoin room", "room", room, "error", err)
		}
	}
	c.handler.OnConnectionChange(true, nil)
}

func (c *Channel) uninstall(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	conn.CloseNow()
	metrics.DecRealtimeConn()
}

func (c *Channel) read(conn *websocket.Conn) error {
	for {
		_, p, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(p, &env); err != nil {
			slog.Warn("malformed realtime frame", "error", err)
			continue
		}
		metrics.IncRealtimeEvent("in", env.Event)

		if err := c.dispatch(env); err != nil {
			slog.Warn("failed to decode realtime event", "event", env.Event, "error", err)
		}
	}
}

func (c *Channel) dispatch(env envelope) error {
	switch env.Event {
	case EventNewMessage:
		var m model.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return err
		}
		c.handler.OnNewMessage(m)

	case EventTyping:
		var ev model.TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return err
		}
		c.handler.OnTyping(ev)

	case EventOnlineUsers:
		p, err := decodePresence(env.Data)
		if err != nil {
			return err
		}
		c.handler.OnOnlineUsers(p)

	default:
		slog.Debug("ignored realtime event", "event", env.Event)
	}
	return nil
}

func (c *Channel) emit(ctx context.Context, event string, data any) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("internal/realtime: encode %s: %w", event, err)
	}
	frame, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("internal/realtime: encode %s: %w", event, err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("internal/realtime: write %s: %w", event, err)
	}
	metrics.IncRealtimeEvent("out", event)
	return nil
}

// decodePresence reads the {userId: value} roster. A user counts as online
// unless the value is false, null, zero or an empty string.
func decodePresence(data json.RawMessage) (model.Presence, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	p := make(model.Presence, len(raw))
	for id, v := range raw {
		switch string(v) {
		case "false", "null", `""`, "0":
			p[model.ID(id)] = false
		default:
			p[model.ID(id)] = true
		}
	}
	return p, nil
}
