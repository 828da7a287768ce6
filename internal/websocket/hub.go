package websocket

import (
	"context"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/metrics"
	"github.com/johndosdos/venuechat/internal/model"
	"github.com/johndosdos/venuechat/internal/realtime"
)

// Dialer opens the realtime channel of a session.
type Dialer func(id model.Identity, h realtime.Handler) chat.Channel

// RealtimeDialer dials the backend socket described by cfg.
func RealtimeDialer(cfg realtime.Config) Dialer {
	return func(id model.Identity, h realtime.Handler) chat.Channel {
		return realtime.Open(cfg, id, h)
	}
}

type entry struct {
	session  *chat.Session
	refs     int
	lastSeen time.Time
}

// Hub owns one chat session per user. Browser connections acquire the
// session on mount and release it on unmount; the realtime channel is open
// while at least one connection holds the session.
type Hub struct {
	backend chat.Backend
	dial    Dialer
	opts    chat.Options
	ttl     time.Duration

	mu       sync.Mutex
	sessions map[model.ID]*entry
}

// NewHub returns a new instance of Hub.
func NewHub(b chat.Backend, dial Dialer, opts chat.Options, ttl time.Duration) *Hub {
	return &Hub{
		backend:  b,
		dial:     dial,
		opts:     opts,
		ttl:      ttl,
		sessions: make(map[model.ID]*entry),
	}
}

// Session returns the session of id, creating it on first use. A newer
// token for the same user is adopted by the existing session.
func (h *Hub) Session(id model.Identity) *chat.Session {
	h.mu.Lock()
	e, stale := h.session(id)
	h.mu.Unlock()

	closeChannel(stale)
	return e.session
}

// session returns the entry of id. When the token changed on a session with
// a live channel, the channel is re-dialed and the replaced one is returned
// for the caller to close once h.mu is released.
func (h *Hub) session(id model.Identity) (*entry, chat.Channel) {
	var stale chat.Channel

	e, ok := h.sessions[id.UserID]
	if !ok {
		e = &entry{session: chat.NewSession(id, h.backend, h.opts)}
		h.sessions[id.UserID] = e
		metrics.IncSessions()
	} else if e.session.Reauth(id) && e.session.Attached() {
		stale = e.session.Swap(h.dial(e.session.Identity(), e.session))
	}
	e.lastSeen = time.Now()
	return e, stale
}

// Acquire marks the session of id as in use and opens its realtime channel
// if needed. The returned release func must be called exactly once; extra
// calls are ignored.
func (h *Hub) Acquire(id model.Identity) (*chat.Session, func()) {
	h.mu.Lock()
	e, stale := h.session(id)
	e.refs++
	s := e.session
	if !s.Attached() {
		s.Swap(h.dial(s.Identity(), s))
	}
	h.mu.Unlock()

	closeChannel(stale)

	var once sync.Once
	return s, func() {
		once.Do(func() { h.release(e) })
	}
}

// release detaches the channel of the last holder under h.mu, so a
// concurrent Acquire either sees the old channel or dials a new one.
func (h *Hub) release(e *entry) {
	var ch chat.Channel

	h.mu.Lock()
	e.refs--
	e.lastSeen = time.Now()
	if e.refs == 0 {
		ch = e.session.Detach()
	}
	h.mu.Unlock()

	closeChannel(ch)
}

func closeChannel(ch chat.Channel) {
	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		slog.Warn("failed to close session channel", "error", err)
	}
}

// Run evicts sessions nobody has used for longer than the hub's TTL.
func (h *Hub) Run(ctx context.Context) {
	interval := h.ttl / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.evict(time.Now())

		case <-ctx.Done():
			log.Printf("context cancelled: %v", ctx.Err())
			h.Close()
			return
		}
	}
}

func (h *Hub) evict(now time.Time) int {
	h.mu.Lock()
	var idle []*entry
	for uid, e := range h.sessions {
		if e.refs == 0 && now.Sub(e.lastSeen) > h.ttl {
			idle = append(idle, e)
			delete(h.sessions, uid)
		}
	}
	h.mu.Unlock()

	for _, e := range idle {
		e.session.Close()
		metrics.DecSessions()
	}
	return len(idle)
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close closes every session.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.sessions
	h.sessions = make(map[model.ID]*entry)
	h.mu.Unlock()

	for _, e := range all {
		e.session.Close()
		metrics.DecSessions()
	}
}
