package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"
)

// Frame is one JSON envelope exchanged with the socket server.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Socket is a fake backend socket server. It records every frame clients send
// and can push frames to all connected clients.
type Socket struct {
	Frames  chan Frame
	Queries chan url.Values

	reject  atomic.Bool
	dials   atomic.Int32
	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	joined  chan struct{}
	server  *httptest.Server
	closing atomic.Bool
}

func NewSocket(t testing.TB) *Socket {
	t.Helper()

	s := &Socket{
		Frames:  make(chan Frame, 64),
		Queries: make(chan url.Values, 16),
		conns:   make(map[*websocket.Conn]struct{}),
		joined:  make(chan struct{}, 16),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(func() {
		s.closing.Store(true)
		s.DropAll()
		s.server.Close()
	})

	return s
}

// URL returns the ws:// address of the server.
func (s *Socket) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// Reject makes new dials fail with 503 until called with false.
func (s *Socket) Reject(v bool) { s.reject.Store(v) }

// Dials counts dial attempts, successful or not.
func (s *Socket) Dials() int { return int(s.dials.Load()) }

// Connected is signalled once per accepted connection.
func (s *Socket) Connected() <-chan struct{} { return s.joined }

// Push sends a frame to every connected client.
func (s *Socket) Push(ctx context.Context, event string, data any) error {
	p, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Frame{Event: event, Data: p})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if err := c.Write(ctx, websocket.MessageText, frame); err != nil {
			return err
		}
	}
	return nil
}

// DropAll closes every open connection from the server side.
func (s *Socket) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.CloseNow()
		delete(s.conns, c)
	}
}

func (s *Socket) serve(w http.ResponseWriter, r *http.Request) {
	s.dials.Add(1)
	if s.reject.Load() || s.closing.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	select {
	case s.Queries <- r.URL.Query():
	default:
	}
	select {
	case s.joined <- struct{}{}:
	default:
	}

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.CloseNow()
	}()

	for {
		_, p, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(p, &f); err != nil {
			continue
		}
		select {
		case s.Frames <- f:
		default:
		}
	}
}
