// Package testutil provides in-memory stand-ins for the marketplace backend
// and its socket server.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/johndosdos/venuechat/internal/model"
)

// Backend serves the REST contract of the marketplace backend from memory.
type Backend struct {
	Token  string
	UserID model.ID

	mu           sync.Mutex
	participants map[model.Role][]model.Participant
	lastMessages []model.LastMessageInfo
	histories    map[model.ID][]model.Message
	sent         []model.Message
	failures     map[string]int
	calls        map[string]int
	gates        map[model.ID]chan struct{}
	nextID       int
	server       *httptest.Server
}

// NewBackend starts a fake backend accepting only the given bearer token.
func NewBackend(t testing.TB, userID model.ID, token string) *Backend {
	t.Helper()

	b := &Backend{
		Token:        token,
		UserID:       userID,
		participants: make(map[model.Role][]model.Participant),
		histories:    make(map[model.ID][]model.Message),
		failures:     make(map[string]int),
		calls:        make(map[string]int),
		gates:        make(map[model.ID]chan struct{}),
		nextID:       1000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /conversations", b.auth("list_participants", b.listParticipants))
	mux.HandleFunc("GET /conversations/last-messages", b.auth("list_last_messages", b.listLastMessages))
	mux.HandleFunc("GET /messages/{id}", b.auth("history", b.history))
	mux.HandleFunc("POST /messages/send/{id}", b.auth("send", b.send))

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)

	return b
}

func (b *Backend) URL() string { return b.server.URL }

func (b *Backend) SetParticipants(role model.Role, ps ...model.Participant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.participants[role] = ps
}

func (b *Backend) SetLastMessages(ls ...model.LastMessageInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastMessages = ls
}

func (b *Backend) SetHistory(participantID model.ID, msgs ...model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.histories[participantID] = msgs
}

// FailWith makes every call of op answer with code.
func (b *Backend) FailWith(op string, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = code
}

// Hold blocks history requests for participantID until the returned release
// func is called.
func (b *Backend) Hold(participantID model.ID) (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gates[participantID] = gate
	b.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Calls returns how many authorized requests op has received.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Sent returns the messages persisted through the send endpoint.
func (b *Backend) Sent() []model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Message(nil), b.sent...)
}

func (b *Backend) auth(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		b.mu.Lock()
		b.calls[op]++
		code := b.failures[op]
		b.mu.Unlock()
		if code != 0 {
			http.Error(w, "injected failure", code)
			return
		}

		next(w, r)
	}
}

func (b *Backend) listParticipants(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	ps := b.participants[model.ParseRole(r.URL.Query().Get("role"))]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, ps)
}

func (b *Backend) listLastMessages(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	ls := b.lastMessages
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, ls)
}

func (b *Backend) history(w http.ResponseWriter, r *http.Request) {
	id := model.ID(r.PathValue("id"))

	b.mu.Lock()
	gate := b.gates[id]
	msgs := b.histories[id]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (b *Backend) send(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.nextID++
	msg := model.Message{
		ID:         model.ID(strconv.Itoa(b.nextID)),
		SenderID:   b.UserID,
		ReceiverID: model.ID(r.PathValue("id")),
		Body:       in.Message,
		CreatedAt:  time.Now().UTC(),
	}
	b.sent = append(b.sent, msg)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
