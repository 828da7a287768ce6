package chat

import (
	"slices"
	"sync"

	"github.com/johndosdos/venuechat/internal/model"
)

// PanelState is the state of the main chat panel.
type PanelState int

const (
	NoneSelected PanelState = iota
	Loading
	Ready
)

func (p PanelState) String() string {
	switch p {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "none"
	}
}

// Change is a bit set describing which parts of the store an event touched.
type Change uint8

const (
	ChangeSelection Change = 1 << iota
	ChangeMessages
	ChangeTyping
	ChangePresence
	ChangeConversations
	ChangeConnection
	ChangeNotification
)

func (c Change) Has(o Change) bool { return c&o != 0 }

// Event is published to subscribers after every store mutation.
type Event struct {
	Change       Change
	Notification Notification
}

// Snapshot is a copy of the store state, safe to read without locking.
type Snapshot struct {
	Selected  *model.Conversation
	Messages  []model.Message
	IsTyping  bool
	State     PanelState
	Presence  model.Presence
	Connected bool
}

const subscriberBuffer = 32

// Store is the single source of truth for one chat session. Each mutation
// runs to completion under the lock before subscribers are told about it.
type Store struct {
	mu         sync.Mutex
	selected   *model.Conversation
	messages   []model.Message
	isTyping   bool
	loading    bool
	generation uint64
	presence   model.Presence
	connected  bool

	subs map[chan Event]struct{}
}

func NewStore() *Store {
	return &Store{
		presence: model.Presence{},
		subs:     make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel of store events and a function to stop the
// subscription. Events are dropped for subscribers that fall behind.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// publish must be called with s.mu held.
func (s *Store) publish(ev Event) {
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Notify publishes a notification to all subscribers.
func (s *Store) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(Event{Change: ChangeNotification, Notification: n})
}

// Select makes conv the active conversation and resets the transcript. The
// returned generation identifies this selection to the history loader.
func (s *Store) Select(conv model.Conversation) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.Unread = false
	s.selected = &conv
	s.messages = nil
	s.isTyping = false
	s.loading = true
	s.generation++
	s.publish(Event{Change: ChangeSelection | ChangeMessages | ChangeTyping})
	return s.generation
}

// Deselect returns the panel to NoneSelected and invalidates any in-flight
// history load.
func (s *Store) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = nil
	s.messages = nil
	s.isTyping = false
	s.loading = false
	s.generation++
	s.publish(Event{Change: ChangeSelection | ChangeMessages | ChangeTyping})
}

// Current reports whether gen is still the active selection.
func (s *Store) Current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation && s.selected != nil
}

// Selected returns a copy of the active conversation, or nil.
func (s *Store) Selected() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	c := *s.selected
	return &c
}

// ReplaceMessages installs a loaded history. It is a no-op returning false
// when gen no longer identifies the active selection.
func (s *Store) ReplaceMessages(gen uint64, msgs []model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.selected == nil {
		return false
	}
	s.messages = make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		s.insert(m)
	}
	s.loading = false
	s.publish(Event{Change: ChangeMessages})
	return true
}

// FailLoad empties the transcript of the selection identified by gen after a
// failed history load. It returns false when the selection is stale.
func (s *Store) FailLoad(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.selected == nil {
		return false
	}
	s.messages = []model.Message{}
	s.loading = false
	s.publish(Event{Change: ChangeMessages})
	return true
}

// Append adds m to the transcript in timestamp order. A message whose id is
// already present is ignored. A message carrying the client id of a local
// pending entry confirms that entry instead of being added twice.
func (s *Store) Append(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(m.ID) >= 0 {
		return false
	}
	if m.ClientID != "" {
		if i := s.indexOfClient(m.ClientID); i >= 0 {
			if s.messages[i].Status == model.StatusSent {
				return false
			}
			s.confirm(i, m)
			s.publish(Event{Change: ChangeMessages})
			return false
		}
	}
	s.insert(m)
	s.publish(Event{Change: ChangeMessages})
	return true
}

// Reconcile replaces the pending entry created with clientID by the record
// the backend stored. If that record already arrived over the socket the
// pending entry is dropped.
func (s *Store) Reconcile(clientID string, saved model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfClient(clientID)
	if i < 0 {
		return false
	}
	if j := s.indexOf(saved.ID); j >= 0 && j != i {
		s.messages = slices.Delete(s.messages, i, i+1)
	} else {
		s.confirm(i, saved)
	}
	s.publish(Event{Change: ChangeMessages})
	return true
}

// MarkFailed flags the pending entry created with clientID as failed.
func (s *Store) MarkFailed(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfClient(clientID)
	if i < 0 {
		return false
	}
	s.messages[i].Status = model.StatusFailed
	s.publish(Event{Change: ChangeMessages})
	return true
}

// SetTyping updates the typing indicator if the event concerns the active
// conversation.
func (s *Store) SetTyping(conversationID model.ID, typing bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil || s.selected.Participant.ID != conversationID {
		return false
	}
	if s.isTyping == typing {
		return true
	}
	s.isTyping = typing
	s.selected.Typing = typing
	s.publish(Event{Change: ChangeTyping})
	return true
}

// SetPresence replaces the online roster.
func (s *Store) SetPresence(p model.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence = make(model.Presence, len(p))
	for id, online := range p {
		s.presence[id] = online
	}
	if s.selected != nil {
		s.selected.Online = s.presence[s.selected.Participant.ID]
	}
	s.publish(Event{Change: ChangePresence})
}

// Online reports whether id is in the online roster.
func (s *Store) Online(id model.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence[id]
}

func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected == connected {
		return
	}
	s.connected = connected
	s.publish(Event{Change: ChangeConnection})
}

// ConversationsChanged tells subscribers to refresh the conversation list.
func (s *Store) ConversationsChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(Event{Change: ChangeConversations})
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Messages:  slices.Clone(s.messages),
		IsTyping:  s.isTyping,
		Presence:  make(model.Presence, len(s.presence)),
		Connected: s.connected,
	}
	for id, online := range s.presence {
		snap.Presence[id] = online
	}
	switch {
	case s.selected == nil:
		snap.State = NoneSelected
	case s.loading:
		snap.State = Loading
	default:
		snap.State = Ready
	}
	if s.selected != nil {
		c := *s.selected
		snap.Selected = &c
	}
	return snap
}

// insert places m after every message with an equal or earlier timestamp,
// keeping equal timestamps in arrival order. Duplicate ids are skipped.
func (s *Store) insert(m model.Message) {
	if s.indexOf(m.ID) >= 0 {
		return
	}
	i := len(s.messages)
	for i > 0 && s.messages[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	s.messages = slices.Insert(s.messages, i, m)
}

// confirm overwrites entry i with the server's copy and restores order.
func (s *Store) confirm(i int, m model.Message) {
	clientID := s.messages[i].ClientID
	s.messages = slices.Delete(s.messages, i, i+1)
	if m.ClientID == "" {
		m.ClientID = clientID
	}
	m.Status = model.StatusSent
	s.insert(m)
}

func (s *Store) indexOf(id model.ID) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.messages, func(m model.Message) bool { return m.ID == id })
}

func (s *Store) indexOfClient(clientID string) int {
	if clientID == "" {
		return -1
	}
	return slices.IndexFunc(s.messages, func(m model.Message) bool { return m.ClientID == clientID })
}
