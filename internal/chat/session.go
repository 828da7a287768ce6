// Package chat is the messaging core shared by every chat surface: the
// conversation store, the list and history loaders, the sender and the
// grouper, tied together per user by a Session.
package chat

import (
	"context"
	"html"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/johndosdos/venuechat/internal/model"
)

type Options struct {
	// GroupThreshold defaults to DefaultGroupThreshold.
	GroupThreshold time.Duration
	// SendPerMinute defaults to 30.
	SendPerMinute int
}

// Session is the chat state of one authenticated user. It owns the store and
// at most one realtime channel, and implements the channel's event handler.
type Session struct {
	store     *Store
	list      *ListLoader
	history   *HistoryLoader
	sender    *Sender
	policy    *bluemonday.Policy
	threshold time.Duration
	typing    *rate.Limiter

	mu            sync.Mutex
	identity      model.Identity
	channel       Channel
	room          string
	conversations []model.Conversation
	listed        bool
	unread        map[model.ID]bool
}

func NewSession(id model.Identity, b Backend, opts Options) *Session {
	if opts.GroupThreshold <= 0 {
		opts.GroupThreshold = DefaultGroupThreshold
	}
	if opts.SendPerMinute <= 0 {
		opts.SendPerMinute = 30
	}

	s := &Session{
		identity:  id,
		store:     NewStore(),
		list:      NewListLoader(b, id.Role),
		policy:    bluemonday.StrictPolicy(),
		threshold: opts.GroupThreshold,
		typing:    rate.NewLimiter(rate.Every(time.Second), 2),
		unread:    make(map[model.ID]bool),
	}
	s.history = NewHistoryLoader(b, s.store, s.store, s.clean)

	perMsg := time.Minute / time.Duration(opts.SendPerMinute)
	limiter := rate.NewLimiter(rate.Every(perMsg), max(1, opts.SendPerMinute/6))
	s.sender = NewSender(b, s.store, s.store, limiter, s.currentChannel)
	return s
}

func (s *Session) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Reauth swaps in a fresh token for the same user. It reports whether the
// token changed; the caller re-dials the realtime channel if it did.
func (s *Session) Reauth(id model.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.UserID != s.identity.UserID || id.Token == s.identity.Token {
		return false
	}
	s.identity.Token = id.Token
	return true
}

func (s *Session) Store() *Store { return s.store }

func (s *Session) GroupThreshold() time.Duration { return s.threshold }

// Groups returns the grouped transcript of the active conversation.
func (s *Session) Groups() []Group {
	return GroupMessages(s.store.Snapshot().Messages, s.threshold)
}

// Conversations reloads the conversation list and returns the entries
// matching query.
func (s *Session) Conversations(ctx context.Context, query string) []model.Conversation {
	list := s.list.Load(ctx, s.Identity().Token, s.store)

	s.mu.Lock()
	s.conversations = list
	s.listed = true
	s.mu.Unlock()

	return s.ConversationList(query)
}

// Listed reports whether the conversation list was loaded at least once.
func (s *Session) Listed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listed
}

// ConversationList filters the last loaded list without calling the backend.
func (s *Session) ConversationList(query string) []model.Conversation {
	s.mu.Lock()
	list := slices.Clone(s.conversations)
	unread := make(map[model.ID]bool, len(s.unread))
	for id, u := range s.unread {
		unread[id] = u
	}
	s.mu.Unlock()

	snap := s.store.Snapshot()
	for i := range list {
		id := list[i].Participant.ID
		list[i].Online = snap.Presence[id]
		list[i].Unread = unread[id]
		if snap.Selected != nil && snap.Selected.Participant.ID == id {
			list[i].Typing = snap.IsTyping
		}
	}
	return Filter(list, query)
}

// Select activates the conversation with participantID and loads its
// history. A participant missing from the list starts a new conversation.
func (s *Session) Select(ctx context.Context, participantID model.ID) error {
	conv, ok := s.lookup(participantID)
	if !ok && s.loaded() == 0 {
		s.Conversations(ctx, "")
		conv, ok = s.lookup(participantID)
	}
	if !ok {
		conv = model.Conversation{Participant: model.Participant{ID: participantID}}
	}
	conv.Online = s.store.Online(participantID)

	gen := s.store.Select(conv)

	s.mu.Lock()
	delete(s.unread, participantID)
	s.mu.Unlock()
	s.store.ConversationsChanged()

	return s.history.Load(ctx, s.Identity().Token, gen, participantID)
}

func (s *Session) Deselect() {
	s.history.Stop()
	s.store.Deselect()
	s.store.ConversationsChanged()
}

// Send sends body to the active conversation.
func (s *Session) Send(ctx context.Context, body string) error {
	return s.sender.Send(ctx, s.Identity(), body)
}

// Typing tells the active counterpart whether the user is typing. Start
// events are throttled, stop events are always sent.
func (s *Session) Typing(ctx context.Context, isTyping bool) error {
	sel := s.store.Selected()
	ch, _ := s.currentChannel()
	if sel == nil || ch == nil {
		return nil
	}
	if isTyping && !s.typing.Allow() {
		return nil
	}
	return ch.SendTyping(ctx, model.TypingEvent{ConversationID: sel.Participant.ID, IsTyping: isTyping})
}

// Attach hands the session its realtime channel and joins the session's
// room on it. A previously attached channel is closed.
func (s *Session) Attach(ch Channel) {
	if old := s.Swap(ch); old != nil && old != ch {
		old.Close()
	}
}

// Swap installs ch as the realtime channel, joins the session's room on it
// and returns the channel it replaced without closing it.
func (s *Session) Swap(ch Channel) Channel {
	s.mu.Lock()
	old := s.channel
	s.channel = ch
	room := s.room
	s.mu.Unlock()

	if ch != nil && room != "" {
		if err := ch.JoinRoom(context.Background(), room); err != nil {
			slog.Warn("failed to join room on new channel", "room", room, "error", err)
		}
	}
	return old
}

// Detach removes the realtime channel from the session and returns it, or
// nil. Closing it is up to the caller.
func (s *Session) Detach() Channel {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch != nil {
		s.store.SetConnected(false)
	}
	return ch
}

// Attached reports whether a realtime channel is attached.
func (s *Session) Attached() bool {
	ch, _ := s.currentChannel()
	return ch != nil
}

// JoinRoom joins roomID on the attached channel and tags outgoing messages
// with it.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.room = roomID
	ch := s.channel
	s.mu.Unlock()

	if ch == nil || roomID == "" {
		return nil
	}
	return ch.JoinRoom(ctx, roomID)
}

// Close stops pending loads and closes the realtime channel. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.history.Stop()

	ch := s.Detach()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

func (s *Session) OnNewMessage(m model.Message) {
	me := s.Identity().UserID
	other := m.SenderID
	if other == me {
		other = m.ReceiverID
	}
	if !m.Between(me, other) {
		return
	}
	m.Body = s.clean(m.Body)

	active := false
	if sel := s.store.Selected(); sel != nil && m.Between(me, sel.Participant.ID) {
		active = true
		s.store.Append(m)
		if m.SenderID == other {
			s.store.SetTyping(other, false)
		}
	}

	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].Participant.ID == other {
			s.conversations[i].LastMessage = m.Body
			s.conversations[i].LastMessageAgo = "just now"
		}
	}
	if !active && m.SenderID == other {
		s.unread[other] = true
	}
	s.mu.Unlock()
	s.store.ConversationsChanged()
}

func (s *Session) OnTyping(ev model.TypingEvent) {
	if s.store.SetTyping(ev.ConversationID, ev.IsTyping) {
		s.store.ConversationsChanged()
	}
}

func (s *Session) OnOnlineUsers(p model.Presence) {
	s.store.SetPresence(p)
	s.store.ConversationsChanged()
}

// OnConnectionChange records the channel state. A non-nil err means the
// channel gave up reconnecting.
func (s *Session) OnConnectionChange(connected bool, err error) {
	s.store.SetConnected(connected)
	if err != nil {
		slog.Warn("realtime channel gave up", "user", s.Identity().UserID, "error", err)
		s.store.Notify(Notification{Level: LevelWarning, Text: "Live updates are unavailable. Refresh the page to try again."})
	}
}

func (s *Session) currentChannel() (Channel, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel, s.room
}

func (s *Session) lookup(id model.ID) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.Participant.ID == id {
			return c, true
		}
	}
	return model.Conversation{}, false
}

func (s *Session) loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// clean strips markup from message text. Entities are decoded again because
// views escape on output.
func (s *Session) clean(body string) string {
	return html.UnescapeString(s.policy.Sanitize(body))
}
