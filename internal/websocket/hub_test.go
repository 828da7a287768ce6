package websocket

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/model"
	"github.com/johndosdos/venuechat/internal/realtime"
)

type fakeChannel struct {
	mu     sync.Mutex
	closed int
	rooms  []string

	// closing is closed when Close starts; Close then waits on block.
	closing chan struct{}
	block   chan struct{}
}

func (f *fakeChannel) JoinRoom(_ context.Context, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, room)
	return nil
}
func (f *fakeChannel) SendMessage(context.Context, model.OutboundMessage) error { return nil }
func (f *fakeChannel) SendTyping(context.Context, model.TypingEvent) error { return nil }
func (f *fakeChannel) Close() error {
	if f.closing != nil {
		close(f.closing)
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type dialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	tokens   []string
}

func (d *dialer) dial(id model.Identity, _ realtime.Handler) chat.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := &fakeChannel{}
	d.channels = append(d.channels, ch)
	d.tokens = append(d.tokens, id.Token)
	return ch
}

func (d *dialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels)
}

var alice = model.Identity{UserID: "1", Role: model.RoleUser, Token: "tok-1"}

func TestHubAcquireRelease(t *testing.T) {
	d := &dialer{}
	h := NewHub(nil, d.dial, chat.Options{}, time.Minute)

	s1, release1 := h.Acquire(alice)
	s2, release2 := h.Acquire(alice)
	assert.Same(t, s1, s2)
	assert.Same(t, s1, h.Session(alice))
	require.Len(t, d.channels, 1)
	assert.True(t, s1.Attached())

	release1()
	release1()
	assert.Equal(t, 0, d.channels[0].closed)

	release2()
	assert.Equal(t, 1, d.channels[0].closed)
	assert.False(t, s1.Attached())

	_, release3 := h.Acquire(alice)
	defer release3()
	assert.Len(t, d.channels, 2)
	assert.Equal(t, 1, h.Len())
}

func TestHubTokenChange(t *testing.T) {
	h := NewHub(nil, (&dialer{}).dial, chat.Options{}, time.Minute)

	s1 := h.Session(alice)
	renewed := alice
	renewed.Token = "tok-2"
	s2 := h.Session(renewed)

	assert.Same(t, s1, s2)
	assert.Equal(t, "tok-2", s2.Identity().Token)
	assert.False(t, s2.Attached())
	assert.Equal(t, 1, h.Len())
}

func TestHubTokenChangeWhileHeld(t *testing.T) {
	d := &dialer{}
	h := NewHub(nil, d.dial, chat.Options{}, time.Minute)

	s1, release1 := h.Acquire(alice)
	defer release1()
	require.NoError(t, s1.JoinRoom(context.Background(), "venue:7"))

	renewed := alice
	renewed.Token = "tok-2"
	s2, release2 := h.Acquire(renewed)
	defer release2()

	assert.Same(t, s1, s2)
	assert.Equal(t, "tok-2", s2.Identity().Token)
	require.Len(t, d.channels, 2)
	assert.Equal(t, []string{"tok-1", "tok-2"}, d.tokens)
	assert.Equal(t, 1, d.channels[0].closeCount())
	assert.Equal(t, 0, d.channels[1].closeCount())
	assert.Equal(t, []string{"venue:7"}, d.channels[1].rooms)
	assert.True(t, s2.Attached())

	// Same token again: no re-dial.
	_, release3 := h.Acquire(renewed)
	defer release3()
	assert.Equal(t, 2, d.count())
}

func TestHubAcquireDuringRelease(t *testing.T) {
	d := &dialer{}
	h := NewHub(nil, d.dial, chat.Options{}, time.Minute)

	s1, release1 := h.Acquire(alice)
	first := d.channels[0]
	first.closing = make(chan struct{})
	first.block = make(chan struct{})

	released := make(chan struct{})
	go func() {
		release1()
		close(released)
	}()

	select {
	case <-first.closing:
	case <-time.After(time.Second):
		t.Fatal("release did not close the channel")
	}

	// The old channel is mid-close; a new holder gets a fresh channel.
	s2, release2 := h.Acquire(alice)
	defer release2()
	assert.Same(t, s1, s2)
	assert.True(t, s2.Attached())
	require.Equal(t, 2, d.count())

	close(first.block)
	<-released

	assert.True(t, s2.Attached())
	assert.Equal(t, 1, first.closeCount())
	assert.Equal(t, 0, d.channels[1].closeCount())
}

func TestHubConcurrentHolders(t *testing.T) {
	d := &dialer{}
	h := NewHub(nil, d.dial, chat.Options{}, time.Minute)

	s, keep := h.Acquire(alice)
	defer keep()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release := h.Acquire(alice)
			release()
		}()
	}
	wg.Wait()

	assert.True(t, s.Attached())
	assert.Equal(t, 1, d.count())
}

func TestHubEvict(t *testing.T) {
	d := &dialer{}
	h := NewHub(nil, d.dial, chat.Options{}, time.Minute)

	h.Session(alice)
	_, release := h.Acquire(model.Identity{UserID: "2", Token: "tok-2"})
	defer release()

	assert.Equal(t, 0, h.evict(time.Now()))
	assert.Equal(t, 1, h.evict(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 1, h.Len())

	h.Close()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 1, d.channels[0].closed)
}

func TestHubRunStopsOnCancel(t *testing.T) {
	h := NewHub(nil, (&dialer{}).dial, chat.Options{}, time.Minute)
	h.Session(alice)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, h.Len())
}

func TestClientFragments(t *testing.T) {
	h := NewHub(nil, (&dialer{}).dial, chat.Options{}, time.Minute)
	s := h.Session(alice)
	c := NewClient(nil, s)
	defer c.Stop()

	rendered := func(ev chat.Event) string {
		var buf bytes.Buffer
		for _, f := range c.fragments(ev) {
			require.NoError(t, f.Render(context.Background(), &buf))
		}
		return buf.String()
	}

	gen := s.Store().Select(model.Conversation{Participant: model.Participant{ID: "2", DisplayName: "Bob"}})
	html := rendered(chat.Event{Change: chat.ChangeSelection | chat.ChangeMessages})
	assert.Contains(t, html, `id="chat-panel"`)
	assert.Contains(t, html, "Loading messages")

	s.Store().ReplaceMessages(gen, []model.Message{{ID: "7", SenderID: "2", ReceiverID: "1", Body: "hello", CreatedAt: time.Now()}})
	html = rendered(chat.Event{Change: chat.ChangeMessages})
	assert.Contains(t, html, `id="chat-panel"`)
	assert.Contains(t, html, "hello")

	s.Store().Append(model.Message{ID: "8", SenderID: "2", ReceiverID: "1", Body: "again", CreatedAt: time.Now()})
	html = rendered(chat.Event{Change: chat.ChangeMessages})
	assert.Contains(t, html, `id="transcript"`)
	assert.NotContains(t, html, `id="chat-panel"`)

	s.Store().SetTyping("2", true)
	html = rendered(chat.Event{Change: chat.ChangeTyping})
	assert.Contains(t, html, "Bob is typing…")

	html = rendered(chat.Event{Change: chat.ChangePresence})
	assert.Contains(t, html, `id="conversation-refresh"`)
	assert.Contains(t, html, `hx-get="/chat/conversations?cached=1"`)

	html = rendered(chat.Event{Change: chat.ChangeNotification, Notification: chat.Notification{Level: chat.LevelError, Text: "Message could not be sent."}})
	assert.Contains(t, html, "Message could not be sent.")
}
