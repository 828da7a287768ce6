package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/venuechat/internal/model"
	"github.com/johndosdos/venuechat/internal/testutil"
)

type recorder struct {
	messages chan model.Message
	typing   chan model.TypingEvent
	presence chan model.Presence
	changes  chan change
}

type change struct {
	connected bool
	err       error
}

func newRecorder() *recorder {
	return &recorder{
		messages: make(chan model.Message, 16),
		typing:   make(chan model.TypingEvent, 16),
		presence: make(chan model.Presence, 16),
		changes:  make(chan change, 16),
	}
}

func (r *recorder) OnNewMessage(m model.Message) { r.messages <- m }
func (r *recorder) OnTyping(ev model.TypingEvent) { r.typing <- ev }
func (r *recorder) OnOnlineUsers(p model.Presence) { r.presence <- p }
func (r *recorder) OnConnectionChange(connected bool, err error) {
	r.changes <- change{connected, err}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func nextFrame(t *testing.T, sock *testutil.Socket, event string) testutil.Frame {
	t.Helper()
	for {
		f := receive(t, sock.Frames)
		if f.Event == event {
			return f
		}
	}
}

var identity = model.Identity{UserID: "42", Role: model.RoleUser, Token: "tok"}

func open(t *testing.T, sock *testutil.Socket, retries uint64) (*Channel, *recorder) {
	t.Helper()
	rec := newRecorder()
	c := Open(Config{URL: sock.URL(), MaxRetries: retries, RetryDelay: 10 * time.Millisecond}, identity, rec)
	t.Cleanup(func() { c.Close() })
	return c, rec
}

func TestChannelConnect(t *testing.T) {
	sock := testutil.NewSocket(t)
	c, rec := open(t, sock, 3)

	q := receive(t, sock.Queries)
	assert.Equal(t, "42", q.Get("userId"))
	assert.Equal(t, "tok", q.Get("token"))

	assert.True(t, receive(t, rec.changes).connected)
	assert.Equal(t, StateConnected, c.State())
}

func TestChannelInbound(t *testing.T) {
	sock := testutil.NewSocket(t)
	_, rec := open(t, sock, 3)
	receive(t, rec.changes)
	ctx := context.Background()

	require.NoError(t, sock.Push(ctx, EventNewMessage, map[string]any{
		"id": 7, "senderId": "9", "receiverId": "42", "message": "hi", "createdAt": "2026-03-01T12:00:00Z",
	}))
	m := receive(t, rec.messages)
	assert.Equal(t, model.ID("7"), m.ID)
	assert.Equal(t, "hi", m.Body)

	require.NoError(t, sock.Push(ctx, EventTyping, model.TypingEvent{ConversationID: "9", IsTyping: true}))
	assert.Equal(t, model.TypingEvent{ConversationID: "9", IsTyping: true}, receive(t, rec.typing))

	require.NoError(t, sock.Push(ctx, EventOnlineUsers, map[string]any{
		"9": true, "10": false, "11": "socket-id", "12": nil,
	}))
	assert.Equal(t, model.Presence{"9": true, "10": false, "11": true, "12": false}, receive(t, rec.presence))
}

func TestChannelOutbound(t *testing.T) {
	sock := testutil.NewSocket(t)
	c, rec := open(t, sock, 3)
	receive(t, rec.changes)
	ctx := context.Background()

	require.NoError(t, c.JoinRoom(ctx, "venue:3"))
	f := nextFrame(t, sock, EventJoinRoom)
	assert.JSONEq(t, `"venue:3"`, string(f.Data))

	out := model.OutboundMessage{Message: "hello", SenderID: "42", ReceiverID: "9", ClientID: "c-1", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, c.SendMessage(ctx, out))
	f = nextFrame(t, sock, EventSendMessage)
	var got model.OutboundMessage
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, out, got)

	require.NoError(t, c.SendTyping(ctx, model.TypingEvent{ConversationID: "9", IsTyping: true}))
	f = nextFrame(t, sock, EventTyping)
	assert.JSONEq(t, `{"conversationId":"9","isTyping":true}`, string(f.Data))
}

func TestChannelReconnect(t *testing.T) {
	sock := testutil.NewSocket(t)
	c, rec := open(t, sock, 5)
	receive(t, rec.changes)
	receive(t, sock.Connected())

	require.NoError(t, c.JoinRoom(context.Background(), "venue:3"))
	nextFrame(t, sock, EventJoinRoom)

	sock.DropAll()

	assert.Equal(t, change{connected: false}, receive(t, rec.changes))
	assert.True(t, receive(t, rec.changes).connected)
	f := nextFrame(t, sock, EventJoinRoom)
	assert.JSONEq(t, `"venue:3"`, string(f.Data))
	assert.GreaterOrEqual(t, sock.Dials(), 2)
}

func TestChannelGivesUp(t *testing.T) {
	sock := testutil.NewSocket(t)
	sock.Reject(true)

	c, rec := open(t, sock, 2)

	ch := receive(t, rec.changes)
	assert.False(t, ch.connected)
	assert.Error(t, ch.err)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 3, sock.Dials())

	assert.ErrorIs(t, c.SendTyping(context.Background(), model.TypingEvent{}), ErrNotConnected)
}

func TestChannelClose(t *testing.T) {
	sock := testutil.NewSocket(t)
	c, rec := open(t, sock, 3)
	receive(t, rec.changes)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.SendMessage(context.Background(), model.OutboundMessage{}), ErrClosed)

	select {
	case ch := <-rec.changes:
		t.Fatalf("unexpected connection change after close: %+v", ch)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelCloseWhileDialing(t *testing.T) {
	sock := testutil.NewSocket(t)
	sock.Reject(true)

	c := Open(Config{URL: sock.URL(), MaxRetries: 100, RetryDelay: time.Hour}, identity, newRecorder())
	require.Eventually(t, func() bool { return sock.Dials() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
}
