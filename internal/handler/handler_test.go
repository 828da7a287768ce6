package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/venuechat/internal/backend"
	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/model"
	"github.com/johndosdos/venuechat/internal/realtime"
	"github.com/johndosdos/venuechat/internal/testutil"
	ws "github.com/johndosdos/venuechat/internal/websocket"
)

type env struct {
	srv    *httptest.Server
	client *http.Client
	fake   *testutil.Backend
	sock   *testutil.Socket
	token  string
}

func setup(t *testing.T) *env {
	t.Helper()

	token := testutil.Token(t, "me", model.RoleUser)
	fake := testutil.NewBackend(t, "me", token)
	fake.SetParticipants(model.RoleUser,
		model.Participant{ID: "u1", DisplayName: "Alice"},
		model.Participant{ID: "u2", DisplayName: "Bob Marley"},
	)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake.SetHistory("u2",
		model.Message{ID: "1", SenderID: "u2", ReceiverID: "me", Body: "Is the hall free on Friday?", CreatedAt: at},
		model.Message{ID: "2", SenderID: "me", ReceiverID: "u2", Body: "It is!", CreatedAt: at.Add(time.Minute)},
	)
	sock := testutil.NewSocket(t)

	hub := ws.NewHub(
		backend.New(fake.URL(), 5*time.Second),
		ws.RealtimeDialer(realtime.Config{URL: sock.URL(), MaxRetries: 2, RetryDelay: 10 * time.Millisecond}),
		chat.Options{},
		time.Minute,
	)
	t.Cleanup(hub.Close)

	srv := httptest.NewServer(NewRouter(hub, RouterOpts{JWTSecret: testutil.JWTSecret, LoginURL: "/login"}))
	t.Cleanup(srv.Close)

	return &env{
		srv:   srv,
		fake:  fake,
		sock:  sock,
		token: token,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (e *env) do(t *testing.T, method, path string, form url.Values, authed bool) (*http.Response, string) {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if authed {
		req.AddCookie(&http.Cookie{Name: "jwt", Value: e.token})
	}

	res, err := e.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(b)
}

func TestServeRoot(t *testing.T) {
	e := setup(t)

	res, _ := e.do(t, http.MethodGet, "/", nil, false)
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))

	res, _ = e.do(t, http.MethodGet, "/", nil, true)
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/chat", res.Header.Get("Location"))
}

func TestServeChat(t *testing.T) {
	e := setup(t)

	t.Run("unauthenticated", func(t *testing.T) {
		res, _ := e.do(t, http.MethodGet, "/chat", nil, false)
		assert.Equal(t, http.StatusSeeOther, res.StatusCode)
		assert.Equal(t, "/login", res.Header.Get("Location"))
	})

	t.Run("layout", func(t *testing.T) {
		res, html := e.do(t, http.MethodGet, "/chat", nil, true)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, html, "Alice")
		assert.Contains(t, html, "Bob Marley")
		assert.Contains(t, html, "Select a user to chat")
		assert.Contains(t, html, `ws-connect="/ws"`)
	})

	t.Run("venue with participant", func(t *testing.T) {
		res, html := e.do(t, http.MethodGet, "/venues/7/chat?participant=u2", nil, true)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, html, `ws-connect="/ws?room=venue%3A7"`)
		assert.Contains(t, html, "Is the hall free on Friday?")
	})
}

func TestServeConversations(t *testing.T) {
	e := setup(t)

	_, html := e.do(t, http.MethodGet, "/chat/conversations?q=bob", nil, true)
	assert.Contains(t, html, "Bob Marley")
	assert.NotContains(t, html, "Alice")

	_, html = e.do(t, http.MethodGet, "/chat/conversations?q=nobody", nil, true)
	assert.Contains(t, html, "No conversations found")
}

func TestServeConversationsCached(t *testing.T) {
	e := setup(t)

	// Nothing loaded yet: cached falls back to the backend.
	_, html := e.do(t, http.MethodGet, "/chat/conversations?cached=1", nil, true)
	assert.Contains(t, html, "Alice")
	assert.Equal(t, 1, e.fake.Calls("list_participants"))
	assert.Equal(t, 1, e.fake.Calls("list_last_messages"))

	for range 5 {
		_, html = e.do(t, http.MethodGet, "/chat/conversations?cached=1&q=bob", nil, true)
		assert.Contains(t, html, "Bob Marley")
		assert.NotContains(t, html, "Alice")
	}
	_, html = e.do(t, http.MethodPost, "/chat/conversations/u2/select", nil, true)
	assert.Contains(t, html, "Is the hall free on Friday?")
	_, _ = e.do(t, http.MethodPost, "/chat/deselect", nil, true)

	assert.Equal(t, 1, e.fake.Calls("list_participants"))
	assert.Equal(t, 1, e.fake.Calls("list_last_messages"))

	// A search reloads.
	_, html = e.do(t, http.MethodGet, "/chat/conversations?q=alice", nil, true)
	assert.Contains(t, html, "Alice")
	assert.Equal(t, 2, e.fake.Calls("list_participants"))
	assert.Equal(t, 2, e.fake.Calls("list_last_messages"))
}

func TestServeSelectAndSend(t *testing.T) {
	e := setup(t)

	_, html := e.do(t, http.MethodPost, "/chat/conversations/u2/select", nil, true)
	assert.Contains(t, html, `id="chat-panel"`)
	assert.Contains(t, html, "Is the hall free on Friday?")
	assert.Contains(t, html, "It is!")
	assert.NotContains(t, html, `id="conversation-refresh"`)

	_, html = e.do(t, http.MethodPost, "/chat/messages", url.Values{"message": {"  "}}, true)
	assert.Empty(t, e.fake.Sent())
	assert.NotContains(t, html, "Sending")

	_, html = e.do(t, http.MethodPost, "/chat/messages", url.Values{"message": {"Hello"}}, true)
	assert.Contains(t, html, `id="transcript"`)
	assert.Contains(t, html, "Hello")
	assert.Contains(t, html, `id="msg-1001"`)

	sent := e.fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hello", sent[0].Body)
	assert.Equal(t, model.ID("u2"), sent[0].ReceiverID)

	_, html = e.do(t, http.MethodPost, "/chat/deselect", nil, true)
	assert.Contains(t, html, "Select a user to chat")
}

func TestServeSendWithoutSelection(t *testing.T) {
	e := setup(t)

	res, html := e.do(t, http.MethodPost, "/chat/messages", url.Values{"message": {"Hello"}}, true)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, html, "Select a user to chat")
	assert.Empty(t, e.fake.Sent())
}

func TestServeTyping(t *testing.T) {
	e := setup(t)

	res, _ := e.do(t, http.MethodPost, "/chat/typing", url.Values{"typing": {"false"}}, true)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = e.do(t, http.MethodPost, "/chat/typing", url.Values{"typing": {"maybe"}}, true)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestServeMetrics(t *testing.T) {
	e := setup(t)

	res, body := e.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "go_goroutines")
}

func TestServeWs(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.do(t, http.MethodPost, "/chat/conversations/u2/select", nil, true)

	header := http.Header{}
	header.Add("Cookie", (&http.Cookie{Name: "jwt", Value: e.token}).String())
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(e.srv.URL, "http")+"/ws?room=venue%3A7", &websocket.DialOptions{
		HTTPHeader: header,
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	q := <-e.sock.Queries
	assert.Equal(t, "me", q.Get("userId"))
	assert.Equal(t, e.token, q.Get("token"))

	for {
		f := <-e.sock.Frames
		if f.Event == realtime.EventJoinRoom {
			assert.JSONEq(t, `"venue:7"`, string(f.Data))
			break
		}
	}

	require.NoError(t, e.sock.Push(ctx, realtime.EventNewMessage, model.Message{
		ID: "55", SenderID: "u2", ReceiverID: "me", Body: "pushed hello", CreatedAt: time.Now(),
	}))

	for {
		_, p, err := conn.Read(ctx)
		require.NoError(t, err)
		if strings.Contains(string(p), "pushed hello") {
			assert.Contains(t, string(p), `hx-swap-oob="true"`)
			break
		}
	}

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"typing","HEADERS":{}}`)))
	for {
		f := <-e.sock.Frames
		if f.Event == realtime.EventTyping {
			assert.JSONEq(t, `{"conversationId":"u2","isTyping":true}`, string(f.Data))
			break
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
