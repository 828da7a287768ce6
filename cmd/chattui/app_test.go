package main

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/venuechat/internal/backend"
	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/model"
	"github.com/johndosdos/venuechat/internal/testutil"
)

func newTestApp(t *testing.T) (*app, *testutil.Backend) {
	t.Helper()

	token := testutil.Token(t, "me", model.RoleUser)
	fake := testutil.NewBackend(t, "me", token)
	fake.SetParticipants(model.RoleUser,
		model.Participant{ID: "u1", DisplayName: "Alice"},
		model.Participant{ID: "u2", DisplayName: "Bob Marley"},
	)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	fake.SetHistory("u2",
		model.Message{ID: "1", SenderID: "u2", ReceiverID: "me", Body: "Is the hall free on Friday?", CreatedAt: at},
		model.Message{ID: "2", SenderID: "me", ReceiverID: "u2", Body: "It is!", CreatedAt: at.Add(time.Minute)},
	)

	id := model.Identity{UserID: "me", Role: model.RoleUser, Token: token}
	s := chat.NewSession(id, backend.New(fake.URL(), 5*time.Second), chat.Options{})
	t.Cleanup(func() { s.Close() })

	a := newApp(s)
	t.Cleanup(a.stop)
	a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	a.Update(a.loadConversations()())
	return a, fake
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestApp_ListsConversations(t *testing.T) {
	a, _ := newTestApp(t)

	require.Len(t, a.list, 2)
	view := a.View()
	assert.Contains(t, view, "Alice")
	assert.Contains(t, view, "Bob Marley")
	assert.Contains(t, view, "Select a user to chat")
}

func TestApp_SelectShowsTranscript(t *testing.T) {
	a, _ := newTestApp(t)

	a.Update(key(tea.KeyDown))
	assert.Equal(t, 1, a.cursor)
	a.Update(key(tea.KeyDown))
	assert.Equal(t, 1, a.cursor, "cursor stays on the last entry")

	_, cmd := a.Update(key(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.Equal(t, paneChat, a.focus)
	cmd()

	a.Update(eventMsg(chat.Event{Change: chat.ChangeMessages}))
	transcript := a.renderTranscript()
	assert.Contains(t, transcript, "Bob Marley")
	assert.Contains(t, transcript, "Is the hall free on Friday?")
	assert.Contains(t, transcript, "You")
	assert.Contains(t, transcript, "It is!")
}

func TestApp_SendFromComposer(t *testing.T) {
	a, fake := newTestApp(t)

	a.Update(key(tea.KeyDown))
	_, cmd := a.Update(key(tea.KeyEnter))
	cmd()

	a.Update(runes("See you then"))
	assert.Equal(t, "See you then", a.input.Value())

	_, cmd = a.Update(key(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.Empty(t, a.input.Value())
	cmd()

	sent := fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "See you then", sent[0].Body)
	assert.Equal(t, model.ID("u2"), sent[0].ReceiverID)

	msgs := a.session.Store().Snapshot().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, model.StatusSent, msgs[2].Status)
}

func TestApp_EscDeselects(t *testing.T) {
	a, _ := newTestApp(t)

	_, cmd := a.Update(key(tea.KeyEnter))
	cmd()
	require.NotNil(t, a.session.Store().Selected())

	a.Update(key(tea.KeyEsc))
	assert.Nil(t, a.session.Store().Selected())
	assert.Equal(t, paneSidebar, a.focus)
}

func TestApp_SearchFiltersList(t *testing.T) {
	a, _ := newTestApp(t)

	a.Update(runes("/"))
	require.Equal(t, paneSearch, a.focus)
	a.Update(runes("bob"))

	require.Len(t, a.list, 1)
	assert.Equal(t, "Bob Marley", a.list[0].Participant.Name())

	a.Update(key(tea.KeyEsc))
	assert.Equal(t, paneSidebar, a.focus)
}

func TestApp_Toast(t *testing.T) {
	a, _ := newTestApp(t)

	n := chat.Notification{Level: chat.LevelError, Text: "Message could not be sent."}
	a.Update(eventMsg(chat.Event{Change: chat.ChangeNotification, Notification: n}))
	require.NotNil(t, a.toast)
	assert.Contains(t, a.View(), "Message could not be sent.")

	a.Update(clearToastMsg{at: a.toastAt.Add(-time.Second)})
	assert.NotNil(t, a.toast, "an older timer leaves a newer toast alone")

	a.Update(clearToastMsg{at: a.toastAt})
	assert.Nil(t, a.toast)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer preview", 10, "a longe..."},
		{"tiny", 2, "tiny"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncate(tt.in, tt.n))
	}
}
