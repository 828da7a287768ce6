package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/venuechat/internal/model"
)

func selected(s *Store, id model.ID) uint64 {
	return s.Select(model.Conversation{Participant: model.Participant{ID: id}})
}

func messageIDs(msgs []model.Message) []model.ID {
	out := make([]model.ID, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestStoreSelect(t *testing.T) {
	s := NewStore()
	assert.Equal(t, NoneSelected, s.Snapshot().State)

	gen := selected(s, "bob")
	snap := s.Snapshot()
	assert.Equal(t, Loading, snap.State)
	assert.Equal(t, model.ID("bob"), snap.Selected.Participant.ID)

	require.True(t, s.ReplaceMessages(gen, []model.Message{msg("1", "bob", 0)}))
	assert.Equal(t, Ready, s.Snapshot().State)

	s.Deselect()
	snap = s.Snapshot()
	assert.Equal(t, NoneSelected, snap.State)
	assert.Nil(t, snap.Selected)
	assert.Empty(t, snap.Messages)
}

func TestStoreStaleHistory(t *testing.T) {
	s := NewStore()
	genA := selected(s, "a")
	genB := selected(s, "b")

	assert.False(t, s.ReplaceMessages(genA, []model.Message{msg("a1", "a", 0)}))
	assert.False(t, s.FailLoad(genA))
	assert.True(t, s.ReplaceMessages(genB, []model.Message{msg("b1", "b", 0)}))

	assert.Equal(t, []model.ID{"b1"}, messageIDs(s.Snapshot().Messages))
}

func TestStoreAppend(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		s := NewStore()
		selected(s, "bob")

		assert.True(t, s.Append(msg("1", "bob", 0)))
		assert.False(t, s.Append(msg("1", "bob", 0)))
		assert.Len(t, s.Snapshot().Messages, 1)
	})

	t.Run("ordered insert", func(t *testing.T) {
		s := NewStore()
		selected(s, "bob")

		s.Append(msg("3", "bob", 3*time.Second))
		s.Append(msg("1", "bob", time.Second))
		s.Append(msg("2", "me", 2*time.Second))
		s.Append(msg("4", "me", 3*time.Second))

		assert.Equal(t, []model.ID{"1", "2", "3", "4"}, messageIDs(s.Snapshot().Messages))
	})

	t.Run("history dedupe", func(t *testing.T) {
		s := NewStore()
		gen := selected(s, "bob")

		s.ReplaceMessages(gen, []model.Message{msg("1", "bob", 0), msg("1", "bob", 0), msg("2", "me", time.Second)})
		assert.Equal(t, []model.ID{"1", "2"}, messageIDs(s.Snapshot().Messages))
	})
}

func TestStoreReconcile(t *testing.T) {
	pending := model.Message{ID: "pending-c1", ClientID: "c1", SenderID: "me", Body: "hi", CreatedAt: t0, Status: model.StatusPending}

	t.Run("confirm pending", func(t *testing.T) {
		s := NewStore()
		selected(s, "bob")
		s.Append(pending)

		require.True(t, s.Reconcile("c1", model.Message{ID: "1001", SenderID: "me", Body: "hi", CreatedAt: t0}))

		msgs := s.Snapshot().Messages
		require.Len(t, msgs, 1)
		assert.Equal(t, model.ID("1001"), msgs[0].ID)
		assert.Equal(t, model.StatusSent, msgs[0].Status)
		assert.Equal(t, "c1", msgs[0].ClientID)
	})

	t.Run("server copy already delivered", func(t *testing.T) {
		s := NewStore()
		selected(s, "bob")
		s.Append(pending)
		s.Append(model.Message{ID: "1001", SenderID: "me", Body: "hi", CreatedAt: t0})

		s.Reconcile("c1", model.Message{ID: "1001", SenderID: "me", Body: "hi", CreatedAt: t0})
		assert.Equal(t, []model.ID{"1001"}, messageIDs(s.Snapshot().Messages))
	})

	t.Run("socket echo with client id", func(t *testing.T) {
		s := NewStore()
		selected(s, "bob")
		s.Append(pending)

		assert.False(t, s.Append(model.Message{ID: "77", ClientID: "c1", SenderID: "me", Body: "hi", CreatedAt: t0}))
		msgs := s.Snapshot().Messages
		require.Len(t, msgs, 1)
		assert.Equal(t, model.StatusSent, msgs[0].Status)
	})

	t.Run("mark failed", func(t *testing.T) {
		s := NewStore()
		selected(s, "bob")
		s.Append(pending)

		require.True(t, s.MarkFailed("c1"))
		assert.Equal(t, model.StatusFailed, s.Snapshot().Messages[0].Status)
		assert.False(t, s.MarkFailed("unknown"))
	})
}

func TestStoreTyping(t *testing.T) {
	s := NewStore()
	assert.False(t, s.SetTyping("bob", true))

	selected(s, "bob")
	assert.False(t, s.SetTyping("carol", true))
	assert.False(t, s.Snapshot().IsTyping)

	assert.True(t, s.SetTyping("bob", true))
	assert.True(t, s.Snapshot().IsTyping)

	selected(s, "carol")
	assert.False(t, s.Snapshot().IsTyping)
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()
	events, cancel := s.Subscribe()

	s.SetPresence(model.Presence{"bob": true})
	s.Notify(Notification{Level: LevelInfo, Text: "hello"})

	ev := <-events
	assert.True(t, ev.Change.Has(ChangePresence))
	ev = <-events
	assert.True(t, ev.Change.Has(ChangeNotification))
	assert.Equal(t, "hello", ev.Notification.Text)

	cancel()
	cancel()
	_, ok := <-events
	assert.False(t, ok)

	assert.True(t, s.Online("bob"))
	assert.False(t, s.Online("carol"))
}
