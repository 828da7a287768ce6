package chat

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/venuechat/internal/backend"
	"github.com/johndosdos/venuechat/internal/model"
	"github.com/johndosdos/venuechat/internal/testutil"
)

type notes []Notification

func (n *notes) Notify(x Notification) { *n = append(*n, x) }

func TestFilter(t *testing.T) {
	list := []model.Conversation{
		{Participant: model.Participant{ID: "u1", DisplayName: "Alice"}},
		{Participant: model.Participant{ID: "u2", DisplayName: "Bob Marley"}},
	}

	got := Filter(list, "bob")
	require.Len(t, got, 1)
	assert.Equal(t, model.ID("u2"), got[0].Participant.ID)

	assert.Equal(t, list, Filter(list, ""))
	assert.Equal(t, list, Filter(list, "  "))
	assert.Empty(t, Filter(list, "zed"))
}

func TestListLoader(t *testing.T) {
	fake := testutil.NewBackend(t, "me", "tok")
	fake.SetParticipants(model.RoleUser,
		model.Participant{ID: "o2", DisplayName: "Hall Owner"},
		model.Participant{ID: "o1", FirstName: "Rooftop", LastName: "Owner"},
	)
	fake.SetParticipants(model.RoleOwner, model.Participant{ID: "u9", Username: "guest"})
	fake.SetLastMessages(model.LastMessageInfo{
		ParticipantsIDs: []model.ID{"me", "o1"},
		LastMessage:     struct{ Message string `json:"message"` }{"see you friday"},
		TimeAgo:         "2h",
	})
	client := backend.New(fake.URL(), 5*time.Second)
	ctx := context.Background()

	t.Run("user", func(t *testing.T) {
		var n notes
		got := NewListLoader(client, model.RoleUser).Load(ctx, "tok", &n)

		require.Len(t, got, 2)
		assert.Empty(t, n)
		assert.Equal(t, model.ID("o2"), got[0].Participant.ID)
		assert.Equal(t, "", got[0].LastMessage)
		assert.Equal(t, "", got[0].LastMessageAgo)
		assert.Equal(t, "see you friday", got[1].LastMessage)
		assert.Equal(t, "2h", got[1].LastMessageAgo)
	})

	t.Run("owner", func(t *testing.T) {
		var n notes
		got := NewListLoader(client, model.RoleOwner).Load(ctx, "tok", &n)

		require.Len(t, got, 1)
		assert.Equal(t, "guest", got[0].Participant.Name())
	})

	t.Run("no token", func(t *testing.T) {
		var n notes
		got := NewListLoader(client, model.RoleUser).Load(ctx, "", &n)

		assert.Empty(t, got)
		require.Len(t, n, 1)
		assert.Equal(t, msgLogin, n[0].Text)
	})

	t.Run("backend failure", func(t *testing.T) {
		fake.FailWith("list_last_messages", http.StatusInternalServerError)
		defer fake.FailWith("list_last_messages", 0)

		var n notes
		got := NewListLoader(client, model.RoleUser).Load(ctx, "tok", &n)

		assert.NotNil(t, got)
		assert.Empty(t, got)
		require.Len(t, n, 1)
		assert.Equal(t, LevelWarning, n[0].Level)
	})
}
