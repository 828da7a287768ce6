package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ID
	}{
		{"string", `{"id":"abc"}`, "abc"},
		{"number", `{"id":17}`, "17"},
		{"null", `{"id":null}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			require.NoError(t, json.Unmarshal([]byte(tt.in), &m))
			assert.Equal(t, tt.want, m.ID)
		})
	}

	var m Message
	assert.Error(t, json.Unmarshal([]byte(`{"id":true}`), &m))
}

func TestParticipantName(t *testing.T) {
	assert.Equal(t, "Alice", Participant{DisplayName: "Alice", Username: "a"}.Name())
	assert.Equal(t, "Bob Marley", Participant{FirstName: "Bob", LastName: "Marley", Username: "b"}.Name())
	assert.Equal(t, "carol", Participant{Username: "carol"}.Name())
}

func TestParticipantAvatar(t *testing.T) {
	assert.Equal(t, "a.png", Participant{AvatarURL: "a.png", VenueImageURL: "v.png"}.Avatar())
	assert.Equal(t, "v.png", Participant{VenueImageURL: "v.png"}.Avatar())
}

func TestMessageBetween(t *testing.T) {
	m := Message{SenderID: "a", ReceiverID: "b"}
	assert.True(t, m.Between("a", "b"))
	assert.True(t, m.Between("b", "a"))
	assert.False(t, m.Between("a", "c"))
}
