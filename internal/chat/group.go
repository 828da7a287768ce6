package chat

import (
	"time"

	"github.com/johndosdos/venuechat/internal/model"
)

// DefaultGroupThreshold is the largest gap between two messages of the same
// sender that still renders them as one group.
const DefaultGroupThreshold = 60 * time.Second

// Group is a run of consecutive messages from one sender.
type Group struct {
	SenderID model.ID
	Messages []model.Message
}

// First returns the earliest message of the group.
func (g Group) First() model.Message { return g.Messages[0] }

// GroupMessages clusters an oldest-first message list. A new group starts when
// the sender changes or when the gap to the previous message exceeds
// threshold. Flattening the result yields msgs unchanged.
func GroupMessages(msgs []model.Message, threshold time.Duration) []Group {
	var groups []Group
	for _, m := range msgs {
		if n := len(groups); n > 0 {
			g := &groups[n-1]
			prev := g.Messages[len(g.Messages)-1]
			if m.SenderID == g.SenderID && absDuration(m.CreatedAt.Sub(prev.CreatedAt)) <= threshold {
				g.Messages = append(g.Messages, m)
				continue
			}
		}
		groups = append(groups, Group{SenderID: m.SenderID, Messages: []model.Message{m}})
	}
	return groups
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
