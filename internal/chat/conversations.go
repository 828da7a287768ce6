package chat

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/venuechat/internal/backend"
	"github.com/johndosdos/venuechat/internal/model"
)

// Backend is the subset of the marketplace REST API the chat core uses.
type Backend interface {
	ListParticipants(ctx context.Context, token string, role model.Role) ([]model.Participant, error)
	ListLastMessages(ctx context.Context, token string, role model.Role) ([]model.LastMessageInfo, error)
	History(ctx context.Context, token string, participantID model.ID) ([]model.Message, error)
	Send(ctx context.Context, token string, participantID model.ID, body string) (model.Message, error)
}

// ListLoader builds the conversation list for one role. Users see the owners
// they talk to, owners see users.
type ListLoader struct {
	backend Backend
	role    model.Role
}

func NewListLoader(b Backend, role model.Role) *ListLoader {
	return &ListLoader{backend: b, role: role}
}

// Load fetches participants and last messages concurrently and merges them.
// On any failure it notifies n and returns an empty list.
func (l *ListLoader) Load(ctx context.Context, token string, n Notifier) []model.Conversation {
	if token == "" {
		n.Notify(failure("conversations", backend.ErrUnauthorized))
		return []model.Conversation{}
	}

	var (
		participants []model.Participant
		last         []model.LastMessageInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		participants, err = l.backend.ListParticipants(gctx, token, l.role)
		return err
	})
	g.Go(func() error {
		var err error
		last, err = l.backend.ListLastMessages(gctx, token, l.role)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.WarnContext(ctx, "conversation list load failed", "role", l.role, "error", err)
		n.Notify(failure("conversations", err))
		return []model.Conversation{}
	}

	return Merge(participants, last)
}

// Merge pairs every participant with the last message exchanged with them.
// Participant order is preserved; participants without a last message get
// empty preview fields.
func Merge(participants []model.Participant, last []model.LastMessageInfo) []model.Conversation {
	out := make([]model.Conversation, 0, len(participants))
	for _, p := range participants {
		c := model.Conversation{Participant: p}
		for _, lm := range last {
			if lm.Involves(p.ID) {
				c.LastMessage = lm.LastMessage.Message
				c.LastMessageAgo = lm.TimeAgo
				break
			}
		}
		out = append(out, c)
	}
	return out
}

// Filter keeps the conversations whose participant name contains query,
// ignoring case. An empty query returns list unchanged.
func Filter(list []model.Conversation, query string) []model.Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	out := make([]model.Conversation, 0, len(list))
	for _, c := range list {
		if strings.Contains(strings.ToLower(c.Participant.Name()), q) {
			out = append(out, c)
		}
	}
	return out
}
