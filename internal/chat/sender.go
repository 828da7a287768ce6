package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/johndosdos/venuechat/internal/backend"
	"github.com/johndosdos/venuechat/internal/metrics"
	"github.com/johndosdos/venuechat/internal/model"
)

var (
	ErrNoConversation = errors.New("internal/chat: no conversation selected")
	ErrRateLimited    = errors.New("internal/chat: rate limited")
)

// Channel is the outbound side of the realtime connection.
type Channel interface {
	JoinRoom(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, msg model.OutboundMessage) error
	SendTyping(ctx context.Context, ev model.TypingEvent) error
	Close() error
}

// Sender delivers composed messages. A message is shown as pending right
// away, broadcast over the realtime channel and then persisted through the
// backend, which confirms or fails the pending entry.
type Sender struct {
	backend  Backend
	store    *Store
	notifier Notifier
	limiter  *rate.Limiter
	channel  func() (Channel, string)
	now      func() time.Time
}

func NewSender(b Backend, store *Store, n Notifier, limiter *rate.Limiter, channel func() (Channel, string)) *Sender {
	return &Sender{
		backend:  b,
		store:    store,
		notifier: n,
		limiter:  limiter,
		channel:  channel,
		now:      time.Now,
	}
}

// Send sends body to the selected conversation. Blank bodies are ignored.
func (s *Sender) Send(ctx context.Context, id model.Identity, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	sel := s.store.Selected()
	if sel == nil {
		return ErrNoConversation
	}
	if id.Token == "" {
		s.notifier.Notify(Notification{Level: LevelWarning, Text: msgLogin})
		return backend.ErrUnauthorized
	}
	if !s.limiter.Allow() {
		metrics.IncMessageSent("rate_limited")
		s.notifier.Notify(Notification{Level: LevelWarning, Text: "You are sending messages too quickly."})
		return ErrRateLimited
	}

	receiver := sel.Participant.ID
	clientID := uuid.NewString()
	pending := model.Message{
		ID:         model.ID("pending-" + clientID),
		ClientID:   clientID,
		SenderID:   id.UserID,
		ReceiverID: receiver,
		Body:       body,
		CreatedAt:  s.now(),
		Status:     model.StatusPending,
	}

	ch, room := s.channel()
	pending.RoomID = room
	s.store.Append(pending)

	if ch != nil {
		out := model.OutboundMessage{
			RoomID:     room,
			Message:    body,
			SenderID:   id.UserID,
			ReceiverID: receiver,
			CreatedAt:  pending.CreatedAt,
			ClientID:   clientID,
		}
		if err := ch.SendMessage(ctx, out); err != nil {
			slog.WarnContext(ctx, "realtime send failed", "receiver", receiver, "error", err)
		}
	}

	saved, err := s.backend.Send(ctx, id.Token, receiver, body)
	if err != nil {
		slog.ErrorContext(ctx, "message send failed", "receiver", receiver, "error", err)
		metrics.IncMessageSent("failed")
		s.store.MarkFailed(clientID)
		if errors.Is(err, backend.ErrUnauthorized) {
			s.notifier.Notify(Notification{Level: LevelWarning, Text: msgLogin})
		} else {
			s.notifier.Notify(Notification{Level: LevelError, Text: "Message could not be sent."})
		}
		return err
	}

	metrics.IncMessageSent("ok")
	if saved.ID == "" {
		saved.ID = pending.ID
	}
	if saved.SenderID == "" {
		saved.SenderID = id.UserID
		saved.ReceiverID = receiver
	}
	if saved.Body == "" {
		saved.Body = body
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = pending.CreatedAt
	}
	saved.RoomID = room
	s.store.Reconcile(clientID, saved)
	return nil
}
