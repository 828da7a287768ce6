package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/johndosdos/venuechat/internal/backend"
	"github.com/johndosdos/venuechat/internal/model"
)

// HistoryLoader fetches the transcript of the selected conversation. Only the
// most recent selection may write to the store; starting a load cancels the
// previous one.
type HistoryLoader struct {
	backend  Backend
	store    *Store
	notifier Notifier
	clean    func(string) string

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewHistoryLoader(b Backend, store *Store, n Notifier, clean func(string) string) *HistoryLoader {
	return &HistoryLoader{backend: b, store: store, notifier: n, clean: clean}
}

// Load fetches the history of participantID for the selection gen.
func (h *HistoryLoader) Load(ctx context.Context, token string, gen uint64, participantID model.ID) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.mu.Lock()
	if gen < h.gen {
		h.mu.Unlock()
		return nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	h.gen, h.cancel = gen, cancel
	h.mu.Unlock()

	if token == "" {
		if h.store.FailLoad(gen) {
			h.notifier.Notify(failure("messages", backend.ErrUnauthorized))
		}
		return backend.ErrUnauthorized
	}

	msgs, err := h.backend.History(ctx, token, participantID)
	if err != nil {
		if !h.store.Current(gen) {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			h.store.FailLoad(gen)
			return err
		}
		slog.WarnContext(ctx, "history load failed", "participant", participantID, "error", err)
		if h.store.FailLoad(gen) {
			h.notifier.Notify(failure("messages", err))
		}
		return err
	}

	for i := range msgs {
		msgs[i].Body = h.clean(msgs[i].Body)
	}
	if !h.store.ReplaceMessages(gen, msgs) {
		slog.DebugContext(ctx, "dropped stale history", "participant", participantID)
	}
	return nil
}

// Stop cancels the in-flight load, if any.
func (h *HistoryLoader) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}
