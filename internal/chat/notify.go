package chat

import (
	"errors"

	"github.com/johndosdos/venuechat/internal/backend"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a short, non-blocking message for the user. Views render
// them as toasts.
type Notification struct {
	Level Level
	Text  string
}

// Notifier receives notifications raised by loaders, the sender and the
// realtime handlers.
type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

const msgLogin = "Please log in to continue."

// failure turns a backend error into the notification shown for it.
func failure(what string, err error) Notification {
	if errors.Is(err, backend.ErrUnauthorized) {
		return Notification{Level: LevelWarning, Text: msgLogin}
	}
	return Notification{Level: LevelWarning, Text: "Could not load " + what + ". Please try again."}
}
