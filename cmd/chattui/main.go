// Command chattui is a terminal chat client for the venue marketplace. It
// runs the same messaging core as the web chat, in-process.
package main

import (
	"io"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/johndosdos/venuechat/internal/auth"
	"github.com/johndosdos/venuechat/internal/backend"
	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/config"
	"github.com/johndosdos/venuechat/internal/realtime"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The terminal belongs to the UI; logs go to a file if asked for.
	var logOut io.Writer = io.Discard
	if cfg.Client.LogFile != "" {
		f, err := os.OpenFile(cfg.Client.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.LogLevel})))

	id, err := auth.ParseUnverified(cfg.Client.Token)
	if err != nil {
		log.Fatalf("CHAT_TOKEN is not a usable token: %v", err)
	}

	s := chat.NewSession(id, backend.New(cfg.Backend.URL, cfg.Backend.Timeout), chat.Options{
		GroupThreshold: cfg.Chat.GroupThreshold,
		SendPerMinute:  cfg.Chat.SendPerMinute,
	})
	if cfg.Backend.SocketURL != "" {
		s.Attach(realtime.Open(realtime.Config{
			URL:        cfg.Backend.SocketURL,
			MaxRetries: cfg.Realtime.MaxRetries,
			RetryDelay: cfg.Realtime.RetryDelay,
		}, id, s))
	}
	defer s.Close()

	p := tea.NewProgram(newApp(s), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("chattui: %v", err)
	}
}
