// Package main our entry point.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johndosdos/venuechat/internal/backend"
	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/config"
	"github.com/johndosdos/venuechat/internal/handler"
	ratelimiter "github.com/johndosdos/venuechat/internal/rate_limiter"
	"github.com/johndosdos/venuechat/internal/realtime"
	ws "github.com/johndosdos/venuechat/internal/websocket"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Starting application...")

	// hub.Run evicts idle chat sessions until shutdown.
	hub := ws.NewHub(
		backend.New(cfg.Backend.URL, cfg.Backend.Timeout),
		ws.RealtimeDialer(realtime.Config{
			URL:        cfg.Backend.SocketURL,
			MaxRetries: cfg.Realtime.MaxRetries,
			RetryDelay: cfg.Realtime.RetryDelay,
		}),
		chat.Options{
			GroupThreshold: cfg.Chat.GroupThreshold,
			SendPerMinute:  cfg.Chat.SendPerMinute,
		},
		cfg.Chat.SessionTTL,
	)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	limiter := ratelimiter.New(ratelimiter.Options{PerMinute: cfg.Chat.HTTPPerMinute})
	go limiter.Run(ctx)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handler.NewRouter(hub, handler.RouterOpts{JWTSecret: cfg.JWTSecret, LoginURL: cfg.LoginURL, Limiter: limiter}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		log.Printf("Server starting at 0.0.0.0:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}

	// Closes every session and its realtime channel.
	<-hubDone

	log.Println("Server stopped")
}
