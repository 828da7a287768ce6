package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johndosdos/venuechat/internal"
	ratelimiter "github.com/johndosdos/venuechat/internal/rate_limiter"
	ws "github.com/johndosdos/venuechat/internal/websocket"
)

type RouterOpts struct {
	JWTSecret string
	LoginURL  string
	// Limiter is optional.
	Limiter *ratelimiter.Limiter
}

// NewRouter wires every route of the chat server.
func NewRouter(hub *ws.Hub, opts RouterOpts) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)

	fs := http.FileServer(http.Dir("static"))
	r.Handle("/static/*", http.StripPrefix("/static/", fs))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", ServeRoot(opts.JWTSecret, opts.LoginURL))

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return internal.Middleware(next, opts.JWTSecret, opts.LoginURL)
		})
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}

		r.Get("/chat", ServeChat(hub))
		r.Get("/venues/{venueID}/chat", ServeChat(hub))
		r.Get("/chat/conversations", ServeConversations(hub))
		r.Post("/chat/conversations/{participantID}/select", ServeSelect(hub))
		r.Post("/chat/deselect", ServeDeselect(hub))
		r.Post("/chat/messages", ServeSendMessage(hub))
		r.Post("/chat/typing", ServeTyping(hub))
		r.Get("/ws", ServeWs(hub))
	})

	return r
}
