// Package ratelimiter throttles chat requests. Authenticated requests are
// counted per user, so every tab and device of one user shares a budget;
// anything else is counted per client IP.
package ratelimiter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	viewChat "github.com/johndosdos/venuechat/components/chat"
	"github.com/johndosdos/venuechat/internal/auth"
	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/metrics"
)

const msgThrottled = "Too many requests. Try again later."

type Options struct {
	// PerMinute is the sustained request rate of one key.
	PerMinute int
	// Burst defaults to PerMinute/6, the same shape as the send limit.
	Burst int
	// Idle keys are forgotten after TTL; Run checks every Interval.
	TTL      time.Duration
	Interval time.Duration
}

type key struct {
	kind  string
	value string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	interval time.Duration

	mu      sync.Mutex
	buckets map[key]*bucket
}

func New(opts Options) *Limiter {
	if opts.PerMinute <= 0 {
		opts.PerMinute = 300
	}
	if opts.Burst <= 0 {
		opts.Burst = max(1, opts.PerMinute/6)
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Limiter{
		limit:    rate.Every(time.Minute / time.Duration(opts.PerMinute)),
		burst:    opts.Burst,
		ttl:      opts.TTL,
		interval: opts.Interval,
		buckets:  make(map[key]*bucket),
	}
}

// Run forgets idle keys until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

func (l *Limiter) evict(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

func (l *Limiter) allow(k key, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[k]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[k] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// keyFor counts the request against its user when the auth middleware ran
// first, and against its client address otherwise. chi's RealIP middleware
// has already resolved proxy headers into r.RemoteAddr.
func keyFor(r *http.Request) key {
	if id, err := auth.GetIdentityFromContext(r.Context()); err == nil && id.UserID != "" {
		return key{kind: "user", value: id.UserID.String()}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return key{kind: "ip", value: host}
}

// Middleware rejects requests over budget. htmx requests keep the page as is
// and get a toast instead of an error page.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := keyFor(r)
		if l.allow(k, time.Now()) {
			next.ServeHTTP(w, r)
			return
		}

		metrics.IncThrottled(k.kind)
		slog.WarnContext(r.Context(), "request throttled",
			k.kind, k.value,
			"path", r.URL.Path,
			"method", r.Method)

		if r.Header.Get("HX-Request") != "true" {
			http.Error(w, msgThrottled, http.StatusTooManyRequests)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("HX-Reswap", "none")
		n := chat.Notification{Level: chat.LevelWarning, Text: msgThrottled}
		if err := viewChat.Toast(n).Render(r.Context(), w); err != nil {
			slog.ErrorContext(r.Context(), "failed to render toast", "error", err)
		}
	})
}
