// Command loadtest drives a running chat server with simulated users. Each
// user opens the browser websocket, selects a counterpart and sends messages
// through the same HTMX endpoints the page uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/venuechat/internal/auth"
	"github.com/johndosdos/venuechat/internal/model"
)

type stats struct {
	sent   atomic.Int64
	failed atomic.Int64
	frames atomic.Int64
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}

	var (
		addr     = flag.String("addr", "http://localhost:8080", "chat server base URL")
		users    = flag.Int("users", 10, "number of simulated users")
		peer     = flag.String("peer", "", "participant id every user chats with")
		messages = flag.Int("messages", 5, "messages sent per user")
		interval = flag.Duration("interval", time.Second, "pause between messages")
	)
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}
	if *peer == "" {
		log.Fatal("-peer is required")
	}

	var st stats
	start := time.Now()

	g, ctx := errgroup.WithContext(context.Background())
	for i := range *users {
		id := model.ID(fmt.Sprintf("loadtest-%d", i))
		g.Go(func() error {
			token, err := auth.MakeJWT(id, model.RoleUser, secret, time.Hour)
			if err != nil {
				return err
			}
			return runUser(ctx, *addr, token, model.ID(*peer), *messages, *interval, &st)
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("load test aborted: %v", err)
	}

	log.Printf("users=%d sent=%d failed=%d frames=%d elapsed=%s",
		*users, st.sent.Load(), st.failed.Load(), st.frames.Load(), time.Since(start).Round(time.Millisecond))
}

func runUser(ctx context.Context, addr, token string, peer model.ID, n int, interval time.Duration, st *stats) error {
	cookie := (&http.Cookie{Name: "jwt", Value: token}).String()

	header := http.Header{}
	header.Add("Cookie", cookie)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(addr, "http")+"/ws", &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.CloseNow()

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	go func() {
		for {
			if _, _, err := conn.Read(readCtx); err != nil {
				return
			}
			st.frames.Add(1)
		}
	}()

	client := &http.Client{Timeout: 15 * time.Second}
	post := func(path string, form url.Values) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+path, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Cookie", cookie)
		req.Header.Set("HX-Request", "true")

		res, err := client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode >= 300 {
			return fmt.Errorf("POST %s: %s", path, res.Status)
		}
		return nil
	}

	if err := post("/chat/conversations/"+url.PathEscape(peer.String())+"/select", nil); err != nil {
		return fmt.Errorf("select: %w", err)
	}

	for i := range n {
		err := post("/chat/messages", url.Values{"message": {fmt.Sprintf("load test message %d", i+1)}})
		if err != nil {
			st.failed.Add(1)
			log.Printf("send failed: %v", err)
		} else {
			st.sent.Add(1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")
	return nil
}
