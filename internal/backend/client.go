// Package backend is the REST client for the external marketplace backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/johndosdos/venuechat/internal/metrics"
	"github.com/johndosdos/venuechat/internal/model"
)

// ErrUnauthorized is returned when no token is available or the backend
// rejects it. Callers should ask the user to log in again rather than retry.
var ErrUnauthorized = errors.New("internal/backend: unauthorized")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("internal/backend: %s: unexpected status %d: %s", e.Op, e.Code, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the backend rooted at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListParticipants returns the counterparts the role can chat with, in
// server order.
func (c *Client) ListParticipants(ctx context.Context, token string, role model.Role) ([]model.Participant, error) {
	var out []model.Participant
	q := url.Values{"role": {string(role)}}
	err := c.do(ctx, "list_participants", http.MethodGet, "/conversations?"+q.Encode(), token, nil, &out)
	return out, err
}

// ListLastMessages returns the last message exchanged with each counterpart.
func (c *Client) ListLastMessages(ctx context.Context, token string, role model.Role) ([]model.LastMessageInfo, error) {
	var out []model.LastMessageInfo
	q := url.Values{"role": {string(role)}}
	err := c.do(ctx, "list_last_messages", http.MethodGet, "/conversations/last-messages?"+q.Encode(), token, nil, &out)
	return out, err
}

// History returns the ordered messages between the token's user and the
// participant.
func (c *Client) History(ctx context.Context, token string, participantID model.ID) ([]model.Message, error) {
	var out []model.Message
	err := c.do(ctx, "history", http.MethodGet, "/messages/"+url.PathEscape(participantID.String()), token, nil, &out)
	return out, err
}

// Send persists a message for the participant and returns the stored record.
func (c *Client) Send(ctx context.Context, token string, participantID model.ID, body string) (model.Message, error) {
	var out model.Message
	payload := struct {
		Message string `json:"message"`
	}{body}
	err := c.do(ctx, "send", http.MethodPost, "/messages/send/"+url.PathEscape(participantID.String()), token, payload, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) error {
	if token == "" {
		return ErrUnauthorized
	}

	var body io.Reader
	if in != nil {
		p, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("internal/backend: %s: could not encode payload: %w", op, err)
		}
		body = bytes.NewReader(p)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("internal/backend: %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveBackend(op, 0, started)
		return fmt.Errorf("internal/backend: %s: %w", op, err)
	}
	defer res.Body.Close()
	metrics.ObserveBackend(op, res.StatusCode, started)

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case res.StatusCode < 200 || res.StatusCode > 299:
		p, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &StatusError{Op: op, Code: res.StatusCode, Body: string(bytes.TrimSpace(p))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("internal/backend: %s: could not decode response: %w", op, err)
	}
	return nil
}
