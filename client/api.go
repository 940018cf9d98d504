package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-notify/internal/notify"
)

// API is the slice of the REST surface the client consumes. The reconciler
// and janitor depend on this interface, not the HTTP implementation.
type API interface {
	ListNotifications(ctx context.Context, page, size int) (*notify.Page, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	MarkConversationRead(ctx context.Context, otherID int) error
	GetConversation(ctx context.Context, otherID, page, size int) (*notify.Page, error)
	DeleteRead(ctx context.Context) error
}

// HTTPError reports a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// HTTPAPI talks to the server's REST surface with a bearer token and bounded
// retries on transient failures. 4xx responses are never retried.
type HTTPAPI struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPAPI(baseURL, token string, httpClient *http.Client) *HTTPAPI {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPAPI{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

// SetToken swaps the bearer token after a re-login.
func (c *HTTPAPI) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

func (c *HTTPAPI) ListNotifications(ctx context.Context, page, size int) (*notify.Page, error) {
	var out notify.Page
	path := fmt.Sprintf("/api/notifications?page=%d&size=%d", page, size)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPAPI) UnreadCount(ctx context.Context) (int, error) {
	var out notify.CountPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/notifications/unread/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *HTTPAPI) MarkRead(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", id), nil, nil)
}

func (c *HTTPAPI) MarkAllRead(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPut, "/api/notifications/read-all", nil, nil)
}

func (c *HTTPAPI) MarkConversationRead(ctx context.Context, otherID int) error {
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/conversation/%d/read", otherID), nil, nil)
}

func (c *HTTPAPI) GetConversation(ctx context.Context, otherID, page, size int) (*notify.Page, error) {
	var out notify.Page
	path := fmt.Sprintf("/api/conversation/%d?page=%d&size=%d", otherID, page, size)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPAPI) DeleteRead(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/notifications/read", nil, nil)
}

func (c *HTTPAPI) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, capDelay(c.baseDelay<<(attempt-1), c.maxDelay)); err != nil {
				return err
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &TransportError{Op: method + " " + path, Err: err}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = &TransportError{Op: method + " " + path, Err: readErr}
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
			continue
		}
		if resp.StatusCode >= 400 {
			return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return nil
	}
	return lastErr
}

func capDelay(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
