package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAPI(srv *httptest.Server) *HTTPAPI {
	api := NewHTTPAPI(srv.URL, "test-token", srv.Client())
	api.baseDelay = time.Millisecond
	api.maxDelay = 5 * time.Millisecond
	return api
}

func TestHTTPAPIRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"count": 4}`))
	}))
	defer srv.Close()

	count, err := newTestAPI(srv).UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4", count)
	}
	if hits.Load() != 3 {
		t.Fatalf("requests = %d, want 3 (two retries)", hits.Load())
	}
}

func TestHTTPAPIGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestAPI(srv).MarkAllRead(context.Background())
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("err = %v, want HTTPError 500", err)
	}
	if hits.Load() != 4 {
		t.Fatalf("requests = %d, want 4 (initial + 3 retries)", hits.Load())
	}
}

func TestHTTPAPIDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no such record", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestAPI(srv).MarkRead(context.Background(), 99)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want HTTPError 404", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("requests = %d, want 1 (4xx is final)", hits.Load())
	}
}

func TestHTTPAPISendsBearerToken(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"count": 0}`))
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	if _, err := api.UnreadCount(context.Background()); err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if got.Load() != "Bearer test-token" {
		t.Fatalf("Authorization = %q, want bearer header", got.Load())
	}

	api.SetToken("rotated")
	api.UnreadCount(context.Background())
	if got.Load() != "Bearer rotated" {
		t.Fatalf("Authorization = %q after SetToken", got.Load())
	}
}

func TestHTTPAPIRetryRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	api := newTestAPI(srv)
	api.baseDelay = time.Minute // force the retry sleep to be the blocker
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := api.MarkAllRead(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("cancellation did not interrupt the retry sleep")
	}
}
