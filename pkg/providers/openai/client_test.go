package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emora-ai/emora/pkg/errorsx"
	"github.com/emora-ai/emora/pkg/resilience"
)

const songReply = `{"choices":[{"message":{"content":"{\"song\":\"Weightless by Marconi Union\"}"}}]}`

func fastClient(baseURL string) *Client {
	c := NewClient(Config{APIKey: "test", Model: "gpt-4o-mini", BaseURL: baseURL})
	c.retry = resilience.NewPolicy(2, time.Millisecond)
	return c
}

func TestCompleteJSONRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(songReply))
	}))
	defer srv.Close()

	var out struct {
		Song string `json:"song"`
	}
	if err := fastClient(srv.URL).completeJSON(context.Background(), "sys", "user", &out); err != nil {
		t.Fatalf("completeJSON: %v", err)
	}
	if out.Song != "Weightless by Marconi Union" {
		t.Fatalf("song = %q", out.Song)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestCompleteJSONExhaustedRateLimitKeepsReason(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out map[string]any
	err := fastClient(srv.URL).completeJSON(context.Background(), "sys", "user", &out)
	if !errorsx.HasReason(err, errorsx.ReasonRateLimit) {
		t.Fatalf("err = %v, want rate limit reason", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestCompleteJSONDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"invalid model"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	var out map[string]any
	err := fastClient(srv.URL).completeJSON(context.Background(), "sys", "user", &out)
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}
