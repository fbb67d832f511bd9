package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/emora-ai/emora/pkg/errorsx"
)

func TestDoRetriesRateLimitUntilSuccess(t *testing.T) {
	p := NewPolicy(3, time.Millisecond)
	attempts := 0
	err := p.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errorsx.Wrap(errors.New("slow down"), errorsx.ReasonRateLimit)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := NewPolicy(3, time.Millisecond)
	attempts := 0
	want := errorsx.Wrap(errors.New("missing field"), errorsx.ReasonValidation)
	err := p.Do(context.Background(), func() error {
		attempts++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	p := NewPolicy(2, time.Millisecond)
	attempts := 0
	err := p.Do(context.Background(), func() error {
		attempts++
		return errorsx.Wrap(errors.New("slow down"), errorsx.ReasonRateLimit)
	})
	if !errorsx.HasReason(err, errorsx.ReasonRateLimit) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDoAbortsBackoffOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPolicy(5, time.Hour)
	attempts := 0
	err := p.Do(ctx, func() error {
		attempts++
		return errorsx.Wrap(errors.New("slow down"), errorsx.ReasonRateLimit)
	})
	if err == nil {
		t.Fatalf("expected the attempt error back")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestRetryableClassification(t *testing.T) {
	if Retryable(nil) {
		t.Fatalf("nil must not be retryable")
	}
	if !Retryable(errorsx.Wrap(errors.New("slow down"), errorsx.ReasonRateLimit)) {
		t.Fatalf("rate limit must be retryable")
	}
	if Retryable(errors.New("bad request")) {
		t.Fatalf("plain errors must not be retryable")
	}
	timeout := &net.DNSError{Err: "timeout", IsTimeout: true}
	if !Retryable(fmt.Errorf("dial: %w", timeout)) {
		t.Fatalf("network timeouts must be retryable")
	}
	refused := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	if !Retryable(fmt.Errorf("post: %w", refused)) {
		t.Fatalf("transport failures must be retryable")
	}
}
