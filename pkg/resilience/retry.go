// Package resilience retries transient provider failures. Retries live
// inside the provider adapters; the session loop still sees a single
// terminal error when every attempt is exhausted.
package resilience

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/emora-ai/emora/pkg/errorsx"
)

// Policy retries an operation on transient failures with a fixed backoff.
type Policy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewPolicy(maxRetries int, backoff time.Duration) Policy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return Policy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn, retrying up to MaxRetries extra attempts while the error is
// retryable. Non-retryable errors return immediately; context cancellation
// aborts the backoff wait.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !Retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.Backoff):
		}
	}
}

// Retryable reports whether another attempt is worthwhile: provider rate
// limits and transient transport failures. Malformed replies and other
// client errors are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errorsx.HasReason(err, errorsx.ReasonRateLimit) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var op *net.OpError
	return errors.As(err, &op)
}
