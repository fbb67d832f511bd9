package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDrainTimeout is returned when in-flight work did not unwind inside the
// configured window.
var ErrDrainTimeout = errors.New("drain timeout")

// LifecycleRunner blocks in Run until its context is cancelled, then gives
// the drainer a bounded window to finish in-flight sessions.
type LifecycleRunner struct {
	state   atomic.Int32
	drainer Drainer
	hooks   Hooks
	window  time.Duration

	stopOnce sync.Once
	stopErr  error
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, window time.Duration) *LifecycleRunner {
	if window <= 0 {
		window = 10 * time.Second
	}
	return &LifecycleRunner{
		drainer: drainer,
		hooks:   hooks,
		window:  window,
	}
}

// Run starts the process and blocks until ctx is cancelled, then drains.
// It can be called once per runner.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return errors.New("runner already started")
	}
	PrintBanner()
	if ctx == nil {
		ctx = context.Background()
	}
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.state.Store(int32(StateRunning))

	<-ctx.Done()
	return r.shutdown()
}

// Stop drains immediately, without waiting for the run context.
func (r *LifecycleRunner) Stop() error {
	return r.shutdown()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) shutdown() error {
	r.stopOnce.Do(func() {
		r.state.Store(int32(StateDraining))
		r.stopErr = r.drainBounded()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
	})
	return r.stopErr
}

func (r *LifecycleRunner) drainBounded() error {
	if r.drainer == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.drainer.Drain()
	}()
	select {
	case <-done:
		return nil
	case <-time.After(r.window):
		return ErrDrainTimeout
	}
}
