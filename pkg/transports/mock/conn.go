// Package mock provides a scriptable transport connection for session tests.
package mock

import (
	"sync"

	"github.com/emora-ai/emora/pkg/frames"
	"github.com/emora-ai/emora/pkg/transports"
)

type Conn struct {
	recvCh chan frames.Frame

	mu       sync.Mutex
	sent     []transports.Envelope
	closed   bool
	sendErr  error
	notifyCh chan transports.Envelope
}

func NewConn() *Conn {
	return &Conn{
		recvCh:   make(chan frames.Frame, 256),
		notifyCh: make(chan transports.Envelope, 256),
	}
}

func (c *Conn) Recv() <-chan frames.Frame { return c.recvCh }

func (c *Conn) Send(env transports.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transports.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, env)
	select {
	case c.notifyCh <- env:
	default:
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
	}
	return nil
}

// Push injects an inbound frame as if the client had produced it.
func (c *Conn) Push(f frames.Frame) { c.recvCh <- f }

// PushAudio injects one binary audio chunk.
func (c *Conn) PushAudio(data []byte) {
	c.Push(frames.NewAudioFrame("", 0, data, 16000, 1, nil))
}

// PushPlaybackFinished injects the client playback acknowledgment.
func (c *Conn) PushPlaybackFinished() {
	c.Push(frames.NewControlFrame("", 0, frames.ControlPlaybackFinished, nil))
}

// Disconnect closes the inbound stream, simulating a client disconnect, and
// makes subsequent Sends fail.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()
	if !alreadyClosed {
		close(c.recvCh)
	}
}

// FailSends makes Send return err without closing the inbound stream.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Sent returns a snapshot of everything sent so far.
func (c *Conn) Sent() []transports.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transports.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentTypes returns the ordered event types sent so far.
func (c *Conn) SentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Type)
	}
	return out
}

// Notifications exposes sends as they happen, for tests that react to
// protocol events (e.g. pushing audio once "listening" is emitted).
func (c *Conn) Notifications() <-chan transports.Envelope { return c.notifyCh }

var _ transports.Conn = (*Conn)(nil)
