package session

import (
	"bytes"
	"sync"

	"github.com/emora-ai/emora/pkg/frames"
)

// capture is the session's raw-audio accumulator. Ingress appends every
// inbound chunk regardless of turn phase so the persisted recording is the
// verbatim microphone stream, not only what STT consumed.
type capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *capture) append(b []byte) {
	c.mu.Lock()
	c.buf.Write(b)
	c.mu.Unlock()
}

func (c *capture) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out
}

// runIngress demultiplexes the connection's inbound frames: binary audio
// into the bounded audio queue, playback acknowledgments into the control
// queue. It runs for the connection's lifetime, independent of turn phase.
// Closing both queues is the sentinel that unblocks any waiting consumer
// after a disconnect.
func (s *Session) runIngress() {
	defer close(s.audioQ)
	defer close(s.controlQ)

	recv := s.conn.Recv()
	for {
		select {
		case <-s.done:
			return
		case f, ok := <-recv:
			if !ok {
				s.log.Debug("ingress_closed")
				return
			}
			switch fr := f.(type) {
			case frames.AudioFrame:
				s.capture.append(fr.RawPayload())
				// Bounded blocking backpressure on a full queue; dropping
				// here would corrupt the transcript.
				select {
				case s.audioQ <- fr:
				case <-s.done:
					frames.ReleaseAudioFrame(fr)
					return
				}
			case frames.ControlFrame:
				select {
				case s.controlQ <- fr.Code():
				default:
					s.log.Debug("control_event_dropped", "code", string(fr.Code()))
				}
			}
		}
	}
}

// drainStaleAudio discards every queued chunk, returning the count. Called
// at the Listen boundary so audio captured while the question was playing is
// never fed to the next STT session.
func (s *Session) drainStaleAudio() int {
	n := 0
	for {
		select {
		case f, ok := <-s.audioQ:
			if !ok {
				return n
			}
			frames.ReleaseAudioFrame(f)
			n++
		default:
			return n
		}
	}
}

// drainControl discards stale acknowledgments left over from a previous
// turn, e.g. one that arrived after its timeout already fired.
func (s *Session) drainControl() {
	for {
		select {
		case _, ok := <-s.controlQ:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
