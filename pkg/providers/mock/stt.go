package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emora-ai/emora/pkg/adapters/stt"
	"github.com/emora-ai/emora/pkg/frames"
)

type STTConfig struct {
	SessionID         string
	Transcript        string
	InterimTranscript string
	EmitInterim       bool
	// EmitOnStart emits the scripted events immediately at Start instead of
	// waiting for the first audio chunk, simulating a user who answered (or
	// stayed silent) without the test pushing audio.
	EmitOnStart bool
	// FailStart makes Start return this error.
	FailStart error
	// EmitStop emits a provider stop instead of a committed transcript,
	// simulating a provider error mid-phase.
	EmitStop bool
}

// StreamingSTT is a scripted STT session: the first audio chunk (or Start,
// with EmitOnStart) triggers the configured transcript events followed by an
// utterance-end signal.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan frames.Frame
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	emitted bool
	sent    [][]byte
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	return &StreamingSTT{cfg: cfg, out: make(chan frames.Frame, 16)}
}

// NewSTTFactory returns a factory that hands out one scripted session per
// listening phase, in order; the last script repeats once exhausted.
func NewSTTFactory(scripts ...STTConfig) stt.Factory {
	var mu sync.Mutex
	i := 0
	return func(cfg stt.Config) stt.StreamingSTT {
		mu.Lock()
		defer mu.Unlock()
		script := STTConfig{}
		if len(scripts) > 0 {
			if i >= len(scripts) {
				script = scripts[len(scripts)-1]
			} else {
				script = scripts[i]
			}
			i++
		}
		script.SessionID = cfg.SessionID
		return NewSTT(script)
	}
}

func (s *StreamingSTT) Name() string { return "mock_stt" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if s.cfg.FailStart != nil {
		return s.cfg.FailStart
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	if s.cfg.EmitOnStart {
		s.emitScript()
	}
	return nil
}

func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	s.started = false
	return nil
}

func (s *StreamingSTT) SendAudio(frame frames.AudioFrame) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.New("not started")
	}
	s.sent = append(s.sent, frame.Data())
	s.mu.Unlock()
	s.emitScript()
	return nil
}

// SentAudio returns every payload forwarded to this session.
func (s *StreamingSTT) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *StreamingSTT) Results() <-chan frames.Frame { return s.out }

func (s *StreamingSTT) emitScript() {
	s.mu.Lock()
	if s.emitted || s.out == nil {
		s.mu.Unlock()
		return
	}
	s.emitted = true
	out := s.out
	s.mu.Unlock()

	if s.cfg.EmitStop {
		out <- frames.NewControlFrame(s.cfg.SessionID, time.Now().UnixNano(), frames.ControlStop, map[string]string{
			frames.MetaSource: "stt",
			frames.MetaReason: "provider_error",
		})
		return
	}

	if s.cfg.EmitInterim {
		interim := s.cfg.InterimTranscript
		if interim == "" {
			interim = s.cfg.Transcript
		}
		out <- frames.NewTextFrame(s.cfg.SessionID, time.Now().UnixNano(), interim, map[string]string{
			frames.MetaSource:  "stt",
			frames.MetaIsFinal: "false",
		})
	}

	if s.cfg.Transcript != "" {
		out <- frames.NewTextFrame(s.cfg.SessionID, time.Now().UnixNano(), s.cfg.Transcript, map[string]string{
			frames.MetaSource:  "stt",
			frames.MetaIsFinal: "true",
		})
	}

	out <- frames.NewControlFrame(s.cfg.SessionID, time.Now().UnixNano(), frames.ControlUtteranceEnd, map[string]string{
		frames.MetaSource: "stt",
		frames.MetaReason: "utterance_end",
	})
}

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
