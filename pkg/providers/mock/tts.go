package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emora-ai/emora/pkg/adapters/tts"
	"github.com/emora-ai/emora/pkg/frames"
)

type TTSConfig struct {
	SessionID  string
	SampleRate int
	Channels   int
	ChunkCount int
	// FailStart makes Start return this error.
	FailStart error
}

// StreamingTTS emits a deterministic set of silent audio chunks per SendText,
// completing synthesis on Flush.
type StreamingTTS struct {
	cfg     TTSConfig
	out     chan frames.Frame
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	spoken  []string
}

func NewTTS(cfg TTSConfig) *StreamingTTS {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.ChunkCount == 0 {
		cfg.ChunkCount = 2
	}
	return &StreamingTTS{
		cfg: cfg,
		out: make(chan frames.Frame, 32),
	}
}

// NewTTSFactory returns a factory producing one scripted synthesis session
// per spoken question.
func NewTTSFactory(cfg TTSConfig) tts.Factory {
	return func(c tts.Config) tts.StreamingTTS {
		script := cfg
		script.SessionID = c.SessionID
		return NewTTS(script)
	}
}

func (s *StreamingTTS) Name() string { return "mock_tts" }

func (s *StreamingTTS) Start(ctx context.Context) error {
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
	return nil
}

func (s *StreamingTTS) Close() error {
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

func (s *StreamingTTS) SendText(text string) error {
	s.mu.Lock()
	started := s.started
	if started {
		s.spoken = append(s.spoken, text)
	}
	out := s.out
	s.mu.Unlock()
	if !started {
		return errors.New("not started")
	}

	pcm := make([]byte, 320)
	meta := map[string]string{frames.MetaSource: "tts"}
	for i := 0; i < s.cfg.ChunkCount; i++ {
		out <- frames.NewAudioFrame(s.cfg.SessionID, time.Now().UnixNano(), pcm, s.cfg.SampleRate, s.cfg.Channels, meta)
	}
	return nil
}

func (s *StreamingTTS) Flush() {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	if out == nil {
		return
	}
	out <- frames.NewControlFrame(s.cfg.SessionID, time.Now().UnixNano(), frames.ControlSynthesisComplete, map[string]string{
		frames.MetaSource: "tts",
		frames.MetaReason: "flush",
	})
}

// Spoken returns every text passed to SendText.
func (s *StreamingTTS) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.spoken))
	copy(out, s.spoken)
	return out
}

func (s *StreamingTTS) Results() <-chan frames.Frame { return s.out }

var _ tts.StreamingTTS = (*StreamingTTS)(nil)
