package stt

import (
	"context"

	"github.com/emora-ai/emora/pkg/frames"
)

// StreamingSTT defines the contract for any STT vendor implementation.
// One connection serves exactly one listening phase: the session opens a
// fresh instance per phase and closes it once the utterance is committed.
type StreamingSTT interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the STT connection.
	Start(ctx context.Context) error
	// Close shuts down the STT connection.
	Close() error
	// SendAudio sends audio frames to the STT service.
	SendAudio(frame frames.AudioFrame) error
	// Results returns a channel of transcription/control frames. Partial
	// transcripts are TextFrames with is_final=false; committed transcripts
	// are final TextFrames followed by a ControlUtteranceEnd frame once VAD
	// detects trailing silence. Provider errors surface as ControlStop.
	Results() <-chan frames.Frame
}

// Config contains vendor-agnostic STT configuration, including the VAD
// options that decide when a spoken answer is complete.
type Config struct {
	SessionID  string
	SampleRate int
	Encoding   string
	Language   string

	// VADSilenceThresholdMS is the trailing-silence duration that ends an
	// utterance.
	VADSilenceThresholdMS int
	// VADActivationThreshold is the signal-energy threshold for speech.
	VADActivationThreshold float64
	MinSpeechDurationMS    int
	MinSilenceDurationMS   int
}

// Factory opens a new provider connection for one listening phase.
type Factory func(cfg Config) StreamingSTT
