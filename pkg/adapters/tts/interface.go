package tts

import (
	"context"

	"github.com/emora-ai/emora/pkg/frames"
)

// StreamingTTS defines the contract for any TTS vendor implementation.
// Audio chunks must be emitted on Results in the order the provider
// produced them.
type StreamingTTS interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the TTS connection.
	Start(ctx context.Context) error
	// Close shuts down the TTS connection.
	Close() error
	// SendText sends text to be synthesized.
	SendText(text string) error
	// Flush marks end of input so the provider finalizes the current
	// synthesis. A ControlSynthesisComplete frame follows the last chunk.
	Flush()
	// Results returns a channel of audio/control frames.
	Results() <-chan frames.Frame
}

// Config contains vendor-agnostic TTS configuration.
type Config struct {
	SessionID  string
	SampleRate int
	Channels   int
}

// Factory opens a new provider connection for one spoken question.
type Factory func(cfg Config) StreamingTTS
