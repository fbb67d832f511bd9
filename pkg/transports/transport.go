// Package transports defines the I/O boundary between a dialogue session and
// its client. A Conn carries inbound binary audio and control frames and
// outbound JSON protocol events.
package transports

import (
	"errors"

	"github.com/emora-ai/emora/pkg/frames"
)

// ErrClosed is returned by Send once the underlying connection is gone.
var ErrClosed = errors.New("transport connection closed")

// Conn is one live client connection. Recv delivers audio and control frames
// for the connection's lifetime and is closed on disconnect, which acts as
// the sentinel unblocking any consumer.
type Conn interface {
	Recv() <-chan frames.Frame
	Send(env Envelope) error
	Close() error
}

// Client protocol event types.
const (
	EventQuestion            = "question"
	EventQuestionAudio       = "question_audio_base_64"
	EventListening           = "listening"
	EventAnalyzing           = "analyzing"
	EventTranscript          = "transcript"
	EventEmptyTranscript     = "empty_transcript"
	EventIntermediateResult  = "intermediate_result"
	EventResult              = "result"
	EventMusicRecommendation = "music_recommendation"
	EventError               = "error"

	// Inbound control frame reported by the client when question audio has
	// finished playing.
	InboundPlaybackFinished = "audio_playback_finished"
)

// Envelope is the single outbound message shape; unused fields are omitted
// per event type.
type Envelope struct {
	Type             string             `json:"type"`
	Text             string             `json:"text,omitempty"`
	Message          string             `json:"message,omitempty"`
	Chunk            string             `json:"chunk,omitempty"`
	Transcript       string             `json:"transcript,omitempty"`
	IsFinal          *bool              `json:"is_final,omitempty"`
	Mood             string             `json:"mood,omitempty"`
	Confidence       *float64           `json:"confidence,omitempty"`
	NegativeEmotions map[string]float64 `json:"negative_emotion_percentages,omitempty"`
	Music            string             `json:"music,omitempty"`
}

// Float returns a pointer for optional numeric envelope fields.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer for optional boolean envelope fields. Transcript
// events always set is_final explicitly, even when false.
func Bool(v bool) *bool { return &v }
