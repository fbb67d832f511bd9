package session

import "time"

// Defaults for the conversation loop. The stopping thresholds are named
// configuration, not literals, because deployments tune them.
const (
	DefaultOpeningQuestion    = "Hello! How are you feeling today?"
	DefaultRetryPrompt        = "I'm sorry, I didn't catch that. Could you say it again?"
	DefaultMusicTrigger       = "play me some music"
	DefaultStopConfidence     = 0.9
	DefaultReminderConfidence = 0.8
	DefaultMaxDirectQuestions = 5
	DefaultPlaybackAckTimeout = 30 * time.Second
	DefaultMinSendInterval    = 5 * time.Millisecond
	DefaultClosingGrace       = 500 * time.Millisecond
	DefaultAudioQueueSize     = 256
	DefaultControlQueueSize   = 8
	DefaultSampleRate         = 16000

	DefaultVADSilenceThresholdMS  = 3000
	DefaultVADActivationThreshold = 0.4
	DefaultMinSpeechDurationMS    = 100
	DefaultMinSilenceDurationMS   = 100

	DefaultEmotion           = "Calm"
	DefaultEmotionConfidence = 0.5
)

// Config tunes one conversation session.
type Config struct {
	OpeningQuestion string
	RetryPrompt     string
	// MusicTrigger ends the session with a recommendation when the answer
	// contains it, matched case-insensitively.
	MusicTrigger string

	// StopConfidence ends the loop once an analyzed answer reaches it.
	StopConfidence float64
	// ReminderConfidence arms the one-time music reminder passed to the
	// question generator.
	ReminderConfidence float64
	MaxDirectQuestions int

	PlaybackAckTimeout time.Duration
	// MinSendInterval throttles audio forwarding to the STT provider.
	MinSendInterval time.Duration
	// ClosingGrace holds the connection open briefly after the final event so
	// the client drains its receive buffer.
	ClosingGrace time.Duration

	AudioQueueSize   int
	ControlQueueSize int

	SampleRate int
	Channels   int
	Encoding   string
	Language   string

	VADSilenceThresholdMS  int
	VADActivationThreshold float64
	MinSpeechDurationMS    int
	MinSilenceDurationMS   int
}

func (c Config) withDefaults() Config {
	if c.OpeningQuestion == "" {
		c.OpeningQuestion = DefaultOpeningQuestion
	}
	if c.RetryPrompt == "" {
		c.RetryPrompt = DefaultRetryPrompt
	}
	if c.MusicTrigger == "" {
		c.MusicTrigger = DefaultMusicTrigger
	}
	if c.StopConfidence == 0 {
		c.StopConfidence = DefaultStopConfidence
	}
	if c.ReminderConfidence == 0 {
		c.ReminderConfidence = DefaultReminderConfidence
	}
	if c.MaxDirectQuestions == 0 {
		c.MaxDirectQuestions = DefaultMaxDirectQuestions
	}
	if c.MaxDirectQuestions > maxDirectQuestions {
		c.MaxDirectQuestions = maxDirectQuestions
	}
	if c.PlaybackAckTimeout == 0 {
		c.PlaybackAckTimeout = DefaultPlaybackAckTimeout
	}
	if c.MinSendInterval == 0 {
		c.MinSendInterval = DefaultMinSendInterval
	}
	if c.ClosingGrace == 0 {
		c.ClosingGrace = DefaultClosingGrace
	}
	if c.AudioQueueSize == 0 {
		c.AudioQueueSize = DefaultAudioQueueSize
	}
	if c.ControlQueueSize == 0 {
		c.ControlQueueSize = DefaultControlQueueSize
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.Encoding == "" {
		c.Encoding = "linear16"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.VADSilenceThresholdMS == 0 {
		c.VADSilenceThresholdMS = DefaultVADSilenceThresholdMS
	}
	if c.VADActivationThreshold == 0 {
		c.VADActivationThreshold = DefaultVADActivationThreshold
	}
	if c.MinSpeechDurationMS == 0 {
		c.MinSpeechDurationMS = DefaultMinSpeechDurationMS
	}
	if c.MinSilenceDurationMS == 0 {
		c.MinSilenceDurationMS = DefaultMinSilenceDurationMS
	}
	return c
}
