package emora

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/emora-ai/emora/pkg/session"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Server        ServerConfig        `mapstructure:"server"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	Path           string   `mapstructure:"path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

// ConversationConfig carries the loop tuning, thresholds included, as named
// configuration rather than literals scattered through the controller.
type ConversationConfig struct {
	OpeningQuestion    string  `mapstructure:"opening_question"`
	RetryPrompt        string  `mapstructure:"retry_prompt"`
	MusicTrigger       string  `mapstructure:"music_trigger"`
	StopConfidence     float64 `mapstructure:"stop_confidence"`
	ReminderConfidence float64 `mapstructure:"reminder_confidence"`
	MaxDirectQuestions int     `mapstructure:"max_direct_questions"`

	PlaybackAckTimeoutMS int `mapstructure:"playback_ack_timeout_ms"`
	MinSendIntervalMS    int `mapstructure:"min_send_interval_ms"`
	ClosingGraceMS       int `mapstructure:"closing_grace_ms"`
	AudioQueueSize       int `mapstructure:"audio_queue_size"`

	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
	Language   string `mapstructure:"language"`

	VADSilenceThresholdMS  int     `mapstructure:"vad_silence_threshold_ms"`
	VADActivationThreshold float64 `mapstructure:"vad_activation_threshold"`
	MinSpeechDurationMS    int     `mapstructure:"min_speech_duration_ms"`
	MinSilenceDurationMS   int     `mapstructure:"min_silence_duration_ms"`
}

type StorageConfig struct {
	Provider   string `mapstructure:"provider"`
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Bucket     string `mapstructure:"bucket"`
	Transcode  bool   `mapstructure:"transcode"`
	FFmpegPath string `mapstructure:"ffmpeg_path"`
}

type ObservabilityConfig struct {
	MetricsPath string `mapstructure:"metrics_path"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.path", "/ws/agent")
	v.SetDefault("conversation.opening_question", session.DefaultOpeningQuestion)
	v.SetDefault("conversation.retry_prompt", session.DefaultRetryPrompt)
	v.SetDefault("conversation.music_trigger", session.DefaultMusicTrigger)
	v.SetDefault("conversation.stop_confidence", session.DefaultStopConfidence)
	v.SetDefault("conversation.reminder_confidence", session.DefaultReminderConfidence)
	v.SetDefault("conversation.max_direct_questions", session.DefaultMaxDirectQuestions)
	v.SetDefault("conversation.playback_ack_timeout_ms", 30000)
	v.SetDefault("conversation.min_send_interval_ms", 5)
	v.SetDefault("conversation.closing_grace_ms", 500)
	v.SetDefault("conversation.audio_queue_size", session.DefaultAudioQueueSize)
	v.SetDefault("conversation.sample_rate", session.DefaultSampleRate)
	v.SetDefault("conversation.channels", 1)
	v.SetDefault("conversation.language", "en")
	v.SetDefault("conversation.vad_silence_threshold_ms", session.DefaultVADSilenceThresholdMS)
	v.SetDefault("conversation.vad_activation_threshold", session.DefaultVADActivationThreshold)
	v.SetDefault("conversation.min_speech_duration_ms", session.DefaultMinSpeechDurationMS)
	v.SetDefault("conversation.min_silence_duration_ms", session.DefaultMinSilenceDurationMS)
	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.database", "emora")
	v.SetDefault("storage.collection", "agent_sessions")
	v.SetDefault("storage.bucket", "recordings")
	v.SetDefault("storage.transcode", true)
	v.SetDefault("observability.metrics_path", "")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if c.Conversation.StopConfidence <= 0 || c.Conversation.StopConfidence > 1 {
		return fmt.Errorf("conversation.stop_confidence must be in (0,1]")
	}
	if c.Conversation.ReminderConfidence <= 0 || c.Conversation.ReminderConfidence > c.Conversation.StopConfidence {
		return fmt.Errorf("conversation.reminder_confidence must be in (0, stop_confidence]")
	}
	if c.Conversation.MaxDirectQuestions < 1 || c.Conversation.MaxDirectQuestions > 5 {
		return fmt.Errorf("conversation.max_direct_questions must be in [1,5]")
	}
	if c.Storage.Provider != "none" && c.Storage.Provider != "mongo" {
		return fmt.Errorf("storage.provider must be none or mongo, got %q", c.Storage.Provider)
	}
	if c.Storage.Provider == "mongo" && strings.TrimSpace(c.Storage.URI) == "" {
		return fmt.Errorf("storage.uri is required for mongo storage")
	}
	return nil
}

// SessionConfig converts the loaded conversation tuning into the session's
// own config type.
func (c *Config) SessionConfig() session.Config {
	conv := c.Conversation
	return session.Config{
		OpeningQuestion:        conv.OpeningQuestion,
		RetryPrompt:            conv.RetryPrompt,
		MusicTrigger:           conv.MusicTrigger,
		StopConfidence:         conv.StopConfidence,
		ReminderConfidence:     conv.ReminderConfidence,
		MaxDirectQuestions:     conv.MaxDirectQuestions,
		PlaybackAckTimeout:     time.Duration(conv.PlaybackAckTimeoutMS) * time.Millisecond,
		MinSendInterval:        time.Duration(conv.MinSendIntervalMS) * time.Millisecond,
		ClosingGrace:           time.Duration(conv.ClosingGraceMS) * time.Millisecond,
		AudioQueueSize:         conv.AudioQueueSize,
		SampleRate:             conv.SampleRate,
		Channels:               conv.Channels,
		Language:               conv.Language,
		VADSilenceThresholdMS:  conv.VADSilenceThresholdMS,
		VADActivationThreshold: conv.VADActivationThreshold,
		MinSpeechDurationMS:    conv.MinSpeechDurationMS,
		MinSilenceDurationMS:   conv.MinSilenceDurationMS,
	}
}

// expandEnvStrings resolves ${VAR} references so secrets stay out of config
// files.
func expandEnvStrings(cfg *Config) {
	cfg.Storage.URI = os.ExpandEnv(cfg.Storage.URI)
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}
