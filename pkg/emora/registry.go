package emora

import (
	"fmt"
	"strings"

	"github.com/emora-ai/emora/pkg/adapters/stt"
	"github.com/emora-ai/emora/pkg/adapters/tts"
	"github.com/emora-ai/emora/pkg/analysis"
	"github.com/emora-ai/emora/pkg/configutil"
	"github.com/emora-ai/emora/pkg/providers/deepgram"
	"github.com/emora-ai/emora/pkg/providers/elevenlabs"
	"github.com/emora-ai/emora/pkg/providers/mock"
	"github.com/emora-ai/emora/pkg/providers/openai"
)

// BuildSTTFactory resolves the configured STT vendor.
func BuildSTTFactory(cfg VendorConfig) (stt.Factory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "deepgram":
		var settings struct {
			APIKey  string `mapstructure:"api_key"`
			Model   string `mapstructure:"model"`
			Interim bool   `mapstructure:"interim"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("stt settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:  settings.APIKey,
			Model:   settings.Model,
			Interim: settings.Interim,
		}), nil
	case "mock":
		var settings struct {
			Transcript string `mapstructure:"transcript"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("stt settings: %w", err)
		}
		return mock.NewSTTFactory(mock.STTConfig{Transcript: settings.Transcript}), nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.Provider)
	}
}

// BuildTTSFactory resolves the configured TTS vendor.
func BuildTTSFactory(cfg VendorConfig) (tts.Factory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "elevenlabs":
		var settings struct {
			APIKey          string  `mapstructure:"api_key"`
			VoiceID         string  `mapstructure:"voice_id"`
			ModelID         string  `mapstructure:"model_id"`
			OutputFormat    string  `mapstructure:"output_format"`
			SampleRate      int     `mapstructure:"sample_rate"`
			Stability       float64 `mapstructure:"stability"`
			SimilarityBoost float64 `mapstructure:"similarity_boost"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("tts settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.VoiceID, "vendors.tts.settings.voice_id"); err != nil {
			return nil, err
		}
		return elevenlabs.New(elevenlabs.Config{
			APIKey:          settings.APIKey,
			VoiceID:         settings.VoiceID,
			ModelID:         settings.ModelID,
			OutputFormat:    settings.OutputFormat,
			SampleRate:      settings.SampleRate,
			Stability:       settings.Stability,
			SimilarityBoost: settings.SimilarityBoost,
		}), nil
	case "mock":
		return mock.NewTTSFactory(mock.TTSConfig{}), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
	}
}

// Analyzers bundles the three delegate collaborators the loop calls out to.
type Analyzers struct {
	Emotion     analysis.EmotionAnalyzer
	Question    analysis.QuestionGenerator
	Recommender analysis.MusicRecommender
}

// BuildAnalyzers resolves the configured LLM vendor into the collaborator
// set.
func BuildAnalyzers(cfg VendorConfig) (Analyzers, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		var settings struct {
			APIKey    string `mapstructure:"api_key"`
			Model     string `mapstructure:"model"`
			BaseURL   string `mapstructure:"base_url"`
			TimeoutMS int    `mapstructure:"timeout_ms"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return Analyzers{}, fmt.Errorf("llm settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return Analyzers{}, err
		}
		client := openai.NewClient(openai.Config{
			APIKey:    settings.APIKey,
			Model:     settings.Model,
			BaseURL:   settings.BaseURL,
			TimeoutMS: settings.TimeoutMS,
		})
		return Analyzers{
			Emotion:     openai.NewAnalyzer(client),
			Question:    openai.NewGenerator(client),
			Recommender: openai.NewRecommender(client),
		}, nil
	case "mock":
		var settings struct {
			Song string `mapstructure:"song"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return Analyzers{}, fmt.Errorf("llm settings: %w", err)
		}
		if settings.Song == "" {
			settings.Song = "Clair de Lune - Debussy"
		}
		return Analyzers{
			Emotion:     mock.NewAnalyzer(),
			Question:    mock.NewGenerator(),
			Recommender: mock.NewRecommender(settings.Song),
		}, nil
	default:
		return Analyzers{}, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
