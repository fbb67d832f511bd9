package emora

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emora-ai/emora/pkg/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
vendors:
  stt:
    provider: mock
  tts:
    provider: mock
  llm:
    provider: mock
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Conversation.StopConfidence != session.DefaultStopConfidence {
		t.Fatalf("stop_confidence = %v", cfg.Conversation.StopConfidence)
	}
	if cfg.Conversation.MaxDirectQuestions != 5 {
		t.Fatalf("max_direct_questions = %d", cfg.Conversation.MaxDirectQuestions)
	}
	if cfg.Conversation.OpeningQuestion != session.DefaultOpeningQuestion {
		t.Fatalf("opening_question = %q", cfg.Conversation.OpeningQuestion)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.Path != "/ws/agent" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Storage.Provider != "none" {
		t.Fatalf("storage provider = %q", cfg.Storage.Provider)
	}

	sc := cfg.SessionConfig()
	if sc.PlaybackAckTimeout != 30*time.Second {
		t.Fatalf("playback ack timeout = %v", sc.PlaybackAckTimeout)
	}
	if sc.VADSilenceThresholdMS != session.DefaultVADSilenceThresholdMS {
		t.Fatalf("vad silence threshold = %d", sc.VADSilenceThresholdMS)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DG_KEY", "dg-secret")
	t.Setenv("TEST_MONGO_URI", "mongodb://localhost:27017")
	cfg, err := LoadConfig(writeConfig(t, `
vendors:
  stt:
    provider: deepgram
    settings:
      api_key: ${TEST_DG_KEY}
  tts:
    provider: mock
  llm:
    provider: mock
storage:
  provider: mongo
  uri: ${TEST_MONGO_URI}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Vendors.STT.Settings["api_key"]; got != "dg-secret" {
		t.Fatalf("api_key = %v", got)
	}
	if cfg.Storage.URI != "mongodb://localhost:27017" {
		t.Fatalf("storage uri = %q", cfg.Storage.URI)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "missing stt provider",
			body: `
vendors:
  tts:
    provider: mock
  llm:
    provider: mock
`,
		},
		{
			name: "stop confidence above one",
			body: minimalConfig + `
conversation:
  stop_confidence: 1.5
`,
		},
		{
			name: "direct cap above invariant",
			body: minimalConfig + `
conversation:
  max_direct_questions: 9
`,
		},
		{
			name: "mongo without uri",
			body: minimalConfig + `
storage:
  provider: mongo
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestBuildVendorsFromConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := BuildSTTFactory(cfg.Vendors.STT); err != nil {
		t.Fatalf("stt factory: %v", err)
	}
	if _, err := BuildTTSFactory(cfg.Vendors.TTS); err != nil {
		t.Fatalf("tts factory: %v", err)
	}
	if _, err := BuildAnalyzers(cfg.Vendors.LLM); err != nil {
		t.Fatalf("analyzers: %v", err)
	}
	if _, err := BuildSTTFactory(VendorConfig{Provider: "deepgram"}); err == nil {
		t.Fatalf("deepgram without api key must fail")
	}
	if _, err := BuildSTTFactory(VendorConfig{Provider: "nope"}); err == nil {
		t.Fatalf("unknown provider must fail")
	}
}
