package configutil

import "testing"

func TestDecodeSettingsWeakTyping(t *testing.T) {
	var out struct {
		APIKey     string `mapstructure:"api_key"`
		SampleRate int    `mapstructure:"sample_rate"`
		Interim    bool   `mapstructure:"interim"`
	}
	err := DecodeSettings(map[string]any{
		"api-key":     "sk-test",
		"sample_rate": "16000",
		"interim":     "true",
	}, &out)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.APIKey != "sk-test" {
		t.Fatalf("expected dashed key matched, got %q", out.APIKey)
	}
	if out.SampleRate != 16000 {
		t.Fatalf("expected weakly typed int, got %d", out.SampleRate)
	}
	if !out.Interim {
		t.Fatalf("expected weakly typed bool")
	}
}

func TestDecodeSettingsEmptyInput(t *testing.T) {
	var out struct {
		APIKey string `mapstructure:"api_key"`
	}
	if err := DecodeSettings(nil, &out); err != nil {
		t.Fatalf("nil input: %v", err)
	}
	if out.APIKey != "" {
		t.Fatalf("nil input must leave out untouched")
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString("  ", "vendors.stt.api_key"); err == nil {
		t.Fatalf("expected error for blank value")
	}
	if err := RequireString("ok", "vendors.stt.api_key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
