package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SESSION_MAX_TURNS", "")
	t.Setenv("GENERATION_PROVIDERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Session.MaxTurns != 20 {
		t.Fatalf("unexpected max turns: %d", cfg.Session.MaxTurns)
	}
	if cfg.Speech.MaxSegmentChars != 900 {
		t.Fatalf("unexpected segment limit: %d", cfg.Speech.MaxSegmentChars)
	}
	if want := []string{"ark", "openai", "gemini"}; !reflect.DeepEqual(cfg.Generation.Providers, want) {
		t.Fatalf("providers = %v, want %v", cfg.Generation.Providers, want)
	}
	if cfg.Turn.SynthesisTimeout >= cfg.Turn.Timeout {
		t.Fatalf("synthesis timeout %s should be shorter than turn timeout %s", cfg.Turn.SynthesisTimeout, cfg.Turn.Timeout)
	}
}

func TestLoadServerConfigAcceptsHostPort(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")

	got, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig err: %v", err)
	}
	if got.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", got.Addr)
	}
}

func TestParseListEnvDeduplicates(t *testing.T) {
	t.Setenv("TEST_PROVIDERS", " OpenAI, ark ,openai,,gemini")

	got := parseListEnv("TEST_PROVIDERS", nil)
	want := []string{"openai", "ark", "gemini"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseListEnv = %v, want %v", got, want)
	}
}

func TestInvalidValuesAbortLoad(t *testing.T) {
	cases := map[string]string{
		"SESSION_TTL":           "soon",
		"SESSION_MAX_TURNS":     "many",
		"SESSION_BACKEND":       "redis",
		"SPEECH_MIN_CONFIDENCE": "1.5",
		"MARKET_ENABLED":        "perhaps",
		"RETRIEVAL_TOP_K":       "0",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "1500ms")

	got, err := parseDurationEnv("TEST_TIMEOUT", time.Second)
	if err != nil {
		t.Fatalf("parseDurationEnv err: %v", err)
	}
	if got != 1500*time.Millisecond {
		t.Fatalf("unexpected duration: %s", got)
	}

	t.Setenv("TEST_TIMEOUT", "-1s")
	if _, err := parseDurationEnv("TEST_TIMEOUT", time.Second); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
