package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "RATE_LIMIT_GLOBAL", "RATE_LIMIT_CLIENT", "RATE_LIMIT_WINDOW",
		"GEMINI_MODEL", "GEMINI_TIMEOUT", "GEMINI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY_FILE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.RateLimit.GlobalLimit != 700 {
		t.Errorf("expected global limit 700, got %d", cfg.RateLimit.GlobalLimit)
	}
	if cfg.RateLimit.ClientLimit != 30 {
		t.Errorf("expected client limit 30, got %d", cfg.RateLimit.ClientLimit)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("expected one minute window, got %s", cfg.RateLimit.Window)
	}
	if cfg.Gemini.Timeout != 15*time.Second {
		t.Errorf("expected 15s Gemini timeout, got %s", cfg.Gemini.Timeout)
	}
	if cfg.Gemini.APIKey != "" {
		t.Errorf("expected no API key, got %q", cfg.Gemini.APIKey)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_GLOBAL", "5")
	t.Setenv("RATE_LIMIT_CLIENT", "2")
	t.Setenv("RATE_LIMIT_WINDOW", "90")
	t.Setenv("GEMINI_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("CHAT_DEBUG", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RateLimit.GlobalLimit != 5 || cfg.RateLimit.ClientLimit != 2 {
		t.Errorf("unexpected limits: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Window != 90*time.Second {
		t.Errorf("bare seconds should parse, got %s", cfg.RateLimit.Window)
	}
	if cfg.Gemini.Timeout != 3*time.Second {
		t.Errorf("duration string should parse, got %s", cfg.Gemini.Timeout)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Debug {
		t.Error("expected debug enabled")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-numeric global limit", key: "RATE_LIMIT_GLOBAL", value: "lots"},
		{name: "zero client limit", key: "RATE_LIMIT_CLIENT", value: "0"},
		{name: "bad timeout", key: "GEMINI_TIMEOUT", value: "soon"},
		{name: "bad rps", key: "GEMINI_MAX_RPS", value: "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestGeminiAPIKeyFromFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	keyPath := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyPath, []byte("  secret-key\n"), 0600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv("GEMINI_API_KEY_FILE", keyPath)

	if got := geminiAPIKey(); got != "secret-key" {
		t.Errorf("geminiAPIKey() = %q, want %q", got, "secret-key")
	}

	t.Setenv("GOOGLE_API_KEY", "env-key")
	if got := geminiAPIKey(); got != "env-key" {
		t.Errorf("environment key should win over file, got %q", got)
	}
}
