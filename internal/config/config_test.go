package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ModelProvider != "gemini" {
		t.Fatalf("ModelProvider = %q, want gemini", cfg.ModelProvider)
	}
	if cfg.SessionInactivityTimeout != 2*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want 2m", cfg.SessionInactivityTimeout)
	}
	if cfg.MetricsNamespace != "aura" || cfg.BcryptCost != 10 || cfg.AllowAnyOrigin {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StoreURL != "" {
		t.Fatalf("StoreURL = %q, want empty default", cfg.StoreURL)
	}
}

func TestLoadAcceptsAPIKeyAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "key-from-alias")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeminiAPIKey != "key-from-alias" {
		t.Fatalf("GeminiAPIKey = %q, want alias value", cfg.GeminiAPIKey)
	}

	t.Setenv("GEMINI_API_KEY", " explicit ")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeminiAPIKey != "explicit" {
		t.Fatalf("GeminiAPIKey = %q, want explicit value", cfg.GeminiAPIKey)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "45s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")
	t.Setenv("MODEL_PROVIDER", " OpenAI ")
	t.Setenv("STORE_URL", "sqlite://aura.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" || cfg.SessionInactivityTimeout != 45*time.Second || !cfg.AllowAnyOrigin {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.ModelProvider != "openai" || cfg.StoreURL != "sqlite://aura.db" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"MODEL_PROVIDER":                 "llama",
		"BCRYPT_COST":                    "2",
		"APP_SHUTDOWN_TIMEOUT":           "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q should fail", key, value)
			}
		})
	}
}

// clearEnv unsets every key Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"STORE_URL",
		"MODEL_PROVIDER",
		"GEMINI_API_KEY",
		"API_KEY",
		"GEMINI_MODEL",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"BCRYPT_COST",
	}
	for _, key := range keys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("Unsetenv(%s) error = %v", key, err)
		}
	}
}
