package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the Aura service.
type Config struct {
	BindAddr                 string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout          time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	SessionInactivityTimeout time.Duration `env:"APP_SESSION_INACTIVITY_TIMEOUT" envDefault:"2m"`
	MetricsNamespace         string        `env:"APP_METRICS_NAMESPACE" envDefault:"aura"`
	AllowAnyOrigin           bool          `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`

	// StoreURL selects the key-value backend: empty or memory://,
	// sqlite://path, or a postgres:// URL.
	StoreURL string `env:"STORE_URL"`

	ModelProvider string `env:"MODEL_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

// Load reads .env (when present) and the environment, then validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		cfg.GeminiAPIKey = os.Getenv("API_KEY")
	}
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.ModelProvider = strings.ToLower(strings.TrimSpace(cfg.ModelProvider))
	cfg.StoreURL = strings.TrimSpace(cfg.StoreURL)

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	switch cfg.ModelProvider {
	case "auto", "gemini", "openai", "mock":
	default:
		return Config{}, fmt.Errorf("MODEL_PROVIDER must be one of auto, gemini, openai, mock")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	return cfg, nil
}
