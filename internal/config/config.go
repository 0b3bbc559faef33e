package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all runtime settings for the text-to-speech proxy.
type Config struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	ChatModel string `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`
	TTSModel  string `env:"TTS_MODEL" envDefault:"tts-1"`
	TTSVoice  string `env:"TTS_VOICE" envDefault:"alloy"`

	Port        int    `env:"PORT" envDefault:"8000"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	MaxTextLength       int           `env:"MAX_TEXT_LENGTH" envDefault:"1000"`
	InactivityTimeout   time.Duration `env:"WS_INACTIVITY_TIMEOUT" envDefault:"30s"`
	ChatTimeout         time.Duration `env:"CHAT_TIMEOUT" envDefault:"10s"`
	TTSTimeout          time.Duration `env:"TTS_TIMEOUT" envDefault:"20s"`
	ShutdownTimeout     time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MalformedFrameLimit int           `env:"WS_MALFORMED_FRAME_LIMIT" envDefault:"5"`

	AllowAnyOrigin   bool   `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`
	MetricsNamespace string `env:"APP_METRICS_NAMESPACE" envDefault:"voicebridge"`
}

// Load reads environment variables, applies defaults, and validates.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BindAddr returns the listen address derived from PORT.
func (c Config) BindAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) validate() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY must not be blank")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be in (0, 65535], got %d", c.Port)
	}
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("MAX_TEXT_LENGTH must be positive")
	}
	if c.InactivityTimeout <= 0 {
		return fmt.Errorf("WS_INACTIVITY_TIMEOUT must be positive")
	}
	if c.ChatTimeout <= 0 {
		return fmt.Errorf("CHAT_TIMEOUT must be positive")
	}
	if c.TTSTimeout <= 0 {
		return fmt.Errorf("TTS_TIMEOUT must be positive")
	}
	if c.MalformedFrameLimit <= 0 {
		return fmt.Errorf("WS_MALFORMED_FRAME_LIMIT must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug|info|warn|error, got %q", c.LogLevel)
	}
	return nil
}
