package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	apperrors "github.com/open-builders/feedback-relay/internal/common/errors"
)

// Config holds the relay configuration. It is built once at startup from the
// environment (optionally a .env file) and then overridden by command-line flags.
type Config struct {
	// Relay Gateway credential and the single operator identity.
	APIToken string `env:"API_TOKEN"`
	OwnerID  int64  `env:"OWNER_ID" envDefault:"0"`

	Verbosity int `env:"VERBOSITY" envDefault:"0"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"bot.db"`

	Redis struct {
		Addr     string        `env:"REDIS_ADDR" envDefault:""` // empty disables the profile cache
		Password string        `env:"REDIS_PASSWORD" envDefault:""`
		DB       int           `env:"REDIS_DB" envDefault:"0"`
		TTL      time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"1h"`
	}

	Telegram struct {
		APIURL      string        `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
		PollTimeout time.Duration `env:"POLL_TIMEOUT" envDefault:"30s"`
	}

	Webhook struct {
		Enabled bool   `env:"WEBHOOK_ENABLED" envDefault:"false"`
		Addr    string `env:"WEBHOOK_ADDR" envDefault:":8080"`
		URL     string `env:"WEBHOOK_URL"`
		Secret  string `env:"WEBHOOK_SECRET"`
	}

	LinkCheck struct {
		Enabled          bool   `env:"LINK_CHECK_ENABLED" envDefault:"false"`
		AllowedHostsFile string `env:"ALLOWED_HOSTS_FILE" envDefault:"allowed_hosts.txt"`
	}

	MaxConcurrentHandlers int `env:"MAX_CONCURRENT_HANDLERS" envDefault:"16"`
}

// Load reads .env (if present) and parses the environment into Config.
func Load() (*Config, error) {
	// A missing .env is fine: in production the variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields the relay cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIToken) == "" {
		return apperrors.NewValidationError("API_TOKEN", "is required")
	}
	if c.OwnerID == 0 {
		return apperrors.NewValidationError("OWNER_ID", "is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return apperrors.NewValidationError("DATABASE_PATH", "is required")
	}
	if c.MaxConcurrentHandlers <= 0 {
		return apperrors.NewValidationError("MAX_CONCURRENT_HANDLERS", "must be positive")
	}
	if c.Webhook.Enabled {
		if c.Webhook.URL == "" {
			return apperrors.NewValidationError("WEBHOOK_URL", "is required when WEBHOOK_ENABLED is set")
		}
		if c.Webhook.Secret == "" {
			return apperrors.NewValidationError("WEBHOOK_SECRET", "is required when WEBHOOK_ENABLED is set")
		}
	}
	return nil
}
