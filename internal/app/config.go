package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// RedisAddr left empty runs sessions on an embedded in-process Redis.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	UsersPerPage        int           `envconfig:"USERS_PER_PAGE" default:"20"`
	PasswordChangeDelay time.Duration `envconfig:"PASSWORD_CHANGE_DELAY" default:"500ms"`
	SeedUsers           bool          `envconfig:"SEED_USERS" default:"true"`
	RateLimitPerMinute  int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`

	JobsEnabled bool   `envconfig:"JOBS_ENABLED" default:"false"`
	SMTPHost    string `envconfig:"SMTP_HOST" default:"127.0.0.1"`
	SMTPPort    int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPFrom    string `envconfig:"SMTP_FROM" default:"no-reply@odyssey.local"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if c.JobsEnabled && c.RedisAddr == "" {
		return errors.New("jobs require REDIS_ADDR; the embedded redis is not shared with the worker")
	}
	if c.UsersPerPage <= 0 {
		return errors.New("users per page must be positive")
	}
	if c.PasswordChangeDelay < 0 {
		return errors.New("password change delay must not be negative")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
