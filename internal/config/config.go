// Package config loads and validates the process configuration from
// file, environment, and flags.
package config

import "time"

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Data      DataConfig      `mapstructure:"data"`
	Log       LogConfig       `mapstructure:"log"`
	Mail      MailConfig      `mapstructure:"mail"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// FrontendURL is the base URL linked from notification mail.
	FrontendURL string `mapstructure:"frontend_url"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	// Secret signs and verifies API tokens. When empty a random
	// secret is generated at startup, so issued tokens do not
	// survive a restart.
	Secret string `mapstructure:"secret"`
	// WebhookSecret authenticates identity-provider webhooks. The
	// webhook endpoint stays disabled while it is empty.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// DataConfig locates the SQLite databases.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MailConfig configures the SMTP mailer.
type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// Enabled gates outgoing mail; when false a logging no-op mailer
	// is used, which keeps local development from needing SMTP.
	Enabled bool `mapstructure:"enabled"`
}

// WorkflowConfig tunes the engine scheduler and retry policy.
type WorkflowConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Workers      int           `mapstructure:"workers"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	// ClaimLease is how long a claimed run stays invisible to other
	// workers before it is presumed orphaned and requeued.
	ClaimLease time.Duration `mapstructure:"claim_lease"`
}

// RateLimitConfig tunes the per-subject limiter on write endpoints.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}
