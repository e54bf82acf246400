package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "PINGUP",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "PINGUP",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (PINGUP_*)
// 3. Project config (.pingup.yaml in current directory)
// 4. User config (~/.config/pingup/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".pingup")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config.
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "pingup"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// Server defaults
	l.v.SetDefault("server.addr", ":8080")

	// Data defaults
	l.v.SetDefault("data.dir", ".pingup")

	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	// Mail defaults
	l.v.SetDefault("mail.enabled", false)
	l.v.SetDefault("mail.host", "localhost")
	l.v.SetDefault("mail.port", 587)
	l.v.SetDefault("mail.from", "no-reply@pingup.local")

	// Workflow defaults
	l.v.SetDefault("workflow.poll_interval", "5s")
	l.v.SetDefault("workflow.batch_size", 50)
	l.v.SetDefault("workflow.workers", 8)
	l.v.SetDefault("workflow.max_attempts", 4)
	l.v.SetDefault("workflow.retry_delay", "30s")
	l.v.SetDefault("workflow.claim_lease", "5m")

	// Rate limit defaults
	l.v.SetDefault("rate_limit.rps", 5.0)
	l.v.SetDefault("rate_limit.burst", 10)

	l.v.SetDefault("frontend_url", "http://localhost:5173")
}

// RunsDBPath returns the path of the workflow run database.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.Data.Dir, "runs.db")
}

// DomainDBPath returns the path of the application database.
func (c *Config) DomainDBPath() string {
	return filepath.Join(c.Data.Dir, "pingup.db")
}
