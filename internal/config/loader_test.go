package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ".pingup", cfg.Data.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.False(t, cfg.Mail.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Workflow.PollInterval)
	assert.Equal(t, 50, cfg.Workflow.BatchSize)
	assert.Equal(t, 8, cfg.Workflow.Workers)
	assert.Equal(t, 4, cfg.Workflow.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Workflow.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Workflow.ClaimLease)
	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
	assert.Equal(t, 10, cfg.RateLimit.Burst)

	// Validated defaults are a usable configuration.
	require.NoError(t, NewValidator().Validate(cfg))
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9999"
workflow:
  poll_interval: 1s
  workers: 2
mail:
  enabled: true
  host: smtp.example.com
  port: 465
  from: noreply@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Workflow.PollInterval)
	assert.Equal(t, 2, cfg.Workflow.Workers)
	assert.True(t, cfg.Mail.Enabled)
	assert.Equal(t, "smtp.example.com", cfg.Mail.Host)

	// Unset keys keep their defaults.
	assert.Equal(t, 50, cfg.Workflow.BatchSize)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("PINGUP_SERVER_ADDR", ":7777")
	t.Setenv("PINGUP_LOG_LEVEL", "debug")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_DBPaths(t *testing.T) {
	cfg := &Config{Data: DataConfig{Dir: "/var/lib/pingup"}}
	assert.Equal(t, filepath.Join("/var/lib/pingup", "runs.db"), cfg.RunsDBPath())
	assert.Equal(t, filepath.Join("/var/lib/pingup", "pingup.db"), cfg.DomainDBPath())
}

func TestValidator_RejectsBadValues(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)

	cfg.Log.Level = "verbose"
	cfg.Workflow.Workers = 0
	cfg.RateLimit.RPS = -1

	err = NewValidator().Validate(cfg)
	require.Error(t, err)

	verr, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, verr, 3)
}

func TestValidator_MailChecksOnlyWhenEnabled(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	// Disabled mail needs no host.
	cfg.Mail.Enabled = false
	cfg.Mail.Host = ""
	require.NoError(t, NewValidator().Validate(cfg))

	cfg.Mail.Enabled = true
	err = NewValidator().Validate(cfg)
	require.Error(t, err)
}
