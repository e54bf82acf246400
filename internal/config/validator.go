package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateServer(&cfg.Server)
	v.validateData(&cfg.Data)
	v.validateLog(&cfg.Log)
	v.validateMail(&cfg.Mail)
	v.validateWorkflow(&cfg.Workflow)
	v.validateRateLimit(&cfg.RateLimit)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: message})
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Addr == "" {
		v.addError("server.addr", cfg.Addr, "must not be empty")
	}
}

func (v *Validator) validateData(cfg *DataConfig) {
	if cfg.Dir == "" {
		v.addError("data.dir", cfg.Dir, "must not be empty")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateMail(cfg *MailConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Host == "" {
		v.addError("mail.host", cfg.Host, "must not be empty when mail is enabled")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		v.addError("mail.port", cfg.Port, "must be a valid TCP port")
	}
	if cfg.From == "" {
		v.addError("mail.from", cfg.From, "must not be empty when mail is enabled")
	}
}

func (v *Validator) validateWorkflow(cfg *WorkflowConfig) {
	if cfg.PollInterval <= 0 {
		v.addError("workflow.poll_interval", cfg.PollInterval, "must be positive")
	}
	if cfg.BatchSize <= 0 {
		v.addError("workflow.batch_size", cfg.BatchSize, "must be positive")
	}
	if cfg.Workers <= 0 {
		v.addError("workflow.workers", cfg.Workers, "must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		v.addError("workflow.max_attempts", cfg.MaxAttempts, "must be positive")
	}
	if cfg.RetryDelay <= 0 {
		v.addError("workflow.retry_delay", cfg.RetryDelay, "must be positive")
	}
	if cfg.ClaimLease <= 0 {
		v.addError("workflow.claim_lease", cfg.ClaimLease, "must be positive")
	}
}

func (v *Validator) validateRateLimit(cfg *RateLimitConfig) {
	if cfg.RPS <= 0 {
		v.addError("rate_limit.rps", cfg.RPS, "must be positive")
	}
	if cfg.Burst <= 0 {
		v.addError("rate_limit.burst", cfg.Burst, "must be positive")
	}
}
