package mail

import (
	"context"
	"log/slog"
)

// Log is a mailer that records mail to the log instead of sending it.
// Used when mail delivery is disabled, so workflows still complete in
// development setups without SMTP.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging mailer.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Send implements core.Mailer.
func (l *Log) Send(_ context.Context, to, subject, _ string) error {
	l.logger.Info("mail delivery disabled, dropping message",
		slog.String("to", to),
		slog.String("subject", subject))
	return nil
}
