package services

import (
	"context"
	"log/slog"

	"github.com/you/authsvc/domain"
)

// SlogAuditLogger implements domain.AuditLogger by writing structured log records
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates an audit logger on top of logger
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	return &SlogAuditLogger{logger: logger.With("log_type", "audit")}
}

// LogEvent implements domain.AuditLogger. Failed events are logged at warn level.
func (l *SlogAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) {
	attrs := []slog.Attr{
		slog.String("event_type", string(event.EventType)),
		slog.Bool("success", event.Success),
		slog.Time("event_time", event.Timestamp),
	}
	if event.UserID != 0 {
		attrs = append(attrs, slog.Uint64("user_id", uint64(event.UserID)))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.ErrorMsg != "" {
		attrs = append(attrs, slog.String("error", event.ErrorMsg))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, "audit event", attrs...)
}

// Compile-time interface compliance verification
var _ domain.AuditLogger = (*SlogAuditLogger)(nil)
