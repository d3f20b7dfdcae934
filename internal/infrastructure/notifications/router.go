package notifications

import (
	"context"
	"log/slog"
	"strings"

	"github.com/you/authsvc/domain"
)

// Channel names used for routing and metrics
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// ChannelOf classifies a destination: anything with an @ is an email address
func ChannelOf(destination string) string {
	if strings.Contains(destination, "@") {
		return ChannelEmail
	}
	return ChannelSMS
}

// Router sends each notification through the transport matching its destination
type Router struct {
	email domain.NotificationService
	sms   domain.NotificationService
}

// NewRouter creates a router. A nil transport makes that channel fail.
func NewRouter(email, sms domain.NotificationService) *Router {
	return &Router{email: email, sms: sms}
}

// Send implements domain.NotificationService
func (r *Router) Send(ctx context.Context, destination, subject, body string) error {
	next := r.email
	if ChannelOf(destination) == ChannelSMS {
		next = r.sms
	}
	if next == nil {
		return &ChannelUnavailableError{Channel: ChannelOf(destination)}
	}
	return next.Send(ctx, destination, subject, body)
}

// ChannelUnavailableError reports a destination whose channel has no transport
type ChannelUnavailableError struct {
	Channel string
}

func (e *ChannelUnavailableError) Error() string {
	return "no transport configured for channel " + e.Channel
}

// LogNotifier implements domain.NotificationService by writing to the log.
// Bodies carry secrets and are only logged when includeBody is set.
type LogNotifier struct {
	logger      *slog.Logger
	includeBody bool
}

// NewLogNotifier creates a log-only notifier for development
func NewLogNotifier(logger *slog.Logger, includeBody bool) *LogNotifier {
	return &LogNotifier{logger: logger, includeBody: includeBody}
}

// Send implements domain.NotificationService
func (l *LogNotifier) Send(ctx context.Context, destination, subject, body string) error {
	attrs := []any{
		"channel", ChannelOf(destination),
		"to", maskDestination(destination),
		"subject", subject,
	}
	if l.includeBody {
		attrs = append(attrs, "body", body)
	}
	l.logger.InfoContext(ctx, "notification not delivered, logged instead", attrs...)
	return nil
}

// maskDestination keeps enough of an address to correlate logs
func maskDestination(destination string) string {
	if at := strings.IndexByte(destination, '@'); at > 0 {
		return destination[:1] + "***" + destination[at:]
	}
	if len(destination) > 4 {
		return "***" + destination[len(destination)-4:]
	}
	return "***"
}

// Compile-time interface compliance verification
var (
	_ domain.NotificationService = (*Router)(nil)
	_ domain.NotificationService = (*LogNotifier)(nil)
)
