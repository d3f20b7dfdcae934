package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/you/authsvc/domain"
	"github.com/you/authsvc/internal/logging"
	"github.com/you/authsvc/internal/metrics"
)

// DefaultDispatchTimeout bounds a single background delivery
const DefaultDispatchTimeout = 15 * time.Second

// AsyncNotifier implements domain.NotificationService as fire-and-forget:
// Send returns at once and delivery runs on its own goroutine. Failures are
// logged and counted, never returned.
type AsyncNotifier struct {
	next    domain.NotificationService
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	// mu orders wg.Add in Send against the closed flag set by Close
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncNotifier wraps next
func NewAsyncNotifier(next domain.NotificationService, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *AsyncNotifier {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &AsyncNotifier{next: next, timeout: timeout, logger: logger, metrics: m}
}

// Send implements domain.NotificationService. Delivery errors are never
// returned; the only error is a send after Close.
func (a *AsyncNotifier) Send(ctx context.Context, destination, subject, body string) error {
	// the request context ends with the response; keep its values only
	dctx := context.WithoutCancel(ctx)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		channel := ChannelOf(destination)
		a.metrics.NotificationFailed(channel)
		return oops.Code("NOTIFIER_CLOSED").With("channel", channel).Errorf("notifier is shutting down")
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(dctx, a.timeout)
		defer cancel()

		if err := a.next.Send(sendCtx, destination, subject, body); err != nil {
			channel := ChannelOf(destination)
			a.metrics.NotificationFailed(channel)
			logging.LogError(sendCtx, a.logger.With("channel", channel, "to", maskDestination(destination)), "notification delivery failed", err)
		}
	}()
	return nil
}

// Close stops accepting sends and blocks until in-flight deliveries finish
// or ctx is done. It is safe to call more than once.
func (a *AsyncNotifier) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Compile-time interface compliance verification
var _ domain.NotificationService = (*AsyncNotifier)(nil)
