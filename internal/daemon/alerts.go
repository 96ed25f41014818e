package daemon

import (
	"context"
	"log/slog"
	"time"

	"vidpipe/internal/logging"
	"vidpipe/internal/notifications"
)

// backendAlerts turns router health transitions into notifications. Sends
// run off the routing goroutine so a slow ntfy endpoint never delays a job.
type backendAlerts struct {
	notifier notifications.Service
	logger   *slog.Logger
}

func newBackendAlerts(notifier notifications.Service, logger *slog.Logger) *backendAlerts {
	return &backendAlerts{notifier: notifier, logger: logger}
}

func (a *backendAlerts) AttemptFinished(string, error, time.Duration) {}

func (a *backendAlerts) UsageRecorded(string, int) {}

func (a *backendAlerts) BackendDown(backendID, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := a.notifier.Publish(ctx, notifications.EventBackendDown, notifications.Payload{
			"backend": backendID,
			"error":   message,
		})
		if err != nil {
			logging.WarnWithContext(a.logger, "backend alert failed", "notification_failed",
				logging.String(logging.FieldBackend, backendID),
				logging.Error(err),
			)
		}
	}()
}
