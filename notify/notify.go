package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers a human-readable alert.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// Multi fans an alert out to several channels. Delivery failures are
// logged and never propagate: alerting is fire-and-forget.
type Multi struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMulti creates a fan-out notifier.
func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, logger: logger}
}

// Notify delivers the alert to every channel.
func (m *Multi) Notify(ctx context.Context, subject, message string) error {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, subject, message); err != nil {
			m.logger.Warn("notification delivery failed", zap.Error(err))
		}
	}
	return nil
}
