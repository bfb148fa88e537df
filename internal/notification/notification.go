package notification

import (
	"context"
	"log/slog"
)

const (
	// KindForcedOut tells a member the operator closed their day.
	KindForcedOut = "forced_out"
	// KindForgotCheckout tells a member yesterday's record was never closed.
	KindForgotCheckout = "forgot_checkout"
)

// Message describes a member notice. Destination is the member's phone.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers member notices to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notices to the structured logger instead of an SMS gateway.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", maskPhone(message.Destination)),
		slog.String("body", message.Body),
	)
	return nil
}

// maskPhone keeps the last four digits of a phone number.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		if i < len(phone)-4 {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
