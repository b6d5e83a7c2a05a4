package notification

import (
	"context"
	"log/slog"

	"github.com/collabary/payments/internal/core/events"
)

// Notifier subscribes to payment and payout transitions and notifies
// the affected parties. Delivery is fire-and-forget through the async
// event bus: a notification failure is logged and never reaches the
// code that committed the transition.
type Notifier struct {
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Register subscribes the notifier to every transition event type.
func (n *Notifier) Register(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventTypePaymentHeld,
		events.EventTypePaymentReleased,
		events.EventTypePaymentFailed,
		events.EventTypePaymentRefunded,
		events.EventTypePayoutCompleted,
		events.EventTypePayoutFailed,
	} {
		bus.Subscribe(eventType, n.handle)
	}
}

func (n *Notifier) handle(ctx context.Context, event events.Event) error {
	// delivery channel integration (email, push) hangs off here; for now
	// the notification is the structured log record
	n.logger.Info("notification dispatched",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"payload", event.Payload())
	return nil
}
