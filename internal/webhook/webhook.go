package webhook

import (
	"context"
	"time"

	webhookevent "github.com/collabary/payments/internal/core/datamodel/webhookevent"
)

// Queue is the durable event queue contract. Enqueue collapses duplicate
// event ids into the existing row and reports ErrDuplicateEvent; Dequeue
// claims ready rows for one worker at a time. ReclaimStale returns claims
// abandoned by a dead worker to the pending pool.
type Queue interface {
	Enqueue(event *webhookevent.Event) error
	Dequeue(limit int) ([]*webhookevent.Event, error)
	MarkProcessed(id int64) error
	Retry(id int64, lastError string, nextAttemptAt time.Time) error
	MarkDead(id int64, lastError string) error
	ReclaimStale(olderThan time.Duration) (int64, error)
}

// EscrowEvents is the slice of the escrow service the dispatcher needs.
// Every handler is idempotent; replays are safe no-ops.
type EscrowEvents interface {
	HandleIntentSucceeded(ctx context.Context, intentRef string) error
	HandleIntentFailed(ctx context.Context, intentRef, reason string) error
	HandleChargeRefunded(ctx context.Context, intentRef string) error
}

// PayoutEvents is the slice of the payout service the dispatcher needs.
type PayoutEvents interface {
	HandlePayoutPaid(ctx context.Context, transferRef string) error
	HandlePayoutFailed(ctx context.Context, transferRef, reason string) error
}
