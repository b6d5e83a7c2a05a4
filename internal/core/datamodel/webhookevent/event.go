package webhookevent

import (
	"encoding/json"
	"time"
)

// Processor event types handled by the reconciliation engine.
const (
	TypeIntentSucceeded = "intent-succeeded"
	TypeIntentFailed    = "intent-failed"
	TypeChargeRefunded  = "charge-refunded"
	TypePayoutPaid      = "payout-paid"
	TypePayoutFailed    = "payout-failed"
)

// Queue statuses for a stored event.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusDead       = "dead"
)

// Event is a durable queue row for one verified processor notification.
// EventID carries a unique index so duplicate deliveries collapse into a
// single row and replays become no-ops.
type Event struct {
	ID            int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID       string          `json:"event_id" gorm:"column:event_id;uniqueIndex;not null"`
	EventType     string          `json:"event_type" gorm:"column:event_type;not null"`
	Payload       json.RawMessage `json:"payload" gorm:"column:payload;type:jsonb"`
	Status        string          `json:"status" gorm:"column:status;default:pending;index:idx_webhook_events_ready"`
	Attempts      int             `json:"attempts" gorm:"column:attempts;default:0"`
	LastError     *string         `json:"last_error,omitempty" gorm:"column:last_error"`
	NextAttemptAt time.Time       `json:"next_attempt_at" gorm:"column:next_attempt_at;default:now();index:idx_webhook_events_ready"`
	CreatedAt     time.Time       `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Event) TableName() string {
	return "webhook_events"
}

// IntentPayload is the payload shape for intent-succeeded, intent-failed
// and charge-refunded events.
type IntentPayload struct {
	IntentID      string `json:"intent_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// TransferPayload is the payload shape for payout-paid and payout-failed
// events.
type TransferPayload struct {
	TransferID    string `json:"transfer_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}
