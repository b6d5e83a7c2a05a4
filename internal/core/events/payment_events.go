package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentHeld     = "payment.held"
	EventTypePaymentReleased = "payment.released"
	EventTypePaymentFailed   = "payment.failed"
	EventTypePaymentRefunded = "payment.refunded"
	EventTypePayoutCompleted = "payout.completed"
	EventTypePayoutFailed    = "payout.failed"
)

// PaymentEvent notifies both parties about an escrow transition.
type PaymentEvent struct {
	BaseEvent
	PaymentID       string `json:"payment_id"`
	CollaborationID string `json:"collaboration_id"`
	PayerID         string `json:"payer_id"`
	PayeeID         string `json:"payee_id"`
	AmountPrincipal int64  `json:"amount_principal"`
	NetPayeeCredit  int64  `json:"net_payee_credit"`
	Status          string `json:"status"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

func NewPaymentEvent(eventType, paymentID, collaborationID, payerID, payeeID string, principal, netCredit int64, status, failureReason string) *PaymentEvent {
	return &PaymentEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":       paymentID,
				"collaboration_id": collaborationID,
				"payer_id":         payerID,
				"payee_id":         payeeID,
				"amount_principal": principal,
				"net_payee_credit": netCredit,
				"status":           status,
				"failure_reason":   failureReason,
			},
		},
		PaymentID:       paymentID,
		CollaborationID: collaborationID,
		PayerID:         payerID,
		PayeeID:         payeeID,
		AmountPrincipal: principal,
		NetPayeeCredit:  netCredit,
		Status:          status,
		FailureReason:   failureReason,
	}
}

// PayoutEvent notifies the payee about a withdrawal transition.
type PayoutEvent struct {
	BaseEvent
	PayoutID      string `json:"payout_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func NewPayoutEvent(eventType, payoutID, userID string, amount int64, status, failureReason string) *PayoutEvent {
	return &PayoutEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payout_id":      payoutID,
				"user_id":        userID,
				"amount":         amount,
				"status":         status,
				"failure_reason": failureReason,
			},
		},
		PayoutID:      payoutID,
		UserID:        userID,
		Amount:        amount,
		Status:        status,
		FailureReason: failureReason,
	}
}
