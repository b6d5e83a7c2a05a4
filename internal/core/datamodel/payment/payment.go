package payment

import (
	"time"
)

// Payment statuses. PENDING -> PROCESSING -> HELD -> RELEASED is the success
// path; FAILED and REFUNDED are terminal failure paths. Transitions never
// skip states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusHeld       = "held"
	StatusReleased   = "released"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

// Payment is the escrow record for one collaboration. Rows are never
// deleted; terminal payments remain as the audit trail. All amounts are
// minor units (cents).
type Payment struct {
	ID                    string     `json:"id" gorm:"primaryKey;type:uuid"`
	CollaborationID       string     `json:"collaboration_id" gorm:"column:collaboration_id;type:uuid;uniqueIndex;not null"`
	PayerID               string     `json:"payer_id" gorm:"column:payer_id;type:uuid;not null"`
	PayeeID               string     `json:"payee_id" gorm:"column:payee_id;type:uuid;not null"`
	AmountTotal           int64      `json:"amount_total" gorm:"column:amount_total;not null"`
	AmountPrincipal       int64      `json:"amount_principal" gorm:"column:amount_principal;not null"`
	AmountPayerFee        int64      `json:"amount_payer_fee" gorm:"column:amount_payer_fee;not null"`
	AmountPayeeFee        int64      `json:"amount_payee_fee" gorm:"column:amount_payee_fee;not null"`
	AmountPlatformRevenue int64      `json:"amount_platform_revenue" gorm:"column:amount_platform_revenue;not null"`
	Currency              string     `json:"currency" gorm:"column:currency;size:3;default:usd"`
	Status                string     `json:"status" gorm:"column:status;default:pending"`
	ExternalIntentRef     string     `json:"external_intent_ref" gorm:"column:external_intent_ref;uniqueIndex"`
	ClientSecret          string     `json:"-" gorm:"column:client_secret"`
	FailureReason         *string    `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	ReleasedAt            *time.Time `json:"released_at,omitempty" gorm:"column:released_at"`
	CreatedAt             time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Payment) TableName() string {
	return "collaboration_payments"
}

// NetPayeeCredit is the amount credited to the payee wallet on release.
func (p *Payment) NetPayeeCredit() int64 {
	return p.AmountPrincipal - p.AmountPayeeFee
}

// IsTerminal reports whether no further transitions are allowed.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case StatusReleased, StatusFailed, StatusRefunded:
		return true
	}
	return false
}
