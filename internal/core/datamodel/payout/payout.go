package payout

import (
	"time"
)

// Payout statuses. PENDING -> PROCESSING -> COMPLETED | FAILED.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Payout is a withdrawal request. The ledger debit is created atomically
// with this row; a terminal FAILED status is always paired with an
// equal-and-opposite compensating credit transaction.
type Payout struct {
	ID                    string     `json:"id" gorm:"primaryKey;type:uuid"`
	UserID                string     `json:"user_id" gorm:"column:user_id;type:uuid;index;not null"`
	WalletID              string     `json:"wallet_id" gorm:"column:wallet_id;type:uuid;not null"`
	Amount                int64      `json:"amount" gorm:"column:amount;not null"`
	Currency              string     `json:"currency" gorm:"column:currency;size:3;default:usd"`
	Status                string     `json:"status" gorm:"column:status;default:pending"`
	DestinationAccountRef string     `json:"destination_account_ref" gorm:"column:destination_account_ref"`
	ExternalTransferRef   string     `json:"external_transfer_ref" gorm:"column:external_transfer_ref;index"`
	FailureReason         *string    `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	RequestedAt           time.Time  `json:"requested_at" gorm:"column:requested_at;default:now()"`
	ProcessedAt           *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedAt             time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Payout) TableName() string {
	return "payouts"
}

func (p *Payout) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}
