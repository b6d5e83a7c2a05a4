package wallet

import (
	"time"
)

// Wallet is a cached aggregate of the transaction ledger, one per user,
// lazily created. The ledger, not this row, is the source of truth:
// replaying all transactions in creation order reconstructs the balance.
type Wallet struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID           string    `json:"user_id" gorm:"column:user_id;type:uuid;uniqueIndex;not null"`
	AvailableBalance int64     `json:"available_balance" gorm:"column:available_balance;not null;default:0"`
	PendingBalance   int64     `json:"pending_balance" gorm:"column:pending_balance;not null;default:0"`
	TotalEarned      int64     `json:"total_earned" gorm:"column:total_earned;not null;default:0"`
	TotalWithdrawn   int64     `json:"total_withdrawn" gorm:"column:total_withdrawn;not null;default:0"`
	Currency         string    `json:"currency" gorm:"column:currency;size:3;default:usd"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// Transaction kinds. Credits carry positive amounts, debits negative.
const (
	TypePaymentReleased    = "payment_released"
	TypePaymentRefunded    = "payment_refunded"
	TypePayout             = "payout"
	TypePayoutFailedRefund = "payout_failed_refund"
	TypeAdjustment         = "adjustment"
)

// Reference types for ledger entries.
const (
	ReferencePayment = "payment"
	ReferencePayout  = "payout"
)

// Transaction is an immutable ledger entry. BalanceAfter snapshots the
// wallet's available balance at commit time so the ledger is auditable
// without replaying from zero.
type Transaction struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	WalletID      string    `json:"wallet_id" gorm:"column:wallet_id;type:uuid;index;not null"`
	UserID        string    `json:"user_id" gorm:"column:user_id;type:uuid;index;not null"`
	Type          string    `json:"type" gorm:"column:type;not null"`
	Amount        int64     `json:"amount" gorm:"column:amount;not null"`
	BalanceAfter  int64     `json:"balance_after" gorm:"column:balance_after;not null"`
	ReferenceType string    `json:"reference_type" gorm:"column:reference_type"`
	ReferenceID   string    `json:"reference_id" gorm:"column:reference_id;type:uuid"`
	Description   string    `json:"description" gorm:"column:description"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}
