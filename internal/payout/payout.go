package payout

import (
	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
	payoutmodel "github.com/collabary/payments/internal/core/datamodel/payout"
)

// Repository is the payout storage contract. CreateWithDebit couples the
// payout row with its ledger debit in one transaction; FailAndRefund
// couples the FAILED transition with the compensating credit the same
// way, guarded so the synchronous path and the webhook path can never
// both compensate.
type Repository interface {
	CreateWithDebit(p *payoutmodel.Payout) error
	GetByID(id string) (*payoutmodel.Payout, error)
	GetByTransferRef(transferRef string) (*payoutmodel.Payout, error)
	ListForUser(userID string, limit int) ([]*payoutmodel.Payout, error)
	MarkProcessing(id string) error
	AttachTransferRef(id, transferRef string) error
	MarkCompleted(id, transferRef string) error
	FailAndRefund(p *payoutmodel.Payout, reason string) error
}

// AccountDirectory resolves the payee's destination account.
type AccountDirectory interface {
	GetUser(userID string) (*accountmodel.User, error)
}
