package escrow

import (
	"time"

	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
	paymentmodel "github.com/collabary/payments/internal/core/datamodel/payment"
)

// Fee percentages applied to the principal when a payment is created.
// The payer fee is added on top of the principal; the payee fee comes
// out of the principal on release; platform revenue is earmarked on the
// processor intent.
const (
	PayerFeePercent        = 5
	PayeeFeePercent        = 10
	PlatformRevenuePercent = 15
)

// FeeSplit is the minor-unit breakdown of one payment.
type FeeSplit struct {
	Principal       int64
	PayerFee        int64
	PayeeFee        int64
	PlatformRevenue int64
	Total           int64
}

// ComputeFeeSplit derives all fee amounts from the principal. Integer
// division truncates toward zero; with minor units this loses at most a
// cent per fee, always in the platform's disfavor.
func ComputeFeeSplit(principal int64) FeeSplit {
	payerFee := principal * PayerFeePercent / 100
	return FeeSplit{
		Principal:       principal,
		PayerFee:        payerFee,
		PayeeFee:        principal * PayeeFeePercent / 100,
		PlatformRevenue: principal * PlatformRevenuePercent / 100,
		Total:           principal + payerFee,
	}
}

// Repository is the escrow storage contract. Status transitions are
// guarded: the update applies only when the row is still in an allowed
// predecessor status, and a lost race surfaces as a conflict error. The
// Release/Refund operations combine the transition with its ledger side
// effect in one durable unit.
type Repository interface {
	Create(p *paymentmodel.Payment) error
	GetByID(id string) (*paymentmodel.Payment, error)
	GetByCollaborationID(collaborationID string) (*paymentmodel.Payment, error)
	GetByIntentRef(intentRef string) (*paymentmodel.Payment, error)
	ListForUser(userID string, limit int) ([]*paymentmodel.Payment, error)
	ListProcessingBefore(cutoff time.Time, limit int) ([]*paymentmodel.Payment, error)
	MarkProcessing(id string) error
	MarkHeld(id string) error
	MarkFailed(id string, reason string) error
	ReleaseAndCredit(p *paymentmodel.Payment) error
	RefundHeld(id string) error
	RefundReleasedAndDebit(p *paymentmodel.Payment) error
}

// AccountDirectory resolves the parties of a payment to their processor
// references for onboarding checks.
type AccountDirectory interface {
	GetUser(userID string) (*accountmodel.User, error)
}

type CreatePaymentParams struct {
	CollaborationID string
	PayerID         string
	PayeeID         string
	Principal       int64
}
