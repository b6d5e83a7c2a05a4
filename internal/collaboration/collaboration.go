package collaboration

import (
	"context"
	"log/slog"

	paymentmodel "github.com/collabary/payments/internal/core/datamodel/payment"
	"github.com/collabary/payments/internal/escrow"
)

// Service is the workflow glue between collaborations and the escrow
// core: acceptance opens the escrow, completion releases it. The
// collaboration records themselves live outside this service.
type Service struct {
	escrow *escrow.Service
	logger *slog.Logger
}

func NewService(escrowService *escrow.Service, logger *slog.Logger) *Service {
	return &Service{
		escrow: escrowService,
		logger: logger,
	}
}

// Accept opens the escrow payment for a newly accepted collaboration.
// An OnboardingRequired error passes through untouched; it is a
// redirect signal for the frontend, not a failure.
func (s *Service) Accept(ctx context.Context, collaborationID, payerID, payeeID string, principal int64) (*paymentmodel.Payment, error) {
	p, err := s.escrow.CreatePayment(ctx, escrow.CreatePaymentParams{
		CollaborationID: collaborationID,
		PayerID:         payerID,
		PayeeID:         payeeID,
		Principal:       principal,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collaboration accepted, escrow opened",
		"collaboration_id", collaborationID,
		"payment_id", p.ID)
	return p, nil
}

// Complete releases the held payment when the payer marks the
// collaboration done.
func (s *Service) Complete(ctx context.Context, collaborationID, actorID string) (*paymentmodel.Payment, error) {
	p, err := s.escrow.ReleasePayment(ctx, collaborationID, actorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("collaboration completed, payment released",
		"collaboration_id", collaborationID,
		"payment_id", p.ID)
	return p, nil
}
