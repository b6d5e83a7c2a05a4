package payout

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/collabary/payments/internal"
	"github.com/collabary/payments/internal/core/common/validation"
	payoutmodel "github.com/collabary/payments/internal/core/datamodel/payout"
	processortypes "github.com/collabary/payments/internal/core/datamodel/processor"
	"github.com/collabary/payments/internal/core/events"
	"github.com/collabary/payments/internal/processor"
	"github.com/collabary/payments/internal/wallet"
)

// Service orchestrates withdrawals. The ledger debit happens up front,
// atomically with the payout row; any terminal failure restores the
// funds with a compensating credit issued exactly once.
type Service struct {
	repo      Repository
	accounts  AccountDirectory
	wallets   *wallet.Service
	processor processor.API
	eventBus  *events.EventBus
	currency  string
	minimum   int64
	logger    *slog.Logger
}

func NewService(
	repo Repository,
	accounts AccountDirectory,
	wallets *wallet.Service,
	processorAPI processor.API,
	eventBus *events.EventBus,
	currency string,
	minimum int64,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		accounts:  accounts,
		wallets:   wallets,
		processor: processorAPI,
		eventBus:  eventBus,
		currency:  currency,
		minimum:   minimum,
		logger:    logger,
	}
}

// RequestPayout validates the withdrawal, debits the ledger atomically
// with the payout row, and kicks off processing. An insufficient balance
// surfaces before anything is written.
func (s *Service) RequestPayout(ctx context.Context, userID string, amount int64) (*payoutmodel.Payout, error) {
	if err := validation.ValidatePayoutAmount(amount, s.minimum); err != nil {
		return nil, err
	}

	user, err := s.accounts.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if !user.CanReceive() {
		return nil, apperrors.NewValidationError(
			"no destination account registered for payouts",
			apperrors.ErrCodeNoDestinationAcct,
		)
	}

	wlt, err := s.wallets.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}

	p := &payoutmodel.Payout{
		ID:                    uuid.New().String(),
		UserID:                userID,
		WalletID:              wlt.ID,
		Amount:                amount,
		Currency:              s.currency,
		Status:                payoutmodel.StatusPending,
		DestinationAccountRef: user.ExternalAccountRef,
		RequestedAt:           time.Now().UTC(),
	}

	if err := s.repo.CreateWithDebit(p); err != nil {
		return nil, err
	}

	s.logger.Info("payout requested",
		"payout_id", p.ID,
		"user_id", userID,
		"amount", amount)

	return s.ProcessPayout(ctx, p.ID)
}

// ProcessPayout drives PENDING -> PROCESSING and requests the external
// transfer. A transfer request that errors fails the payout and restores
// the funds immediately: no transfer ref was recorded, so no webhook
// could ever settle the row. Once a ref is attached, the payout webhooks
// carry the terminal transition.
func (s *Service) ProcessPayout(ctx context.Context, payoutID string) (*payoutmodel.Payout, error) {
	p, err := s.repo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}
	if p.Status != payoutmodel.StatusPending {
		return nil, apperrors.NewTransitionConflictError("payout", p.Status, payoutmodel.StatusProcessing)
	}

	if err := s.repo.MarkProcessing(p.ID); err != nil {
		return nil, err
	}
	p.Status = payoutmodel.StatusProcessing

	transfer, err := s.processor.CreateTransfer(ctx, &processortypes.CreateTransferRequest{
		Amount:         p.Amount,
		Currency:       p.Currency,
		DestinationRef: p.DestinationAccountRef,
		Metadata: map[string]string{
			"payout_id": p.ID,
		},
	})
	if err != nil {
		reason := "transfer request failed"
		code := apperrors.ErrCodeProcessorUnhealthy
		transient := true
		if procErr, ok := processor.AsProcessorError(err); ok {
			reason = procErr.Message
			if !procErr.Transient {
				code = apperrors.ErrCodeProcessorDeclined
				transient = false
			}
		}
		if failErr := s.failPayout(ctx, p, reason); failErr != nil {
			return nil, failErr
		}
		return nil, apperrors.NewExternalError(reason, code, transient, err)
	}

	if err := s.repo.AttachTransferRef(p.ID, transfer.ID); err != nil {
		return nil, err
	}
	p.ExternalTransferRef = transfer.ID

	if transfer.Status == processortypes.TransferStatusPaid {
		if err := s.completePayout(ctx, p, transfer.ID); err != nil {
			return nil, err
		}
		return p, nil
	}

	s.logger.Info("transfer in flight, awaiting payout webhook",
		"payout_id", p.ID,
		"transfer_ref", transfer.ID)
	return p, nil
}

// HandlePayoutPaid settles a transfer confirmation. Unknown transfer
// refs return an error so the queue retries until the synchronous path
// has persisted the ref.
func (s *Service) HandlePayoutPaid(ctx context.Context, transferRef string) error {
	p, err := s.repo.GetByTransferRef(transferRef)
	if err != nil {
		return err
	}

	switch p.Status {
	case payoutmodel.StatusProcessing:
		return s.completePayout(ctx, p, transferRef)
	case payoutmodel.StatusCompleted:
		return nil
	default:
		s.logger.Warn("payout paid event for payout not processing, ignoring",
			"payout_id", p.ID,
			"status", p.Status)
		return nil
	}
}

func (s *Service) HandlePayoutFailed(ctx context.Context, transferRef, reason string) error {
	p, err := s.repo.GetByTransferRef(transferRef)
	if err != nil {
		return err
	}

	switch p.Status {
	case payoutmodel.StatusPending, payoutmodel.StatusProcessing:
		if reason == "" {
			reason = "transfer failed at processor"
		}
		return s.failPayout(ctx, p, reason)
	case payoutmodel.StatusFailed:
		return nil
	default:
		s.logger.Warn("payout failed event for completed payout, ignoring",
			"payout_id", p.ID,
			"status", p.Status)
		return nil
	}
}

func (s *Service) completePayout(ctx context.Context, p *payoutmodel.Payout, transferRef string) error {
	if err := s.repo.MarkCompleted(p.ID, transferRef); err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.ErrCodeInvalidTransition {
			// a concurrent delivery completed it first
			return nil
		}
		return err
	}
	p.Status = payoutmodel.StatusCompleted
	p.ExternalTransferRef = transferRef

	s.logger.Info("payout completed", "payout_id", p.ID, "transfer_ref", transferRef)
	s.publishPayoutEvent(ctx, events.EventTypePayoutCompleted, p, "")
	return nil
}

// failPayout fails the payout and issues the compensating credit in one
// guarded unit. Losing the guard race means another path already
// compensated, which is the desired outcome.
func (s *Service) failPayout(ctx context.Context, p *payoutmodel.Payout, reason string) error {
	if err := s.repo.FailAndRefund(p, reason); err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.ErrCodeInvalidTransition {
			return nil
		}
		return err
	}
	p.Status = payoutmodel.StatusFailed
	p.FailureReason = &reason

	s.logger.Warn("payout failed, funds restored",
		"payout_id", p.ID,
		"amount", p.Amount,
		"reason", reason)
	s.publishPayoutEvent(ctx, events.EventTypePayoutFailed, p, reason)
	return nil
}

func (s *Service) GetPayout(payoutID, actorID string) (*payoutmodel.Payout, error) {
	p, err := s.repo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}
	if p.UserID != actorID {
		return nil, apperrors.ErrUnauthorizedUser
	}
	return p, nil
}

func (s *Service) ListForUser(actorID string) ([]*payoutmodel.Payout, error) {
	return s.repo.ListForUser(actorID, 100)
}

func (s *Service) publishPayoutEvent(ctx context.Context, eventType string, p *payoutmodel.Payout, reason string) {
	event := events.NewPayoutEvent(eventType, p.ID, p.UserID, p.Amount, p.Status, reason)
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish payout event", "event_type", eventType, "error", err)
	}
}
