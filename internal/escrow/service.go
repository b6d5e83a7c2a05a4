package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/collabary/payments/internal"
	"github.com/collabary/payments/internal/core/common/validation"
	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
	paymentmodel "github.com/collabary/payments/internal/core/datamodel/payment"
	processortypes "github.com/collabary/payments/internal/core/datamodel/processor"
	"github.com/collabary/payments/internal/core/events"
	"github.com/collabary/payments/internal/processor"
)

// Service drives a payment through its escrow lifecycle. Transitions
// happen only here; the repository guards each one against concurrent
// writers, and ledger side effects commit in the same transaction as the
// status change.
type Service struct {
	repo      Repository
	accounts  AccountDirectory
	processor processor.API
	eventBus  *events.EventBus
	currency  string
	logger    *slog.Logger
}

func NewService(
	repo Repository,
	accounts AccountDirectory,
	processorAPI processor.API,
	eventBus *events.EventBus,
	currency string,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		accounts:  accounts,
		processor: processorAPI,
		eventBus:  eventBus,
		currency:  currency,
		logger:    logger,
	}
}

// CreatePayment opens the escrow for a collaboration: both parties must
// have completed processor onboarding, the fee split is computed from
// the principal, and a hold intent is created before the payment row is
// persisted as PENDING.
func (s *Service) CreatePayment(ctx context.Context, params CreatePaymentParams) (*paymentmodel.Payment, error) {
	if err := validation.ValidatePrincipalAmount(params.Principal); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByCollaborationID(params.CollaborationID); err == nil && existing != nil {
		return nil, apperrors.NewConflictError(
			"a payment already exists for this collaboration",
			apperrors.ErrCodeInvalidTransition,
		)
	}

	payer, err := s.accounts.GetUser(params.PayerID)
	if err != nil {
		return nil, err
	}
	payee, err := s.accounts.GetUser(params.PayeeID)
	if err != nil {
		return nil, err
	}

	if !payer.CanPay() {
		return nil, apperrors.NewOnboardingRequiredError(
			accountmodel.RolePayer,
			"/onboarding/payer",
			"payer must complete payment onboarding before accepting",
		)
	}
	if !payee.CanReceive() {
		return nil, apperrors.NewOnboardingRequiredError(
			accountmodel.RolePayee,
			"/onboarding/payee",
			"payee must register a destination account before accepting",
		)
	}

	split := ComputeFeeSplit(params.Principal)

	intent, err := s.processor.CreateIntent(ctx, &processortypes.CreateIntentRequest{
		Amount:         split.Total,
		Currency:       s.currency,
		CustomerRef:    payer.ExternalCustomerRef,
		FeeAmount:      split.PlatformRevenue,
		DestinationRef: payee.ExternalAccountRef,
		Metadata: map[string]string{
			"collaboration_id": params.CollaborationID,
		},
	})
	if err != nil {
		s.logger.Error("failed to create hold intent",
			"error", err,
			"collaboration_id", params.CollaborationID)
		return nil, s.wrapProcessorError(err, "could not create payment intent")
	}

	p := &paymentmodel.Payment{
		ID:                    uuid.New().String(),
		CollaborationID:       params.CollaborationID,
		PayerID:               params.PayerID,
		PayeeID:               params.PayeeID,
		AmountTotal:           split.Total,
		AmountPrincipal:       split.Principal,
		AmountPayerFee:        split.PayerFee,
		AmountPayeeFee:        split.PayeeFee,
		AmountPlatformRevenue: split.PlatformRevenue,
		Currency:              s.currency,
		Status:                paymentmodel.StatusPending,
		ExternalIntentRef:     intent.ID,
		ClientSecret:          intent.ClientSecret,
	}

	if err := s.repo.Create(p); err != nil {
		// a concurrent accept can land on the unique collaboration index
		// after the pre-check passed; surface that as the same conflict
		if _, ok := apperrors.IsAppError(err); ok {
			return nil, err
		}
		s.logger.Error("failed to persist payment", "error", err, "collaboration_id", params.CollaborationID)
		return nil, apperrors.NewInternalError("could not create payment", err)
	}

	s.logger.Info("payment created",
		"payment_id", p.ID,
		"collaboration_id", p.CollaborationID,
		"amount_total", p.AmountTotal,
		"intent_ref", p.ExternalIntentRef)

	return p, nil
}

// ConfirmPayment is the payer's synchronous settle path. The guarded
// PENDING -> PROCESSING transition doubles as the double-capture lock: a
// second confirm while the first is in flight loses the update race and
// gets a conflict before any processor call is made.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID, methodRef, actorID string) (*paymentmodel.Payment, error) {
	p, err := s.repo.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if p.PayerID != actorID {
		return nil, apperrors.ErrUnauthorizedUser
	}
	if p.Status != paymentmodel.StatusPending {
		return nil, apperrors.NewTransitionConflictError("payment", p.Status, paymentmodel.StatusProcessing)
	}

	if err := s.repo.MarkProcessing(p.ID); err != nil {
		return nil, err
	}

	intent, err := s.processor.ConfirmIntent(ctx, p.ExternalIntentRef, methodRef)
	if err != nil {
		return s.settleConfirmFailure(ctx, p, err)
	}

	if intent.Status == processortypes.IntentStatusRequiresCapture {
		intent, err = s.processor.CaptureIntent(ctx, p.ExternalIntentRef)
		if err != nil {
			return s.settleConfirmFailure(ctx, p, err)
		}
	}

	if intent.Status != processortypes.IntentStatusSucceeded {
		reason := fmt.Sprintf("intent ended in status %s", intent.Status)
		if err := s.failPayment(ctx, p, reason); err != nil {
			return nil, err
		}
		return nil, apperrors.NewExternalError(reason, apperrors.ErrCodeProcessorDeclined, false, nil)
	}

	if err := s.repo.MarkHeld(p.ID); err != nil {
		return nil, err
	}
	p.Status = paymentmodel.StatusHeld

	s.logger.Info("payment held", "payment_id", p.ID, "intent_ref", p.ExternalIntentRef)
	s.publishPaymentEvent(ctx, events.EventTypePaymentHeld, p, "")

	return p, nil
}

// settleConfirmFailure maps a processor error from the confirm/capture
// path. Permanent declines are terminal; transient failures leave the
// payment PROCESSING for the webhook or the reconciliation sweep to
// settle.
func (s *Service) settleConfirmFailure(ctx context.Context, p *paymentmodel.Payment, err error) (*paymentmodel.Payment, error) {
	if procErr, ok := processor.AsProcessorError(err); ok && !procErr.Transient {
		if failErr := s.failPayment(ctx, p, procErr.Message); failErr != nil {
			return nil, failErr
		}
		return nil, apperrors.NewExternalError(procErr.Message, apperrors.ErrCodeProcessorDeclined, false, err)
	}

	s.logger.Warn("transient processor failure during confirm, leaving payment processing",
		"payment_id", p.ID,
		"error", err)
	return nil, s.wrapProcessorError(err, "payment confirmation did not complete")
}

func (s *Service) failPayment(ctx context.Context, p *paymentmodel.Payment, reason string) error {
	if err := s.repo.MarkFailed(p.ID, reason); err != nil {
		return err
	}
	p.Status = paymentmodel.StatusFailed
	p.FailureReason = &reason

	s.logger.Warn("payment failed", "payment_id", p.ID, "reason", reason)
	s.publishPaymentEvent(ctx, events.EventTypePaymentFailed, p, reason)
	return nil
}

// ReleasePayment moves HELD -> RELEASED and credits the payee's wallet
// with the net amount in the same database transaction. Only the payer
// may release.
func (s *Service) ReleasePayment(ctx context.Context, collaborationID, actorID string) (*paymentmodel.Payment, error) {
	p, err := s.repo.GetByCollaborationID(collaborationID)
	if err != nil {
		return nil, err
	}
	if p.PayerID != actorID {
		return nil, apperrors.ErrUnauthorizedUser
	}
	if p.Status != paymentmodel.StatusHeld {
		return nil, apperrors.NewTransitionConflictError("payment", p.Status, paymentmodel.StatusReleased)
	}

	if err := s.repo.ReleaseAndCredit(p); err != nil {
		return nil, err
	}
	p.Status = paymentmodel.StatusReleased
	now := time.Now().UTC()
	p.ReleasedAt = &now

	s.logger.Info("payment released",
		"payment_id", p.ID,
		"payee_id", p.PayeeID,
		"net_credit", p.NetPayeeCredit())
	s.publishPaymentEvent(ctx, events.EventTypePaymentReleased, p, "")

	return p, nil
}

// HandleIntentSucceeded applies the asynchronous settle confirmation.
// Duplicate and late deliveries are safe no-ops: only PENDING and
// PROCESSING payments can still move to HELD.
func (s *Service) HandleIntentSucceeded(ctx context.Context, intentRef string) error {
	p, err := s.repo.GetByIntentRef(intentRef)
	if err != nil {
		return err
	}

	switch p.Status {
	case paymentmodel.StatusPending, paymentmodel.StatusProcessing:
		if err := s.repo.MarkHeld(p.ID); err != nil {
			if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.ErrCodeInvalidTransition {
				// lost the race against a concurrent delivery; the
				// transition already happened
				return nil
			}
			return err
		}
		p.Status = paymentmodel.StatusHeld
		s.logger.Info("payment held via webhook", "payment_id", p.ID, "intent_ref", intentRef)
		s.publishPaymentEvent(ctx, events.EventTypePaymentHeld, p, "")
		return nil
	case paymentmodel.StatusHeld, paymentmodel.StatusReleased:
		return nil
	default:
		s.logger.Warn("intent succeeded for terminal payment, ignoring",
			"payment_id", p.ID,
			"status", p.Status)
		return nil
	}
}

func (s *Service) HandleIntentFailed(ctx context.Context, intentRef, reason string) error {
	p, err := s.repo.GetByIntentRef(intentRef)
	if err != nil {
		return err
	}

	switch p.Status {
	case paymentmodel.StatusPending, paymentmodel.StatusProcessing:
		if reason == "" {
			reason = "payment failed at processor"
		}
		return s.failPayment(ctx, p, reason)
	case paymentmodel.StatusFailed:
		return nil
	default:
		s.logger.Warn("intent failed for payment past processing, ignoring",
			"payment_id", p.ID,
			"status", p.Status)
		return nil
	}
}

// HandleChargeRefunded applies a processor-side refund. A refund of a
// HELD payment has no ledger effect; a refund after release claws the
// net credit back out of the payee wallet atomically with the status
// change.
func (s *Service) HandleChargeRefunded(ctx context.Context, intentRef string) error {
	p, err := s.repo.GetByIntentRef(intentRef)
	if err != nil {
		return err
	}

	switch p.Status {
	case paymentmodel.StatusHeld:
		if err := s.repo.RefundHeld(p.ID); err != nil {
			return err
		}
	case paymentmodel.StatusReleased:
		if err := s.repo.RefundReleasedAndDebit(p); err != nil {
			return err
		}
	case paymentmodel.StatusRefunded:
		return nil
	default:
		s.logger.Warn("refund for payment not held or released, ignoring",
			"payment_id", p.ID,
			"status", p.Status)
		return nil
	}

	p.Status = paymentmodel.StatusRefunded
	s.logger.Info("payment refunded", "payment_id", p.ID, "intent_ref", intentRef)
	s.publishPaymentEvent(ctx, events.EventTypePaymentRefunded, p, "")
	return nil
}

// ReconcileProcessing settles payments stuck in PROCESSING past the
// grace window by asking the processor for the intent's final status.
func (s *Service) ReconcileProcessing(ctx context.Context, graceWindow time.Duration, limit int) error {
	cutoff := time.Now().UTC().Add(-graceWindow)
	stuck, err := s.repo.ListProcessingBefore(cutoff, limit)
	if err != nil {
		return err
	}

	for _, p := range stuck {
		intent, err := s.processor.RetrieveIntent(ctx, p.ExternalIntentRef)
		if err != nil {
			s.logger.Warn("could not retrieve intent for stuck payment",
				"payment_id", p.ID,
				"error", err)
			continue
		}

		switch intent.Status {
		case processortypes.IntentStatusSucceeded:
			if err := s.HandleIntentSucceeded(ctx, p.ExternalIntentRef); err != nil {
				s.logger.Error("failed to reconcile stuck payment", "payment_id", p.ID, "error", err)
			}
		case processortypes.IntentStatusFailed, processortypes.IntentStatusCanceled:
			reason := fmt.Sprintf("reconciled: intent %s", intent.Status)
			if err := s.HandleIntentFailed(ctx, p.ExternalIntentRef, reason); err != nil {
				s.logger.Error("failed to reconcile stuck payment", "payment_id", p.ID, "error", err)
			}
		default:
			s.logger.Info("stuck payment still in flight at processor",
				"payment_id", p.ID,
				"intent_status", intent.Status)
		}
	}

	return nil
}

// GetPayment returns a payment to one of its parties.
func (s *Service) GetPayment(paymentID, actorID string) (*paymentmodel.Payment, error) {
	p, err := s.repo.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if p.PayerID != actorID && p.PayeeID != actorID {
		return nil, apperrors.ErrUnauthorizedUser
	}
	return p, nil
}

func (s *Service) GetByCollaboration(collaborationID, actorID string) (*paymentmodel.Payment, error) {
	p, err := s.repo.GetByCollaborationID(collaborationID)
	if err != nil {
		return nil, err
	}
	if p.PayerID != actorID && p.PayeeID != actorID {
		return nil, apperrors.ErrUnauthorizedUser
	}
	return p, nil
}

func (s *Service) ListForUser(actorID string) ([]*paymentmodel.Payment, error) {
	return s.repo.ListForUser(actorID, 100)
}

// GetClientSecret hands the intent's client secret to the payer so the
// frontend can collect a payment method. Payees never see it.
func (s *Service) GetClientSecret(paymentID, actorID string) (string, error) {
	p, err := s.repo.GetByID(paymentID)
	if err != nil {
		return "", err
	}
	if p.PayerID != actorID {
		return "", apperrors.ErrUnauthorizedUser
	}
	return p.ClientSecret, nil
}

func (s *Service) wrapProcessorError(err error, message string) error {
	if processor.IsTransient(err) {
		return apperrors.NewExternalError(message, apperrors.ErrCodeProcessorUnhealthy, true, err)
	}
	return apperrors.NewExternalError(message, apperrors.ErrCodeProcessorDeclined, false, err)
}

func (s *Service) publishPaymentEvent(ctx context.Context, eventType string, p *paymentmodel.Payment, reason string) {
	event := events.NewPaymentEvent(
		eventType,
		p.ID,
		p.CollaborationID,
		p.PayerID,
		p.PayeeID,
		p.AmountPrincipal,
		p.NetPayeeCredit(),
		p.Status,
		reason,
	)
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish payment event", "event_type", eventType, "error", err)
	}
}
