package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/collabary/payments/internal"
	paymentmodel "github.com/collabary/payments/internal/core/datamodel/payment"
	walletmodel "github.com/collabary/payments/internal/core/datamodel/wallet"
	"github.com/collabary/payments/internal/wallet"
	walletpg "github.com/collabary/payments/internal/wallet/postgres"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create persists the PENDING row. The unique collaboration_id index is
// the authoritative guard against two payments for one collaboration;
// losing that race surfaces as the same conflict the pre-check returns.
func (r *PaymentRepository) Create(p *paymentmodel.Payment) error {
	if err := r.db.Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.NewConflictError(
				"a payment already exists for this collaboration",
				apperrors.ErrCodeInvalidTransition,
			)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(id string) (*paymentmodel.Payment, error) {
	return r.getBy("id = ?", id)
}

func (r *PaymentRepository) GetByCollaborationID(collaborationID string) (*paymentmodel.Payment, error) {
	return r.getBy("collaboration_id = ?", collaborationID)
}

func (r *PaymentRepository) GetByIntentRef(intentRef string) (*paymentmodel.Payment, error) {
	return r.getBy("external_intent_ref = ?", intentRef)
}

func (r *PaymentRepository) getBy(query string, arg interface{}) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.Where(query, arg).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) ListForUser(userID string, limit int) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	query := r.db.Where("payer_id = ? OR payee_id = ?", userID, userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) ListProcessingBefore(cutoff time.Time, limit int) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	err := r.db.Where("status = ? AND updated_at < ?", paymentmodel.StatusProcessing, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck payments: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) MarkProcessing(id string) error {
	return r.transition(r.db, id,
		[]string{paymentmodel.StatusPending},
		paymentmodel.StatusProcessing,
		map[string]interface{}{"status": paymentmodel.StatusProcessing})
}

func (r *PaymentRepository) MarkHeld(id string) error {
	return r.transition(r.db, id,
		[]string{paymentmodel.StatusPending, paymentmodel.StatusProcessing},
		paymentmodel.StatusHeld,
		map[string]interface{}{"status": paymentmodel.StatusHeld})
}

func (r *PaymentRepository) MarkFailed(id string, reason string) error {
	return r.transition(r.db, id,
		[]string{paymentmodel.StatusPending, paymentmodel.StatusProcessing},
		paymentmodel.StatusFailed,
		map[string]interface{}{
			"status":         paymentmodel.StatusFailed,
			"failure_reason": reason,
		})
}

// ReleaseAndCredit moves HELD -> RELEASED and credits the payee's wallet
// with the net amount in one database transaction. If either half fails,
// neither is durable.
func (r *PaymentRepository) ReleaseAndCredit(p *paymentmodel.Payment) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := r.transition(tx, p.ID,
			[]string{paymentmodel.StatusHeld},
			paymentmodel.StatusReleased,
			map[string]interface{}{
				"status":      paymentmodel.StatusReleased,
				"released_at": now,
			}); err != nil {
			return err
		}

		_, _, err := walletpg.ApplyCredit(tx, wallet.EntryParams{
			UserID:        p.PayeeID,
			Amount:        p.NetPayeeCredit(),
			Currency:      p.Currency,
			Kind:          walletmodel.TypePaymentReleased,
			ReferenceType: walletmodel.ReferencePayment,
			ReferenceID:   p.ID,
			Description:   "collaboration payment released",
		})
		return err
	})
}

func (r *PaymentRepository) RefundHeld(id string) error {
	return r.transition(r.db, id,
		[]string{paymentmodel.StatusHeld},
		paymentmodel.StatusRefunded,
		map[string]interface{}{"status": paymentmodel.StatusRefunded})
}

// RefundReleasedAndDebit claws the released net credit back out of the
// payee wallet atomically with the RELEASED -> REFUNDED transition.
func (r *PaymentRepository) RefundReleasedAndDebit(p *paymentmodel.Payment) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := r.transition(tx, p.ID,
			[]string{paymentmodel.StatusReleased},
			paymentmodel.StatusRefunded,
			map[string]interface{}{"status": paymentmodel.StatusRefunded}); err != nil {
			return err
		}

		_, _, err := walletpg.ApplyDebit(tx, wallet.EntryParams{
			UserID:        p.PayeeID,
			Amount:        p.NetPayeeCredit(),
			Currency:      p.Currency,
			Kind:          walletmodel.TypePaymentRefunded,
			ReferenceType: walletmodel.ReferencePayment,
			ReferenceID:   p.ID,
			Description:   "collaboration payment refunded",
		})
		return err
	})
}

// transition applies a guarded status update. Zero affected rows means a
// concurrent writer moved the payment first; the caller gets a conflict
// built from the row's current status.
func (r *PaymentRepository) transition(tx *gorm.DB, id string, from []string, to string, updates map[string]interface{}) error {
	result := tx.Model(&paymentmodel.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update payment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var current paymentmodel.Payment
		if err := tx.Select("status").Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrPaymentNotFound
			}
			return fmt.Errorf("failed to read payment status: %w", err)
		}
		return apperrors.NewTransitionConflictError("payment", current.Status, to)
	}
	return nil
}
