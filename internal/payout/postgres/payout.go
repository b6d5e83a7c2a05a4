package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/collabary/payments/internal"
	payoutmodel "github.com/collabary/payments/internal/core/datamodel/payout"
	walletmodel "github.com/collabary/payments/internal/core/datamodel/wallet"
	"github.com/collabary/payments/internal/payout"
	"github.com/collabary/payments/internal/wallet"
	walletpg "github.com/collabary/payments/internal/wallet/postgres"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

var _ payout.Repository = (*PayoutRepository)(nil)

// CreateWithDebit writes the payout row and the ledger debit in one
// transaction. An insufficient balance rolls the whole request back, so
// no payout row ever exists without its debit.
func (r *PayoutRepository) CreateWithDebit(p *payoutmodel.Payout) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		_, _, err := walletpg.ApplyDebit(tx, wallet.EntryParams{
			UserID:        p.UserID,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Kind:          walletmodel.TypePayout,
			ReferenceType: walletmodel.ReferencePayout,
			ReferenceID:   p.ID,
			Description:   "payout requested",
		})
		if err != nil {
			return err
		}

		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}
		return nil
	})
}

func (r *PayoutRepository) GetByID(id string) (*payoutmodel.Payout, error) {
	return r.getBy("id = ?", id)
}

func (r *PayoutRepository) GetByTransferRef(transferRef string) (*payoutmodel.Payout, error) {
	return r.getBy("external_transfer_ref = ?", transferRef)
}

func (r *PayoutRepository) getBy(query string, arg interface{}) (*payoutmodel.Payout, error) {
	var p payoutmodel.Payout
	err := r.db.Where(query, arg).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return &p, nil
}

func (r *PayoutRepository) ListForUser(userID string, limit int) ([]*payoutmodel.Payout, error) {
	var payouts []*payoutmodel.Payout
	query := r.db.Where("user_id = ?", userID).Order("requested_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&payouts).Error; err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return payouts, nil
}

func (r *PayoutRepository) MarkProcessing(id string) error {
	return r.transition(r.db, id,
		[]string{payoutmodel.StatusPending},
		payoutmodel.StatusProcessing,
		map[string]interface{}{
			"status":       payoutmodel.StatusProcessing,
			"processed_at": time.Now().UTC(),
		})
}

// AttachTransferRef records the external ref while the payout is still
// in flight so webhook deliveries can find the row.
func (r *PayoutRepository) AttachTransferRef(id, transferRef string) error {
	result := r.db.Model(&payoutmodel.Payout{}).
		Where("id = ? AND status = ?", id, payoutmodel.StatusProcessing).
		Update("external_transfer_ref", transferRef)
	if result.Error != nil {
		return fmt.Errorf("failed to attach transfer ref: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrPayoutNotFound
	}
	return nil
}

func (r *PayoutRepository) MarkCompleted(id, transferRef string) error {
	return r.transition(r.db, id,
		[]string{payoutmodel.StatusProcessing},
		payoutmodel.StatusCompleted,
		map[string]interface{}{
			"status":                payoutmodel.StatusCompleted,
			"external_transfer_ref": transferRef,
			"completed_at":          time.Now().UTC(),
		})
}

// FailAndRefund fails the payout and issues the compensating credit in
// one transaction. The guard on the status update is what makes the
// compensation exactly-once: whichever of the sync path and the webhook
// path applies the transition also carries the credit, and the other
// gets a conflict.
func (r *PayoutRepository) FailAndRefund(p *payoutmodel.Payout, reason string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := r.transition(tx, p.ID,
			[]string{payoutmodel.StatusPending, payoutmodel.StatusProcessing},
			payoutmodel.StatusFailed,
			map[string]interface{}{
				"status":         payoutmodel.StatusFailed,
				"failure_reason": reason,
			}); err != nil {
			return err
		}

		_, _, err := walletpg.ApplyCredit(tx, wallet.EntryParams{
			UserID:        p.UserID,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Kind:          walletmodel.TypePayoutFailedRefund,
			ReferenceType: walletmodel.ReferencePayout,
			ReferenceID:   p.ID,
			Description:   "payout failed, funds restored",
		})
		return err
	})
}

func (r *PayoutRepository) transition(tx *gorm.DB, id string, from []string, to string, updates map[string]interface{}) error {
	result := tx.Model(&payoutmodel.Payout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update payout status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var current payoutmodel.Payout
		if err := tx.Select("status").Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrPayoutNotFound
			}
			return fmt.Errorf("failed to read payout status: %w", err)
		}
		return apperrors.NewTransitionConflictError("payout", current.Status, to)
	}
	return nil
}
