package postgres

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/collabary/payments/internal"
	walletmodel "github.com/collabary/payments/internal/core/datamodel/wallet"
	"github.com/collabary/payments/internal/wallet"
)

type WalletRepository struct {
	db       *gorm.DB
	currency string
}

func NewWalletRepository(db *gorm.DB, currency string) *WalletRepository {
	return &WalletRepository{db: db, currency: currency}
}

func (r *WalletRepository) GetOrCreate(userID string) (*walletmodel.Wallet, error) {
	var wlt *walletmodel.Wallet
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		wlt, txErr = getOrCreateTx(tx, userID, r.currency)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return wlt, nil
}

func (r *WalletRepository) GetByUserID(userID string) (*walletmodel.Wallet, error) {
	var wlt walletmodel.Wallet
	err := r.db.Where("user_id = ?", userID).First(&wlt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wlt, nil
}

func (r *WalletRepository) Credit(params wallet.EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error) {
	return r.apply(params, ApplyCredit)
}

func (r *WalletRepository) Debit(params wallet.EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error) {
	return r.apply(params, ApplyDebit)
}

func (r *WalletRepository) apply(
	params wallet.EntryParams,
	fn func(tx *gorm.DB, params wallet.EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error),
) (*walletmodel.Wallet, *walletmodel.Transaction, error) {
	if params.Currency == "" {
		params.Currency = r.currency
	}
	var (
		wlt *walletmodel.Wallet
		txn *walletmodel.Transaction
	)
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		wlt, txn, txErr = fn(tx, params)
		return txErr
	})
	if err != nil {
		return nil, nil, err
	}
	return wlt, txn, nil
}

func (r *WalletRepository) ListTransactions(userID string, limit int) ([]*walletmodel.Transaction, error) {
	var transactions []*walletmodel.Transaction
	query := r.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return transactions, nil
}

// ApplyCredit records a credit inside the caller's transaction. Exported
// so the escrow and payout repositories can make ledger entries atomic
// with their own status transitions.
func ApplyCredit(tx *gorm.DB, params wallet.EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error) {
	return applyLocked(tx, params, false)
}

// ApplyDebit records a debit inside the caller's transaction. It fails
// with an insufficient balance error when the available balance does not
// cover the amount, leaving the transaction to roll back.
func ApplyDebit(tx *gorm.DB, params wallet.EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error) {
	return applyLocked(tx, params, true)
}

func applyLocked(tx *gorm.DB, params wallet.EntryParams, debit bool) (*walletmodel.Wallet, *walletmodel.Transaction, error) {
	wlt, err := getOrCreateTx(tx, params.UserID, params.Currency)
	if err != nil {
		return nil, nil, err
	}

	txn, err := applyEntry(wlt, params, debit)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Model(&walletmodel.Wallet{}).
		Where("id = ?", wlt.ID).
		Updates(map[string]interface{}{
			"available_balance": wlt.AvailableBalance,
			"total_earned":      wlt.TotalEarned,
			"total_withdrawn":   wlt.TotalWithdrawn,
		}).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to update wallet balance: %w", err)
	}

	if err := tx.Create(txn).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to append wallet transaction: %w", err)
	}

	return wlt, txn, nil
}

// getOrCreateTx locks the wallet row for the rest of the transaction so
// concurrent entries against the same wallet serialize instead of
// clobbering each other's balance snapshot.
func getOrCreateTx(tx *gorm.DB, userID, currency string) (*walletmodel.Wallet, error) {
	var wlt walletmodel.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wlt).Error
	if err == nil {
		return &wlt, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	wlt = walletmodel.Wallet{
		ID:       uuid.New().String(),
		UserID:   userID,
		Currency: currency,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&wlt).Error; err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	// Re-read under lock: a concurrent request may have won the insert.
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wlt).Error; err != nil {
		return nil, fmt.Errorf("failed to reload wallet: %w", err)
	}
	return &wlt, nil
}

// applyEntry mutates the aggregate in memory and builds the ledger row.
// Pure with respect to storage, so the balance rules are testable on
// their own.
func applyEntry(wlt *walletmodel.Wallet, params wallet.EntryParams, debit bool) (*walletmodel.Transaction, error) {
	amount := params.Amount
	if debit {
		if wlt.AvailableBalance < amount {
			return nil, apperrors.NewInsufficientBalanceError(wlt.AvailableBalance, amount)
		}
		amount = -amount
	}

	wlt.AvailableBalance += amount

	switch params.Kind {
	case walletmodel.TypePaymentReleased:
		wlt.TotalEarned += amount
	case walletmodel.TypePaymentRefunded:
		wlt.TotalEarned += amount
	case walletmodel.TypePayout:
		wlt.TotalWithdrawn += -amount
	case walletmodel.TypePayoutFailedRefund:
		wlt.TotalWithdrawn -= amount
	}

	return &walletmodel.Transaction{
		ID:            uuid.New().String(),
		WalletID:      wlt.ID,
		UserID:        params.UserID,
		Type:          params.Kind,
		Amount:        amount,
		BalanceAfter:  wlt.AvailableBalance,
		ReferenceType: params.ReferenceType,
		ReferenceID:   params.ReferenceID,
		Description:   params.Description,
	}, nil
}
