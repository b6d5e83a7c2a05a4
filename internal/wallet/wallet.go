package wallet

import (
	"log/slog"

	errors "github.com/collabary/payments/internal"
	"github.com/collabary/payments/internal/core/common/validation"
	walletmodel "github.com/collabary/payments/internal/core/datamodel/wallet"
)

// EntryParams describes one ledger mutation. Amount is always positive;
// the entry kind decides the sign recorded on the transaction. Currency
// stamps a wallet created lazily by this entry; when empty, the
// repository's configured currency applies.
type EntryParams struct {
	UserID        string
	Amount        int64
	Currency      string
	Kind          string
	ReferenceType string
	ReferenceID   string
	Description   string
}

// Repository is the ledger storage contract. Credit and Debit are each a
// single atomic unit: wallet aggregate update plus appended transaction,
// serialized per wallet. Debit must reject amounts above the available
// balance without any partial effect.
type Repository interface {
	GetOrCreate(userID string) (*walletmodel.Wallet, error)
	GetByUserID(userID string) (*walletmodel.Wallet, error)
	Credit(params EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error)
	Debit(params EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error)
	ListTransactions(userID string, limit int) ([]*walletmodel.Transaction, error)
}

// Service wraps the ledger with validation. All balance mutation in the
// system funnels through Credit/Debit here; nothing edits wallet fields
// directly.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) GetOrCreate(userID string) (*walletmodel.Wallet, error) {
	return s.repo.GetOrCreate(userID)
}

func (s *Service) Credit(params EntryParams) (*walletmodel.Wallet, error) {
	if err := validation.ValidatePrincipalAmount(params.Amount); err != nil {
		s.logger.Error("credit validation failed", "error", err, "user_id", params.UserID)
		return nil, err
	}

	wlt, txn, err := s.repo.Credit(params)
	if err != nil {
		s.logger.Error("failed to credit wallet", "error", err, "user_id", params.UserID, "amount", params.Amount)
		return nil, err
	}

	s.logger.Info("wallet credited",
		"wallet_id", wlt.ID,
		"user_id", params.UserID,
		"amount", params.Amount,
		"kind", params.Kind,
		"balance_after", txn.BalanceAfter)

	return wlt, nil
}

func (s *Service) Debit(params EntryParams) (*walletmodel.Wallet, error) {
	if err := validation.ValidatePrincipalAmount(params.Amount); err != nil {
		s.logger.Error("debit validation failed", "error", err, "user_id", params.UserID)
		return nil, err
	}

	wlt, txn, err := s.repo.Debit(params)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeInsufficientBalance {
			s.logger.Warn("debit rejected: insufficient balance",
				"user_id", params.UserID,
				"amount", params.Amount)
			return nil, err
		}
		s.logger.Error("failed to debit wallet", "error", err, "user_id", params.UserID, "amount", params.Amount)
		return nil, err
	}

	s.logger.Info("wallet debited",
		"wallet_id", wlt.ID,
		"user_id", params.UserID,
		"amount", params.Amount,
		"kind", params.Kind,
		"balance_after", txn.BalanceAfter)

	return wlt, nil
}

// ListTransactions returns the owner's ledger history, newest first.
func (s *Service) ListTransactions(userID string, limit int) ([]*walletmodel.Transaction, error) {
	return s.repo.ListTransactions(userID, limit)
}

// GetBalance returns the wallet aggregate plus recent ledger history for
// the owner's dashboard.
func (s *Service) GetBalance(userID string) (*BalanceResponse, error) {
	wlt, err := s.repo.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}

	transactions, err := s.repo.ListTransactions(userID, 50)
	if err != nil {
		return nil, err
	}

	return NewBalanceResponse(wlt, transactions), nil
}
