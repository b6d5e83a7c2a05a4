package wallet

import (
	"time"

	walletmodel "github.com/collabary/payments/internal/core/datamodel/wallet"
)

type WalletView struct {
	AvailableBalance int64  `json:"available_balance"`
	PendingBalance   int64  `json:"pending_balance"`
	TotalEarned      int64  `json:"total_earned"`
	TotalWithdrawn   int64  `json:"total_withdrawn"`
	Currency         string `json:"currency"`
}

type TransactionView struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

type BalanceResponse struct {
	Wallet       WalletView        `json:"wallet"`
	Transactions []TransactionView `json:"transactions"`
}

func NewBalanceResponse(wlt *walletmodel.Wallet, transactions []*walletmodel.Transaction) *BalanceResponse {
	views := make([]TransactionView, 0, len(transactions))
	for _, t := range transactions {
		views = append(views, TransactionView{
			ID:           t.ID,
			Type:         t.Type,
			Amount:       t.Amount,
			BalanceAfter: t.BalanceAfter,
			Description:  t.Description,
			CreatedAt:    t.CreatedAt,
		})
	}

	return &BalanceResponse{
		Wallet: WalletView{
			AvailableBalance: wlt.AvailableBalance,
			PendingBalance:   wlt.PendingBalance,
			TotalEarned:      wlt.TotalEarned,
			TotalWithdrawn:   wlt.TotalWithdrawn,
			Currency:         wlt.Currency,
		},
		Transactions: views,
	}
}
