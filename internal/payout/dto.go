package payout

import (
	"time"

	payoutmodel "github.com/collabary/payments/internal/core/datamodel/payout"
)

type RequestPayoutRequest struct {
	Amount int64 `json:"amount"`
}

type PayoutResponse struct {
	ID            string     `json:"id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	RequestedAt   time.Time  `json:"requested_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func NewPayoutResponse(p *payoutmodel.Payout) *PayoutResponse {
	return &PayoutResponse{
		ID:            p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        p.Status,
		FailureReason: p.FailureReason,
		RequestedAt:   p.RequestedAt,
		ProcessedAt:   p.ProcessedAt,
		CompletedAt:   p.CompletedAt,
	}
}

type PayoutListResponse struct {
	Payouts []*PayoutResponse `json:"payouts"`
}

func NewPayoutListResponse(payouts []*payoutmodel.Payout) *PayoutListResponse {
	out := make([]*PayoutResponse, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, NewPayoutResponse(p))
	}
	return &PayoutListResponse{Payouts: out}
}
