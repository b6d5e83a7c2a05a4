package escrow

import (
	"time"

	paymentmodel "github.com/collabary/payments/internal/core/datamodel/payment"
)

type ConfirmPaymentRequest struct {
	MethodRef string `json:"payment_method"`
}

type PaymentResponse struct {
	ID                    string     `json:"id"`
	CollaborationID       string     `json:"collaboration_id"`
	PayerID               string     `json:"payer_id"`
	PayeeID               string     `json:"payee_id"`
	AmountTotal           int64      `json:"amount_total"`
	AmountPrincipal       int64      `json:"amount_principal"`
	AmountPayerFee        int64      `json:"amount_payer_fee"`
	AmountPayeeFee        int64      `json:"amount_payee_fee"`
	AmountPlatformRevenue int64      `json:"amount_platform_revenue"`
	NetPayeeCredit        int64      `json:"net_payee_credit"`
	Currency              string     `json:"currency"`
	Status                string     `json:"status"`
	FailureReason         *string    `json:"failure_reason,omitempty"`
	ReleasedAt            *time.Time `json:"released_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

func NewPaymentResponse(p *paymentmodel.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                    p.ID,
		CollaborationID:       p.CollaborationID,
		PayerID:               p.PayerID,
		PayeeID:               p.PayeeID,
		AmountTotal:           p.AmountTotal,
		AmountPrincipal:       p.AmountPrincipal,
		AmountPayerFee:        p.AmountPayerFee,
		AmountPayeeFee:        p.AmountPayeeFee,
		AmountPlatformRevenue: p.AmountPlatformRevenue,
		NetPayeeCredit:        p.NetPayeeCredit(),
		Currency:              p.Currency,
		Status:                p.Status,
		FailureReason:         p.FailureReason,
		ReleasedAt:            p.ReleasedAt,
		CreatedAt:             p.CreatedAt,
	}
}

type ClientSecretResponse struct {
	ClientSecret string `json:"client_secret"`
}

type PaymentListResponse struct {
	Payments []*PaymentResponse `json:"payments"`
}

func NewPaymentListResponse(payments []*paymentmodel.Payment) *PaymentListResponse {
	out := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, NewPaymentResponse(p))
	}
	return &PaymentListResponse{Payments: out}
}
