package invoice

import (
	invoicemodel "github.com/collabary/payments/internal/core/datamodel/invoice"
)

type EarningsSummary struct {
	TotalEarnings     int64 `json:"total_earnings"`
	TotalPlatformFees int64 `json:"total_platform_fees"`
	TotalGross        int64 `json:"total_gross"`
	Count             int   `json:"count"`
}

// EarningsResponse is the payee's paid invoices plus running totals.
type EarningsResponse struct {
	Invoices []*invoicemodel.Invoice `json:"invoices"`
	Summary  EarningsSummary         `json:"summary"`
}

func NewEarningsResponse(invoices []*invoicemodel.Invoice) *EarningsResponse {
	resp := &EarningsResponse{Invoices: invoices}
	if resp.Invoices == nil {
		resp.Invoices = []*invoicemodel.Invoice{}
	}
	for _, inv := range invoices {
		resp.Summary.TotalEarnings += inv.PayeeAmount
		resp.Summary.TotalPlatformFees += inv.PlatformFee
	}
	resp.Summary.TotalGross = resp.Summary.TotalEarnings + resp.Summary.TotalPlatformFees
	resp.Summary.Count = len(invoices)
	return resp
}
