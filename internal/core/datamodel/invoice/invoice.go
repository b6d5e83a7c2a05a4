package invoice

import (
	"time"
)

// Invoice statuses. ISSUED covers a payment that reached escrow; PAID
// means the funds were released to the payee.
const (
	StatusIssued = "issued"
	StatusPaid   = "paid"
)

// Invoice is the billing record cut from a released payment. One invoice
// per payment; the amounts are the fee split frozen at issue time, in
// minor units.
type Invoice struct {
	ID            string     `json:"id" gorm:"primaryKey;type:uuid"`
	InvoiceNumber string     `json:"invoice_number" gorm:"column:invoice_number;uniqueIndex;not null"`
	PaymentID     string     `json:"payment_id" gorm:"column:payment_id;type:uuid;uniqueIndex;not null"`
	PayerID       string     `json:"payer_id" gorm:"column:payer_id;type:uuid;index;not null"`
	PayeeID       string     `json:"payee_id" gorm:"column:payee_id;type:uuid;index;not null"`
	Status        string     `json:"status" gorm:"column:status;default:issued"`
	Amount        int64      `json:"amount" gorm:"column:amount;not null"`
	PlatformFee   int64      `json:"platform_fee" gorm:"column:platform_fee;not null"`
	PayeeAmount   int64      `json:"payee_amount" gorm:"column:payee_amount;not null"`
	Currency      string     `json:"currency" gorm:"column:currency;size:3"`
	Description   string     `json:"description" gorm:"column:description"`
	IssueDate     time.Time  `json:"issue_date" gorm:"column:issue_date;not null;index"`
	PaidDate      *time.Time `json:"paid_date,omitempty" gorm:"column:paid_date"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Invoice) TableName() string {
	return "invoices"
}
