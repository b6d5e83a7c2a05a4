package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/collabary/payments/internal"
	invoicemodel "github.com/collabary/payments/internal/core/datamodel/invoice"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Create inserts the invoice; the unique payment_id index makes a
// duplicate a no-op insert, surfaced as a conflict so the caller can
// re-read the winner.
func (r *InvoiceRepository) Create(inv *invoicemodel.Invoice) error {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(inv)
	if result.Error != nil {
		return fmt.Errorf("failed to create invoice: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewConflictError(
			"an invoice already exists for this payment",
			apperrors.ErrCodeInvalidTransition,
		)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(id string) (*invoicemodel.Invoice, error) {
	return r.getBy("id = ?", id)
}

func (r *InvoiceRepository) GetByNumber(number string) (*invoicemodel.Invoice, error) {
	return r.getBy("invoice_number = ?", number)
}

func (r *InvoiceRepository) GetByPaymentID(paymentID string) (*invoicemodel.Invoice, error) {
	return r.getBy("payment_id = ?", paymentID)
}

func (r *InvoiceRepository) getBy(query string, arg interface{}) (*invoicemodel.Invoice, error) {
	var inv invoicemodel.Invoice
	err := r.db.Where(query, arg).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &inv, nil
}

// CountIssuedBetween counts invoices issued in [start, end), which feeds
// the monthly sequence in invoice numbers.
func (r *InvoiceRepository) CountIssuedBetween(start, end time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&invoicemodel.Invoice{}).
		Where("issue_date >= ? AND issue_date < ?", start, end).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return count, nil
}

func (r *InvoiceRepository) ListForPayer(payerID string, limit int) ([]*invoicemodel.Invoice, error) {
	var invoices []*invoicemodel.Invoice
	query := r.db.Where("payer_id = ?", payerID).Order("issue_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

func (r *InvoiceRepository) ListPaidForPayee(payeeID string, limit int) ([]*invoicemodel.Invoice, error) {
	var invoices []*invoicemodel.Invoice
	query := r.db.Where("payee_id = ? AND status = ?", payeeID, invoicemodel.StatusPaid).
		Order("issue_date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("failed to list payee invoices: %w", err)
	}
	return invoices, nil
}
