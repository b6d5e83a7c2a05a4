package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/collabary/payments/internal"
	invoicemodel "github.com/collabary/payments/internal/core/datamodel/invoice"
	paymentmodel "github.com/collabary/payments/internal/core/datamodel/payment"
	"github.com/collabary/payments/internal/core/events"
)

// Repository is the invoice storage contract. Create enforces one
// invoice per payment through the unique payment_id index.
type Repository interface {
	Create(inv *invoicemodel.Invoice) error
	GetByID(id string) (*invoicemodel.Invoice, error)
	GetByNumber(number string) (*invoicemodel.Invoice, error)
	GetByPaymentID(paymentID string) (*invoicemodel.Invoice, error)
	CountIssuedBetween(start, end time.Time) (int64, error)
	ListForPayer(payerID string, limit int) ([]*invoicemodel.Invoice, error)
	ListPaidForPayee(payeeID string, limit int) ([]*invoicemodel.Invoice, error)
}

// PaymentSource is the slice of the escrow storage the generator reads.
type PaymentSource interface {
	GetByID(id string) (*paymentmodel.Payment, error)
}

// Service cuts one invoice per released payment and serves the billing
// read surface for both parties. Generation rides the event bus, so a
// failed invoice never touches the payment transition that produced it.
type Service struct {
	repo     Repository
	payments PaymentSource
	logger   *slog.Logger
}

func NewService(repo Repository, payments PaymentSource, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		payments: payments,
		logger:   logger,
	}
}

// Register subscribes invoice generation to payment releases.
func (s *Service) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypePaymentReleased, s.handlePaymentReleased)
}

func (s *Service) handlePaymentReleased(ctx context.Context, event events.Event) error {
	data, ok := event.Payload().(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected payload for %s event", event.EventType())
	}
	paymentID, _ := data["payment_id"].(string)
	if paymentID == "" {
		return fmt.Errorf("%s event missing payment_id", event.EventType())
	}
	_, err := s.CreateFromPayment(ctx, paymentID)
	return err
}

// CreateFromPayment is idempotent per payment: a replay returns the
// invoice already cut instead of numbering a second one.
func (s *Service) CreateFromPayment(ctx context.Context, paymentID string) (*invoicemodel.Invoice, error) {
	if existing, err := s.repo.GetByPaymentID(paymentID); err == nil {
		return existing, nil
	}

	p, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}

	number, err := s.nextNumber()
	if err != nil {
		return nil, err
	}

	inv := &invoicemodel.Invoice{
		ID:            uuid.New().String(),
		InvoiceNumber: number,
		PaymentID:     p.ID,
		PayerID:       p.PayerID,
		PayeeID:       p.PayeeID,
		Status:        invoicemodel.StatusIssued,
		Amount:        p.AmountPrincipal,
		PlatformFee:   p.AmountPlatformRevenue,
		PayeeAmount:   p.NetPayeeCredit(),
		Currency:      p.Currency,
		Description:   "collaboration payment",
		IssueDate:     time.Now().UTC(),
	}
	if p.ReleasedAt != nil {
		inv.Status = invoicemodel.StatusPaid
		inv.PaidDate = p.ReleasedAt
	}

	if err := s.repo.Create(inv); err != nil {
		if _, ok := apperrors.IsAppError(err); ok {
			// a concurrent delivery cut the invoice first
			return s.repo.GetByPaymentID(paymentID)
		}
		s.logger.Error("failed to create invoice", "error", err, "payment_id", paymentID)
		return nil, err
	}

	s.logger.Info("invoice created",
		"invoice_number", inv.InvoiceNumber,
		"payment_id", p.ID,
		"payee_amount", inv.PayeeAmount)

	return inv, nil
}

// nextNumber issues INV-<yyyymm>-<seq>; the sequence resets monthly.
func (s *Service) nextNumber() (string, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	count, err := s.repo.CountIssuedBetween(start, end)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%04d", now.Format("200601"), count+1), nil
}

func (s *Service) GetInvoice(invoiceID, actorID string) (*invoicemodel.Invoice, error) {
	inv, err := s.repo.GetByID(invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.PayerID != actorID && inv.PayeeID != actorID {
		return nil, apperrors.ErrUnauthorizedUser
	}
	return inv, nil
}

// ListForPayer returns the payer's invoices, newest first.
func (s *Service) ListForPayer(actorID string) ([]*invoicemodel.Invoice, error) {
	return s.repo.ListForPayer(actorID, 100)
}

// Earnings summarizes the payee's paid invoices.
func (s *Service) Earnings(actorID string) (*EarningsResponse, error) {
	invoices, err := s.repo.ListPaidForPayee(actorID, 100)
	if err != nil {
		return nil, err
	}
	return NewEarningsResponse(invoices), nil
}
