package postgres

import (
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/collabary/payments/internal"
	paymentmodel "github.com/collabary/payments/internal/core/datamodel/payment"
	walletmodel "github.com/collabary/payments/internal/core/datamodel/wallet"
)

func TestPaymentRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Escrow Repository Suite")
}

// PaymentSQLite mirrors the payment model without postgres defaults for SQLite compatibility
type PaymentSQLite struct {
	ID                    string     `gorm:"primaryKey"`
	CollaborationID       string     `gorm:"column:collaboration_id;uniqueIndex;not null"`
	PayerID               string     `gorm:"column:payer_id;not null"`
	PayeeID               string     `gorm:"column:payee_id;not null"`
	AmountTotal           int64      `gorm:"column:amount_total;not null"`
	AmountPrincipal       int64      `gorm:"column:amount_principal;not null"`
	AmountPayerFee        int64      `gorm:"column:amount_payer_fee;not null"`
	AmountPayeeFee        int64      `gorm:"column:amount_payee_fee;not null"`
	AmountPlatformRevenue int64      `gorm:"column:amount_platform_revenue;not null"`
	Currency              string     `gorm:"column:currency"`
	Status                string     `gorm:"column:status"`
	ExternalIntentRef     string     `gorm:"column:external_intent_ref;uniqueIndex"`
	ClientSecret          string     `gorm:"column:client_secret"`
	FailureReason         *string    `gorm:"column:failure_reason"`
	ReleasedAt            *time.Time `gorm:"column:released_at"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at"`
}

func (PaymentSQLite) TableName() string {
	return "collaboration_payments"
}

type WalletSQLite struct {
	ID               string    `gorm:"primaryKey"`
	UserID           string    `gorm:"column:user_id;uniqueIndex;not null"`
	AvailableBalance int64     `gorm:"column:available_balance;not null;default:0"`
	PendingBalance   int64     `gorm:"column:pending_balance;not null;default:0"`
	TotalEarned      int64     `gorm:"column:total_earned;not null;default:0"`
	TotalWithdrawn   int64     `gorm:"column:total_withdrawn;not null;default:0"`
	Currency         string    `gorm:"column:currency"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (WalletSQLite) TableName() string {
	return "wallets"
}

type TransactionSQLite struct {
	ID            string    `gorm:"primaryKey"`
	WalletID      string    `gorm:"column:wallet_id;index;not null"`
	UserID        string    `gorm:"column:user_id;index;not null"`
	Type          string    `gorm:"column:type;not null"`
	Amount        int64     `gorm:"column:amount;not null"`
	BalanceAfter  int64     `gorm:"column:balance_after;not null"`
	ReferenceType string    `gorm:"column:reference_type"`
	ReferenceID   string    `gorm:"column:reference_id"`
	Description   string    `gorm:"column:description"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (TransactionSQLite) TableName() string {
	return "wallet_transactions"
}

var _ = ginkgo.Describe("PaymentRepository", func() {
	var (
		db   *gorm.DB
		repo *PaymentRepository
	)

	newPayment := func(status string) *paymentmodel.Payment {
		p := &paymentmodel.Payment{
			ID:                    "payment-1",
			CollaborationID:       "collab-1",
			PayerID:               "payer-1",
			PayeeID:               "payee-1",
			AmountTotal:           105000,
			AmountPrincipal:       100000,
			AmountPayerFee:        5000,
			AmountPayeeFee:        10000,
			AmountPlatformRevenue: 15000,
			Currency:              "usd",
			Status:                status,
			ExternalIntentRef:     "pi_1",
			ClientSecret:          "pi_1_secret",
		}
		gomega.Expect(repo.Create(p)).To(gomega.Succeed())
		return p
	}

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			TranslateError: true,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		err = db.AutoMigrate(&PaymentSQLite{}, &WalletSQLite{}, &TransactionSQLite{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewPaymentRepository(db)
	})

	ginkgo.Describe("guarded transitions", func() {
		ginkgo.It("should move pending to processing exactly once", func() {
			p := newPayment(paymentmodel.StatusPending)

			gomega.Expect(repo.MarkProcessing(p.ID)).To(gomega.Succeed())

			err := repo.MarkProcessing(p.ID)
			gomega.Expect(err).To(gomega.HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(apperrors.ErrCodeInvalidTransition))
		})

		ginkgo.It("should allow held from both pending and processing", func() {
			p := newPayment(paymentmodel.StatusPending)
			gomega.Expect(repo.MarkHeld(p.ID)).To(gomega.Succeed())

			stored, err := repo.GetByID(p.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusHeld))
		})

		ginkgo.It("should reject held from a terminal status", func() {
			p := newPayment(paymentmodel.StatusFailed)

			err := repo.MarkHeld(p.ID)
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should record the failure reason", func() {
			p := newPayment(paymentmodel.StatusProcessing)

			gomega.Expect(repo.MarkFailed(p.ID, "card was declined")).To(gomega.Succeed())

			stored, _ := repo.GetByID(p.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusFailed))
			gomega.Expect(*stored.FailureReason).To(gomega.Equal("card was declined"))
		})

		ginkgo.It("should return not found for an unknown payment", func() {
			err := repo.MarkProcessing("missing")
			gomega.Expect(err).To(gomega.Equal(apperrors.ErrPaymentNotFound))
		})
	})

	ginkgo.Describe("ReleaseAndCredit", func() {
		ginkgo.It("should release and credit the net amount in one unit", func() {
			p := newPayment(paymentmodel.StatusHeld)

			gomega.Expect(repo.ReleaseAndCredit(p)).To(gomega.Succeed())

			stored, _ := repo.GetByID(p.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusReleased))
			gomega.Expect(stored.ReleasedAt).ToNot(gomega.BeNil())

			var wlt walletmodel.Wallet
			gomega.Expect(db.Where("user_id = ?", "payee-1").First(&wlt).Error).To(gomega.Succeed())
			gomega.Expect(wlt.AvailableBalance).To(gomega.Equal(int64(90000)))
			gomega.Expect(wlt.TotalEarned).To(gomega.Equal(int64(90000)))

			var txns []walletmodel.Transaction
			gomega.Expect(db.Where("reference_id = ?", p.ID).Find(&txns).Error).To(gomega.Succeed())
			gomega.Expect(txns).To(gomega.HaveLen(1))
			gomega.Expect(txns[0].Amount).To(gomega.Equal(int64(90000)))
			gomega.Expect(txns[0].BalanceAfter).To(gomega.Equal(int64(90000)))
		})

		ginkgo.It("should not credit twice when the release races", func() {
			p := newPayment(paymentmodel.StatusHeld)
			gomega.Expect(repo.ReleaseAndCredit(p)).To(gomega.Succeed())

			err := repo.ReleaseAndCredit(p)
			gomega.Expect(err).To(gomega.HaveOccurred())

			var txns []walletmodel.Transaction
			gomega.Expect(db.Where("reference_id = ?", p.ID).Find(&txns).Error).To(gomega.Succeed())
			gomega.Expect(txns).To(gomega.HaveLen(1))
		})

		ginkgo.It("should reject release from pending", func() {
			p := newPayment(paymentmodel.StatusPending)

			err := repo.ReleaseAndCredit(p)
			gomega.Expect(err).To(gomega.HaveOccurred())

			var count int64
			db.Model(&TransactionSQLite{}).Count(&count)
			gomega.Expect(count).To(gomega.BeZero())
		})
	})

	ginkgo.Describe("RefundReleasedAndDebit", func() {
		ginkgo.It("should claw the credit back out of the payee wallet", func() {
			p := newPayment(paymentmodel.StatusHeld)
			gomega.Expect(repo.ReleaseAndCredit(p)).To(gomega.Succeed())

			gomega.Expect(repo.RefundReleasedAndDebit(p)).To(gomega.Succeed())

			stored, _ := repo.GetByID(p.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusRefunded))

			var wlt walletmodel.Wallet
			gomega.Expect(db.Where("user_id = ?", "payee-1").First(&wlt).Error).To(gomega.Succeed())
			gomega.Expect(wlt.AvailableBalance).To(gomega.BeZero())
		})

		ginkgo.It("should roll back the refund when the debit cannot cover", func() {
			p := newPayment(paymentmodel.StatusHeld)
			gomega.Expect(repo.ReleaseAndCredit(p)).To(gomega.Succeed())

			// drain the wallet with a payout-style debit first
			gomega.Expect(db.Model(&WalletSQLite{}).
				Where("user_id = ?", "payee-1").
				Update("available_balance", 0).Error).To(gomega.Succeed())

			err := repo.RefundReleasedAndDebit(p)
			gomega.Expect(err).To(gomega.HaveOccurred())

			stored, _ := repo.GetByID(p.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusReleased))
		})
	})

	ginkgo.Describe("Create", func() {
		ginkgo.It("should map a racing duplicate collaboration to a conflict", func() {
			newPayment(paymentmodel.StatusPending)

			dup := &paymentmodel.Payment{
				ID:                    "payment-2",
				CollaborationID:       "collab-1",
				PayerID:               "payer-1",
				PayeeID:               "payee-1",
				AmountTotal:           105000,
				AmountPrincipal:       100000,
				AmountPayerFee:        5000,
				AmountPayeeFee:        10000,
				AmountPlatformRevenue: 15000,
				Currency:              "usd",
				Status:                paymentmodel.StatusPending,
				ExternalIntentRef:     "pi_2",
			}

			err := repo.Create(dup)
			gomega.Expect(err).To(gomega.HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(apperrors.ErrCodeInvalidTransition))
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(409))
		})
	})

	ginkgo.Describe("lookups", func() {
		ginkgo.It("should find payments by collaboration and intent ref", func() {
			p := newPayment(paymentmodel.StatusPending)

			byCollab, err := repo.GetByCollaborationID("collab-1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(byCollab.ID).To(gomega.Equal(p.ID))

			byIntent, err := repo.GetByIntentRef("pi_1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(byIntent.ID).To(gomega.Equal(p.ID))
		})

		ginkgo.It("should list payments for either party", func() {
			newPayment(paymentmodel.StatusPending)

			forPayer, err := repo.ListForUser("payer-1", 10)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(forPayer).To(gomega.HaveLen(1))

			forPayee, err := repo.ListForUser("payee-1", 10)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(forPayee).To(gomega.HaveLen(1))

			forStranger, err := repo.ListForUser("stranger", 10)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(forStranger).To(gomega.BeEmpty())
		})
	})
})
