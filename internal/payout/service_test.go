package payout_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/collabary/payments/internal"
	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
	payoutmodel "github.com/collabary/payments/internal/core/datamodel/payout"
	processortypes "github.com/collabary/payments/internal/core/datamodel/processor"
	walletmodel "github.com/collabary/payments/internal/core/datamodel/wallet"
	"github.com/collabary/payments/internal/core/events"
	payoutPkg "github.com/collabary/payments/internal/payout"
	"github.com/collabary/payments/internal/processor"
	walletPkg "github.com/collabary/payments/internal/wallet"
)

func TestPayoutService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payout Service Suite")
}

// In-memory wallet repository shared with the payout repository mock so
// debits and compensating credits hit the same balances.
type memWalletRepository struct {
	wallets      map[string]*walletmodel.Wallet
	transactions []*walletmodel.Transaction
}

func newMemWalletRepository() *memWalletRepository {
	return &memWalletRepository{wallets: make(map[string]*walletmodel.Wallet)}
}

func (m *memWalletRepository) GetOrCreate(userID string) (*walletmodel.Wallet, error) {
	if wlt, ok := m.wallets[userID]; ok {
		return wlt, nil
	}
	wlt := &walletmodel.Wallet{ID: "wallet-" + userID, UserID: userID, Currency: "usd"}
	m.wallets[userID] = wlt
	return wlt, nil
}

func (m *memWalletRepository) GetByUserID(userID string) (*walletmodel.Wallet, error) {
	wlt, ok := m.wallets[userID]
	if !ok {
		return nil, apperrors.ErrWalletNotFound
	}
	return wlt, nil
}

func (m *memWalletRepository) Credit(params walletPkg.EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error) {
	wlt, _ := m.GetOrCreate(params.UserID)
	wlt.AvailableBalance += params.Amount
	txn := &walletmodel.Transaction{
		UserID: params.UserID, Type: params.Kind, Amount: params.Amount,
		BalanceAfter: wlt.AvailableBalance, ReferenceID: params.ReferenceID,
	}
	m.transactions = append(m.transactions, txn)
	return wlt, txn, nil
}

func (m *memWalletRepository) Debit(params walletPkg.EntryParams) (*walletmodel.Wallet, *walletmodel.Transaction, error) {
	wlt, _ := m.GetOrCreate(params.UserID)
	if wlt.AvailableBalance < params.Amount {
		return nil, nil, apperrors.NewInsufficientBalanceError(wlt.AvailableBalance, params.Amount)
	}
	wlt.AvailableBalance -= params.Amount
	txn := &walletmodel.Transaction{
		UserID: params.UserID, Type: params.Kind, Amount: -params.Amount,
		BalanceAfter: wlt.AvailableBalance, ReferenceID: params.ReferenceID,
	}
	m.transactions = append(m.transactions, txn)
	return wlt, txn, nil
}

func (m *memWalletRepository) ListTransactions(userID string, limit int) ([]*walletmodel.Transaction, error) {
	var out []*walletmodel.Transaction
	for _, txn := range m.transactions {
		if txn.UserID == userID {
			out = append(out, txn)
		}
	}
	return out, nil
}

// Mock payout repository coupling its guarded transitions to the wallet
// mock the way the real repository couples them in one transaction.
type mockPayoutRepository struct {
	payouts    map[string]*payoutmodel.Payout
	walletRepo *memWalletRepository
}

func newMockPayoutRepository(walletRepo *memWalletRepository) *mockPayoutRepository {
	return &mockPayoutRepository{
		payouts:    make(map[string]*payoutmodel.Payout),
		walletRepo: walletRepo,
	}
}

func (m *mockPayoutRepository) CreateWithDebit(p *payoutmodel.Payout) error {
	_, _, err := m.walletRepo.Debit(walletPkg.EntryParams{
		UserID: p.UserID, Amount: p.Amount, Kind: walletmodel.TypePayout, ReferenceID: p.ID,
	})
	if err != nil {
		return err
	}
	m.payouts[p.ID] = p
	return nil
}

func (m *mockPayoutRepository) GetByID(id string) (*payoutmodel.Payout, error) {
	p, ok := m.payouts[id]
	if !ok {
		return nil, apperrors.ErrPayoutNotFound
	}
	return p, nil
}

func (m *mockPayoutRepository) GetByTransferRef(transferRef string) (*payoutmodel.Payout, error) {
	for _, p := range m.payouts {
		if p.ExternalTransferRef == transferRef {
			return p, nil
		}
	}
	return nil, apperrors.ErrPayoutNotFound
}

func (m *mockPayoutRepository) ListForUser(userID string, limit int) ([]*payoutmodel.Payout, error) {
	var out []*payoutmodel.Payout
	for _, p := range m.payouts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPayoutRepository) guard(id string, from []string, to string) (*payoutmodel.Payout, error) {
	p, ok := m.payouts[id]
	if !ok {
		return nil, apperrors.ErrPayoutNotFound
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			return p, nil
		}
	}
	return nil, apperrors.NewTransitionConflictError("payout", p.Status, to)
}

func (m *mockPayoutRepository) MarkProcessing(id string) error {
	p, err := m.guard(id, []string{payoutmodel.StatusPending}, payoutmodel.StatusProcessing)
	if err != nil {
		return err
	}
	now := time.Now()
	p.ProcessedAt = &now
	return nil
}

func (m *mockPayoutRepository) AttachTransferRef(id, transferRef string) error {
	p, ok := m.payouts[id]
	if !ok {
		return apperrors.ErrPayoutNotFound
	}
	p.ExternalTransferRef = transferRef
	return nil
}

func (m *mockPayoutRepository) MarkCompleted(id, transferRef string) error {
	p, err := m.guard(id, []string{payoutmodel.StatusProcessing}, payoutmodel.StatusCompleted)
	if err != nil {
		return err
	}
	p.ExternalTransferRef = transferRef
	now := time.Now()
	p.CompletedAt = &now
	return nil
}

func (m *mockPayoutRepository) FailAndRefund(p *payoutmodel.Payout, reason string) error {
	stored, err := m.guard(p.ID, []string{payoutmodel.StatusPending, payoutmodel.StatusProcessing}, payoutmodel.StatusFailed)
	if err != nil {
		return err
	}
	stored.FailureReason = &reason
	_, _, err = m.walletRepo.Credit(walletPkg.EntryParams{
		UserID: p.UserID, Amount: p.Amount, Kind: walletmodel.TypePayoutFailedRefund, ReferenceID: p.ID,
	})
	return err
}

type mockAccounts struct {
	users map[string]*accountmodel.User
}

func (m *mockAccounts) GetUser(userID string) (*accountmodel.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

type mockProcessor struct {
	transferResp  *processortypes.Transfer
	transferErr   error
	transferCalls int
}

func (m *mockProcessor) CreateIntent(ctx context.Context, req *processortypes.CreateIntentRequest) (*processortypes.Intent, error) {
	return nil, nil
}

func (m *mockProcessor) ConfirmIntent(ctx context.Context, intentID, methodRef string) (*processortypes.Intent, error) {
	return nil, nil
}

func (m *mockProcessor) CaptureIntent(ctx context.Context, intentID string) (*processortypes.Intent, error) {
	return nil, nil
}

func (m *mockProcessor) RetrieveIntent(ctx context.Context, intentID string) (*processortypes.Intent, error) {
	return nil, nil
}

func (m *mockProcessor) CreateTransfer(ctx context.Context, req *processortypes.CreateTransferRequest) (*processortypes.Transfer, error) {
	m.transferCalls++
	return m.transferResp, m.transferErr
}

var _ = Describe("Payout Service", func() {
	var (
		service    *payoutPkg.Service
		repo       *mockPayoutRepository
		walletRepo *memWalletRepository
		wallets    *walletPkg.Service
		proc       *mockProcessor
		ctx        context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		walletRepo = newMemWalletRepository()
		repo = newMockPayoutRepository(walletRepo)
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		wallets = walletPkg.NewService(walletRepo, logger)
		proc = &mockProcessor{
			transferResp: &processortypes.Transfer{ID: "tr_1", Status: processortypes.TransferStatusPaid},
		}
		accts := &mockAccounts{users: map[string]*accountmodel.User{
			"payee-1": {ID: "payee-1", Role: accountmodel.RolePayee, ExternalAccountRef: "acct_1"},
			"payee-2": {ID: "payee-2", Role: accountmodel.RolePayee},
		}}
		bus := events.NewEventBus(logger)
		service = payoutPkg.NewService(repo, accts, wallets, proc, bus, "usd", 1000, logger)

		// fund the payee: 90.00 available
		_, err := wallets.Credit(walletPkg.EntryParams{
			UserID: "payee-1", Amount: 9000, Kind: walletmodel.TypePaymentReleased, ReferenceID: "payment-1",
		})
		Expect(err).ToNot(HaveOccurred())
	})

	Describe("RequestPayout", func() {
		It("should reject an amount below the minimum", func() {
			_, err := service.RequestPayout(ctx, "payee-1", 500)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeBelowPayoutMinimum))
		})

		It("should reject an amount above the available balance", func() {
			_, err := service.RequestPayout(ctx, "payee-1", 9001)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeInsufficientBalance))
			Expect(proc.transferCalls).To(BeZero())
		})

		It("should reject a payee without a destination account", func() {
			_, err := service.RequestPayout(ctx, "payee-2", 5000)

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeNoDestinationAcct))
		})

		It("should debit the balance and complete on a paid transfer", func() {
			p, err := service.RequestPayout(ctx, "payee-1", 5000)

			Expect(err).ToNot(HaveOccurred())
			Expect(p.Status).To(Equal(payoutmodel.StatusCompleted))
			Expect(p.ExternalTransferRef).To(Equal("tr_1"))
			Expect(p.CompletedAt).ToNot(BeNil())

			wlt, _ := walletRepo.GetByUserID("payee-1")
			Expect(wlt.AvailableBalance).To(Equal(int64(4000)))
		})

		It("should restore the balance when the transfer is declined", func() {
			proc.transferResp = nil
			proc.transferErr = &processor.Error{Code: "account_frozen", Message: "destination account frozen"}

			_, err := service.RequestPayout(ctx, "payee-1", 5000)
			Expect(err).To(HaveOccurred())

			payouts, _ := repo.ListForUser("payee-1", 10)
			Expect(payouts).To(HaveLen(1))
			Expect(payouts[0].Status).To(Equal(payoutmodel.StatusFailed))
			Expect(*payouts[0].FailureReason).To(Equal("destination account frozen"))

			wlt, _ := walletRepo.GetByUserID("payee-1")
			Expect(wlt.AvailableBalance).To(Equal(int64(9000)))
		})

		It("should fail and restore the balance on a transient transfer error", func() {
			proc.transferResp = nil
			proc.transferErr = &processor.Error{Code: "network_error", Message: "timeout", Transient: true}

			_, err := service.RequestPayout(ctx, "payee-1", 5000)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeProcessorUnhealthy))

			// no transfer ref was recorded, so no webhook could ever
			// settle this payout; the funds must not stay debited
			payouts, _ := repo.ListForUser("payee-1", 10)
			Expect(payouts).To(HaveLen(1))
			Expect(payouts[0].Status).To(Equal(payoutmodel.StatusFailed))
			Expect(payouts[0].ExternalTransferRef).To(BeEmpty())

			wlt, _ := walletRepo.GetByUserID("payee-1")
			Expect(wlt.AvailableBalance).To(Equal(int64(9000)))
		})
	})

	Describe("webhook settlement", func() {
		var p *payoutmodel.Payout

		BeforeEach(func() {
			proc.transferResp = &processortypes.Transfer{ID: "tr_1", Status: processortypes.TransferStatusPending}
			var err error
			p, err = service.RequestPayout(ctx, "payee-1", 5000)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Status).To(Equal(payoutmodel.StatusProcessing))
		})

		It("should complete the payout on payout paid", func() {
			Expect(service.HandlePayoutPaid(ctx, "tr_1")).To(Succeed())

			stored, _ := repo.GetByID(p.ID)
			Expect(stored.Status).To(Equal(payoutmodel.StatusCompleted))
		})

		It("should treat a duplicate payout paid as a no-op", func() {
			Expect(service.HandlePayoutPaid(ctx, "tr_1")).To(Succeed())
			Expect(service.HandlePayoutPaid(ctx, "tr_1")).To(Succeed())

			stored, _ := repo.GetByID(p.ID)
			Expect(stored.Status).To(Equal(payoutmodel.StatusCompleted))
		})

		It("should fail and compensate exactly once on payout failed", func() {
			Expect(service.HandlePayoutFailed(ctx, "tr_1", "bank rejected")).To(Succeed())
			Expect(service.HandlePayoutFailed(ctx, "tr_1", "bank rejected")).To(Succeed())

			stored, _ := repo.GetByID(p.ID)
			Expect(stored.Status).To(Equal(payoutmodel.StatusFailed))

			wlt, _ := walletRepo.GetByUserID("payee-1")
			Expect(wlt.AvailableBalance).To(Equal(int64(9000)))
		})

		It("should not compensate a completed payout on a late failure event", func() {
			Expect(service.HandlePayoutPaid(ctx, "tr_1")).To(Succeed())

			Expect(service.HandlePayoutFailed(ctx, "tr_1", "late failure")).To(Succeed())

			stored, _ := repo.GetByID(p.ID)
			Expect(stored.Status).To(Equal(payoutmodel.StatusCompleted))

			wlt, _ := walletRepo.GetByUserID("payee-1")
			Expect(wlt.AvailableBalance).To(Equal(int64(4000)))
		})

		It("should surface an unknown transfer ref so the queue retries", func() {
			err := service.HandlePayoutPaid(ctx, "tr_unknown")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("access checks", func() {
		It("should hide payouts from other users", func() {
			p, err := service.RequestPayout(ctx, "payee-1", 5000)
			Expect(err).ToNot(HaveOccurred())

			_, err = service.GetPayout(p.ID, "stranger")
			Expect(err).To(Equal(apperrors.ErrUnauthorizedUser))
		})
	})
})
