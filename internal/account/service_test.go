package account_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/collabary/payments/internal"
	"github.com/collabary/payments/internal/account"
	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
)

func TestAccountService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Account Service Suite")
}

type mockUserRepository struct {
	users map[string]*accountmodel.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[string]*accountmodel.User)}
}

func (m *mockUserRepository) GetByID(id string) (*accountmodel.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *mockUserRepository) GetByEmail(email string) (*accountmodel.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (m *mockUserRepository) Create(user *accountmodel.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepository) UpdateProcessorRefs(id, customerRef, accountRef string, completedAt *time.Time) error {
	user, ok := m.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.ExternalCustomerRef = customerRef
	user.ExternalAccountRef = accountRef
	user.OnboardingCompletedAt = completedAt
	return nil
}

var _ = Describe("Account Service", func() {
	var (
		repo    *mockUserRepository
		service *account.Service
	)

	BeforeEach(func() {
		repo = newMockUserRepository()
		service = account.NewService(repo, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

		Expect(repo.Create(&accountmodel.User{
			ID:    "payer-1",
			Email: "brand@mail.com",
			Role:  accountmodel.RolePayer,
		})).To(Succeed())
	})

	Describe("RegisterPayerAccount", func() {
		It("should attach the customer ref and complete onboarding", func() {
			user, err := service.RegisterPayerAccount("payer-1", "cus_123")

			Expect(err).ToNot(HaveOccurred())
			Expect(user.ExternalCustomerRef).To(Equal("cus_123"))
			Expect(user.CanPay()).To(BeTrue())
			Expect(user.OnboardingCompletedAt).ToNot(BeNil())

			stored, err := repo.GetByID("payer-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.ExternalCustomerRef).To(Equal("cus_123"))
		})

		It("should reject an empty customer ref", func() {
			_, err := service.RegisterPayerAccount("payer-1", "")

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeValidationFailed))
		})
	})

	Describe("RegisterPayeeAccount", func() {
		It("should attach the destination ref without clobbering the customer ref", func() {
			_, err := service.RegisterPayerAccount("payer-1", "cus_123")
			Expect(err).ToNot(HaveOccurred())

			user, err := service.RegisterPayeeAccount("payer-1", "acct_456")

			Expect(err).ToNot(HaveOccurred())
			Expect(user.ExternalCustomerRef).To(Equal("cus_123"))
			Expect(user.ExternalAccountRef).To(Equal("acct_456"))
			Expect(user.CanReceive()).To(BeTrue())
		})
	})

	Describe("OnboardingStatus", func() {
		It("should report what is still missing", func() {
			status, err := service.OnboardingStatus("payer-1")

			Expect(err).ToNot(HaveOccurred())
			Expect(status.CanPay).To(BeFalse())
			Expect(status.CanReceive).To(BeFalse())
			Expect(status.Completed).To(BeFalse())
		})

		It("should surface an unknown user", func() {
			_, err := service.OnboardingStatus("ghost")

			Expect(err).To(MatchError(apperrors.ErrUserNotFound))
		})
	})
})
