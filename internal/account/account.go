package account

import (
	"log/slog"
	"time"

	apperrors "github.com/collabary/payments/internal"
	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
)

// Repository is the user storage contract for the payment core's view
// of accounts.
type Repository interface {
	GetByID(id string) (*accountmodel.User, error)
	GetByEmail(email string) (*accountmodel.User, error)
	Create(user *accountmodel.User) error
	UpdateProcessorRefs(id, customerRef, accountRef string, completedAt *time.Time) error
}

// Service exposes the onboarding boundary the escrow and payout modules
// depend on: who can pay, who can receive, and the processor refs for
// each.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) GetUser(userID string) (*accountmodel.User, error) {
	return s.repo.GetByID(userID)
}

// OnboardingStatus reports what the user can do and what is still
// missing before money can move for them.
func (s *Service) OnboardingStatus(userID string) (*OnboardingStatusResponse, error) {
	user, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	return NewOnboardingStatusResponse(user), nil
}

// RegisterPayerAccount attaches the processor customer ref produced by
// the payer's onboarding session.
func (s *Service) RegisterPayerAccount(userID, customerRef string) (*accountmodel.User, error) {
	if customerRef == "" {
		return nil, apperrors.NewValidationFieldError("customer_ref", "customer reference is required", apperrors.ErrCodeValidationFailed)
	}

	user, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateProcessorRefs(userID, customerRef, user.ExternalAccountRef, &now); err != nil {
		return nil, err
	}
	user.ExternalCustomerRef = customerRef
	user.OnboardingCompletedAt = &now

	s.logger.Info("payer account registered", "user_id", userID)
	return user, nil
}

// RegisterPayeeAccount attaches the destination account ref produced by
// the payee's onboarding session.
func (s *Service) RegisterPayeeAccount(userID, accountRef string) (*accountmodel.User, error) {
	if accountRef == "" {
		return nil, apperrors.NewValidationFieldError("account_ref", "account reference is required", apperrors.ErrCodeValidationFailed)
	}

	user, err := s.repo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateProcessorRefs(userID, user.ExternalCustomerRef, accountRef, &now); err != nil {
		return nil, err
	}
	user.ExternalAccountRef = accountRef
	user.OnboardingCompletedAt = &now

	s.logger.Info("payee account registered", "user_id", userID)
	return user, nil
}
