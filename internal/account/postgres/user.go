package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/collabary/payments/internal"
	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(id string) (*accountmodel.User, error) {
	var user accountmodel.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*accountmodel.User, error) {
	var user accountmodel.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) Create(user *accountmodel.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateProcessorRefs(id, customerRef, accountRef string, completedAt *time.Time) error {
	result := r.db.Model(&accountmodel.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"external_customer_ref":   customerRef,
			"external_account_ref":    accountRef,
			"onboarding_completed_at": completedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update processor refs: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}
