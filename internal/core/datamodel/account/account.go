package account

import (
	"time"
)

// Roles mirror the two marketplace counterparties.
const (
	RolePayer = "payer"
	RolePayee = "payee"
)

// User carries the processor references the payment core needs. Payers
// hold a processor customer ref to charge; payees hold a destination
// account ref to receive transfers. Everything else about a user lives
// outside this service.
type User struct {
	ID                    string    `json:"id" gorm:"primaryKey;type:uuid"`
	Email                 string    `json:"email" gorm:"column:email;uniqueIndex;not null"`
	Name                  string    `json:"name" gorm:"column:name"`
	Role                  string    `json:"role" gorm:"column:role;not null"`
	PasswordHash          string    `json:"-" gorm:"column:password_hash"`
	ExternalCustomerRef   string    `json:"external_customer_ref,omitempty" gorm:"column:external_customer_ref"`
	ExternalAccountRef    string    `json:"external_account_ref,omitempty" gorm:"column:external_account_ref"`
	OnboardingCompletedAt *time.Time `json:"onboarding_completed_at,omitempty" gorm:"column:onboarding_completed_at"`
	CreatedAt             time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt             time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (User) TableName() string {
	return "users"
}

// CanPay reports whether the user can fund a payment intent.
func (u *User) CanPay() bool {
	return u.ExternalCustomerRef != ""
}

// CanReceive reports whether the user has a destination account for
// transfers.
func (u *User) CanReceive() bool {
	return u.ExternalAccountRef != ""
}
