package account

import (
	accountmodel "github.com/collabary/payments/internal/core/datamodel/account"
)

type RegisterPayerRequest struct {
	CustomerRef string `json:"customer_ref"`
}

type RegisterPayeeRequest struct {
	AccountRef string `json:"account_ref"`
}

type OnboardingStatusResponse struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	CanPay     bool   `json:"can_pay"`
	CanReceive bool   `json:"can_receive"`
	Completed  bool   `json:"completed"`
}

func NewOnboardingStatusResponse(user *accountmodel.User) *OnboardingStatusResponse {
	return &OnboardingStatusResponse{
		UserID:     user.ID,
		Role:       user.Role,
		CanPay:     user.CanPay(),
		CanReceive: user.CanReceive(),
		Completed:  user.OnboardingCompletedAt != nil,
	}
}
