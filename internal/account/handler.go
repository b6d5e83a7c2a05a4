package account

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	internal "github.com/collabary/payments/internal"
	"github.com/collabary/payments/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/onboarding/status", h.OnboardingStatus)
	r.Post("/onboarding/payer", h.RegisterPayer)
	r.Post("/onboarding/payee", h.RegisterPayee)
}

func (h *Handler) OnboardingStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	status, err := h.service.OnboardingStatus(userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) RegisterPayer(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	var req RegisterPayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	user, err := h.service.RegisterPayerAccount(userID, req.CustomerRef)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewOnboardingStatusResponse(user))
}

func (h *Handler) RegisterPayee(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	var req RegisterPayeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	user, err := h.service.RegisterPayeeAccount(userID, req.AccountRef)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewOnboardingStatusResponse(user))
}
