package escrow

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
	r.Get("/payments", h.ListPayments)
	r.Get("/payments/{id}", h.GetPayment)
	r.Get("/payments/{id}/client-secret", h.GetClientSecret)
	r.Post("/payments/{id}/confirm", h.ConfirmPayment)
	r.Get("/collaborations/{collaborationID}/payment", h.GetByCollaboration)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	payments, err := h.service.ListForUser(userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewPaymentListResponse(payments))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	p, err := h.service.GetPayment(chi.URLParam(r, "id"), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewPaymentResponse(p))
}

func (h *Handler) GetByCollaboration(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	p, err := h.service.GetByCollaboration(chi.URLParam(r, "collaborationID"), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewPaymentResponse(p))
}

func (h *Handler) GetClientSecret(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	secret, err := h.service.GetClientSecret(chi.URLParam(r, "id"), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ClientSecretResponse{ClientSecret: secret})
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	var req ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if req.MethodRef == "" {
		h.HandleServiceError(w, internal.NewValidationFieldError("payment_method", "payment method is required", internal.ErrCodeValidationFailed))
		return
	}

	p, err := h.service.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), req.MethodRef, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewPaymentResponse(p))
}
