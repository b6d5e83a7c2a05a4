package collaboration

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	internal "github.com/collabary/payments/internal"
	"github.com/collabary/payments/internal/escrow"
	"github.com/collabary/payments/internal/transport"
)

type AcceptRequest struct {
	PayeeID   string `json:"payee_id"`
	Principal int64  `json:"principal"`
}

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
	r.Post("/collaborations/{collaborationID}/accept", h.Accept)
	r.Post("/collaborations/{collaborationID}/complete", h.Complete)
}

// Accept opens the escrow; the acting user is the payer.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	var req AcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}
	if req.PayeeID == "" {
		h.HandleServiceError(w, internal.NewValidationFieldError("payee_id", "payee is required", internal.ErrCodeValidationFailed))
		return
	}

	p, err := h.service.Accept(r.Context(), chi.URLParam(r, "collaborationID"), userID, req.PayeeID, req.Principal)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, escrow.NewPaymentResponse(p))
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	p, err := h.service.Complete(r.Context(), chi.URLParam(r, "collaborationID"), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, escrow.NewPaymentResponse(p))
}
