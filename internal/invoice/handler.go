package invoice

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	internal "github.com/collabary/payments/internal"
	invoicemodel "github.com/collabary/payments/internal/core/datamodel/invoice"
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
	r.Get("/invoices", h.List)
	r.Get("/invoices/{id}", h.Get)
	r.Get("/earnings", h.Earnings)
}

// List returns the invoices billed to the caller as payer.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	invoices, err := h.service.ListForPayer(userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if invoices == nil {
		invoices = []*invoicemodel.Invoice{}
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"invoices": invoices})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	inv, err := h.service.GetInvoice(chi.URLParam(r, "id"), userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, inv)
}

// Earnings returns the caller's paid invoices with summary totals.
func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, internal.ErrUnauthorizedUser)
		return
	}

	earnings, err := h.service.Earnings(userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, earnings)
}
