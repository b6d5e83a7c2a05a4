package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	apperrors "github.com/collabary/payments/internal"
	webhookevent "github.com/collabary/payments/internal/core/datamodel/webhookevent"
	"github.com/collabary/payments/internal/processor"
	"github.com/collabary/payments/internal/transport"
)

// SignatureHeaderName carries the processor's signed digest.
const SignatureHeaderName = "Processor-Signature"

// Handler is the synchronous ingestion path: verify the signature,
// enqueue, acknowledge. State mutation happens later in the dispatcher,
// so the processor never waits on our business logic and retry storms
// stop at the unique event id.
type Handler struct {
	transport.BaseHandler
	queue  Queue
	secret string
	logger *slog.Logger
}

func NewHandler(queue Queue, secret string, logger *slog.Logger) *Handler {
	return &Handler{
		queue:  queue,
		secret: secret,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/processor", h.Receive)
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.HandleServiceError(w, apperrors.NewValidationError("could not read request body", apperrors.ErrCodeValidationFailed))
		return
	}

	event, err := processor.VerifySignature(rawBody, r.Header.Get(SignatureHeaderName), h.secret)
	if err != nil {
		h.logger.Warn("rejected webhook with bad signature", "error", err)
		h.HandleServiceError(w, apperrors.ErrInvalidSignature)
		return
	}

	row := &webhookevent.Event{
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event.Payload,
	}
	if err := h.queue.Enqueue(row); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEvent) {
			// the first delivery owns processing; acknowledge silently
			h.logger.Info("duplicate webhook delivery acknowledged", "event_id", event.ID)
			h.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		h.logger.Error("failed to enqueue webhook event", "event_id", event.ID, "error", err)
		h.HandleServiceError(w, apperrors.NewInternalError("could not accept event", err))
		return
	}

	h.logger.Info("webhook event enqueued", "event_id", event.ID, "event_type", event.Type)
	h.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
