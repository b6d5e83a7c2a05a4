package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/collabary/payments/internal/account"
	"github.com/collabary/payments/internal/auth"
	"github.com/collabary/payments/internal/collaboration"
	"github.com/collabary/payments/internal/escrow"
	"github.com/collabary/payments/internal/invoice"
	"github.com/collabary/payments/internal/payout"
	"github.com/collabary/payments/internal/transport/middleware"
	"github.com/collabary/payments/internal/transport/swagger"
	"github.com/collabary/payments/internal/wallet"
	"github.com/collabary/payments/internal/webhook"
)

// Handlers bundles every HTTP surface the router mounts.
type Handlers struct {
	Account       *account.Handler
	Wallet        *wallet.Handler
	Escrow        *escrow.Handler
	Payout        *payout.Handler
	Invoice       *invoice.Handler
	Collaboration *collaboration.Handler
	Webhook       *webhook.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, authService *auth.Service, handlers Handlers, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Processor callbacks authenticate via signature, not bearer token
		if handlers.Webhook != nil {
			handlers.Webhook.RegisterRoutes(r)
		}

		r.Group(func(pr chi.Router) {
			pr.Use(authService.Middleware)

			if handlers.Account != nil {
				handlers.Account.RegisterRoutes(pr)
			}
			if handlers.Wallet != nil {
				handlers.Wallet.RegisterRoutes(pr)
			}
			if handlers.Escrow != nil {
				handlers.Escrow.RegisterRoutes(pr)
			}
			if handlers.Payout != nil {
				handlers.Payout.RegisterRoutes(pr)
			}
			if handlers.Invoice != nil {
				handlers.Invoice.RegisterRoutes(pr)
			}
			if handlers.Collaboration != nil {
				handlers.Collaboration.RegisterRoutes(pr)
			}
		})
	})
}
