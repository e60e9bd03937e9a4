package http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mheravagimyan/real-estate-ledger/internal/adapter/http/middleware"
	"github.com/mheravagimyan/real-estate-ledger/internal/platform/metrics"
)

// NewRouter builds the service router: reads are public, mutations require an
// authenticated caller. Operator-only rules are enforced by the ledger
// itself, not by routing.
func NewRouter(h *Handler, jwtSecret string, mm *metrics.Manager, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics(mm))

	r.Get("/healthz", h.HandleHealthz)

	// Public read model.
	r.Get("/api/listings", h.HandleActiveListings)
	r.Get("/api/properties/{hash}", h.HandleGetProperty)
	r.Get("/api/accounts/{address}/properties", h.HandleGetAccountProperties)
	r.Get("/api/accounts/{address}/balance", h.HandleGetBalance)
	r.Get("/api/fees", h.HandleGetFees)
	r.Get("/api/events", h.HandleGetEvents)

	// Ledger mutations need a caller identity.
	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(jwtSecret, logger))

		r.Post("/api/properties", h.HandleListProperty)
		r.Delete("/api/properties/{hash}/listing", h.HandleCancelListing)
		r.Post("/api/properties/{hash}/purchase", h.HandleBuyProperty)
		r.Post("/api/accounts/deposit", h.HandleDeposit)
		r.Put("/api/fees/rate", h.HandleSetFeeRate)
		r.Post("/api/fees/withdraw", h.HandleWithdrawFees)
	})

	return r
}
