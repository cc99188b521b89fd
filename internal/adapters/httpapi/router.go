package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	idempotency "github.com/ledgerline/idempotency-api/internal/app/idempotency"
)

// NewRouter constructs the demo service router.
//
// This is intentionally a thin adapter: the engine owns the idempotency
// semantics, this package wires routes/middleware and replays responses.
func NewRouter(engine *idempotency.Engine, payments *PaymentsHandler) http.Handler {
	r := chi.NewRouter()

	// Baseline production-safe middleware (minimal but useful).
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoint is deliberately unwrapped (used for infra checks).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(Idempotency(engine))
		r.Post("/payments", payments.CreatePayment)
	})

	return r
}
