/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/commitments/* Commitment lifecycle + calls + metrics
  /api/calls/*       Call activation, overrides, payments
  /api/batch         Bulk aggregation
  /api/calendar      Calls due in a date range
  /api/funds/*       Fund reference data + fund metrics
  /api/deals/*       Deal reference data + closing schedule

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public and the
  X-Actor-ID header is trusted as-is.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Commitment routes
		r.Route("/commitments", func(r chi.Router) {
			r.Post("/", h.CreateCommitment)
			r.Get("/{id}", h.GetCommitment)
			r.Put("/{id}/amount", h.UpdateCommitmentAmount)
			r.Delete("/{id}", h.DeleteCommitment)
			r.Post("/{id}/writeoff", h.WriteOffCommitment)
			r.Get("/{id}/calls", h.ListCalls)
			r.Post("/{id}/calls", h.ScheduleCalls)
			r.Get("/{id}/metrics", h.GetCommitmentMetrics)
			r.Get("/{id}/timeline", h.GetCommitmentTimeline)
		})

		// Call routes
		r.Route("/calls", func(r chi.Router) {
			r.Post("/{id}/activate", h.ActivateCall)
			r.Post("/{id}/override", h.OverrideCallStatus)
			r.Post("/{id}/payments", h.ApplyPayment)
			r.Get("/{id}/payments", h.ListPayments)
		})

		// Aggregation routes
		r.Post("/batch", h.BatchFetch)
		r.Get("/calendar", h.GetCalendar)

		// Fund routes
		r.Route("/funds", func(r chi.Router) {
			r.Get("/", h.ListFunds)
			r.Post("/", h.CreateFund)
			r.Get("/{id}", h.GetFund)
			r.Get("/{id}/metrics", h.GetFundMetrics)
			r.Get("/{id}/commitments", h.ListFundCommitments)
		})

		// Deal routes
		r.Route("/deals", func(r chi.Router) {
			r.Get("/", h.ListDeals)
			r.Post("/", h.CreateDeal)
			r.Get("/{id}", h.GetDeal)
			r.Get("/{id}/commitments", h.ListDealCommitments)
			r.Get("/{id}/events", h.ListDealEvents)
			r.Post("/{id}/events", h.CreateDealEvent)
		})
	})

	return r
}
