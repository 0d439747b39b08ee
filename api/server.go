/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, picked up by the logger
  2. Logger:     One structured zap line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Request duration histogram by route pattern
  5. CORS:       Cross-origin requests for a browser frontend

ROUTE GROUPS:
  /healthz              Liveness and storage ping
  /metrics              Prometheus scrape endpoint
  /api/persons/*        Person lookup data
  /api/leave-types/*    Leave type registry
  /api/balances/*       Balance ledger
  /api/leaves/*         Leave request lifecycle
  /api/holidays/*       Holiday calendar
  /api/admin/*          Batch jobs on demand
  /api/audit            Audit log
  /api/scenarios/*      Demo scenarios (only with a Reset function)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/logging"
	"github.com/warp/leave-ledger/metrics"
)

// RouterOptions configures the parts of the router that vary by deployment.
type RouterOptions struct {
	Logger      *zap.Logger
	Metrics     *metrics.Registry // nil disables /metrics and the histogram
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/persons", func(r chi.Router) {
			r.Get("/", h.ListPersons)
			r.Post("/", h.CreatePerson)
			r.Get("/{id}/balances", h.ListPersonBalances)
		})

		r.Route("/leave-types", func(r chi.Router) {
			r.Get("/", h.ListLeaveTypes)
			r.Post("/", h.CreateLeaveType)
			r.Get("/{id}", h.GetLeaveType)
			r.Put("/{id}", h.UpdateLeaveType)
			r.Delete("/{id}", h.DeleteLeaveType)
		})

		r.Route("/balances", func(r chi.Router) {
			r.Get("/", h.ListBalances)
			r.Post("/", h.AllocateBalance)
			r.Delete("/{id}", h.DeleteBalance)
			r.Get("/{person}/{type}/{year}", h.GetBalance)
			r.Post("/{person}/{type}/{year}/recalculate", h.RecalculateBalance)
			r.Post("/{person}/{type}/{year}/adjust", h.AdjustBalance)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Get("/", h.ListLeaves)
			r.Post("/", h.CreateLeave)
			r.Get("/conflicts", h.CheckConflicts)
			r.Get("/{id}", h.GetLeave)
			r.Put("/{id}", h.UpdateLeave)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Post("/{id}/reject", h.RejectLeave)
			r.Post("/{id}/cancel", h.CancelLeave)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/accrual", h.RunAccrual)
			r.Post("/carryover", h.RunCarryOver)
			r.Post("/age", h.RunAging)
		})

		r.Get("/audit", h.ListAudit)

		if h.Reset != nil {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
