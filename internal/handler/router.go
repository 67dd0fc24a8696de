package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/infra/observability"
	"github.com/rvelloso/finledger-go/internal/infra/resilience"
	"github.com/rvelloso/finledger-go/internal/port"
	"github.com/rvelloso/finledger-go/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(portSvc *service.PortabilityService, loanSvc *service.LoanService, authSvc *service.AuthService, store port.Store, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	dbBreaker := resilience.NewCircuitBreaker("postgres")
	r.Get("/healthz", healthzHandler(store, dbBreaker))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Authentication (public)
		// POST /v1/auth/register
		// POST /v1/auth/login
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(authSvc, logger))
			r.Post("/login", authLoginHandler(authSvc, logger))
		})

		// =============================================
		// Portability and loans (protected)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			// Export / import
			r.Get("/export", exportHandler(portSvc, metrics, logger))
			r.Post("/import", importHandler(portSvc, metrics, logger))

			// Backups
			r.Get("/backups", listBackupsHandler(portSvc, logger))
			r.Post("/backups/{backupId}/restore", restoreHandler(portSvc, metrics, logger))

			// Loan payments
			r.Post("/loans/{loanId}/payments", loanPaymentHandler(loanSvc, logger))

			// Operational counters for the portability engine
			r.Get("/metrics/portability", portabilityMetricsHandler(metrics))
		})
	})

	return r
}

// ============================================================
// Health — GET /healthz, GET /readyz
// ============================================================

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	LatencyMs int64  `json:"latencyMs"`
	Checked   string `json:"checked"`
}

// healthzHandler pings the database through a circuit breaker so a flapping
// database does not pile up health-check connections.
func healthzHandler(store port.Store, breaker *gobreaker.CircuitBreaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		_, err := breaker.Execute(func() (any, error) {
			return nil, store.Ping(r.Context())
		})
		latency := time.Since(start).Milliseconds()

		resp := healthResponse{
			Status:    "healthy",
			Database:  "up",
			LatencyMs: latency,
			Checked:   time.Now().Format(time.RFC3339),
		}
		status := http.StatusOK
		if err != nil {
			resp.Status = "degraded"
			resp.Database = "down"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
