package httpx

import (
	"context"
	"net/http"

	"github.com/quantdesk/backtest-go/internal/service"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Backtests *service.BacktestService
	// Optional: dependency health probes surfaced through /healthz.
	DBHealth    HealthChecker
	CacheHealth HealthChecker
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	backtestHandlers := &BacktestHandlers{Svc: services.Backtests}
	registerBacktestRoutes(mux, backtestHandlers)

	health := &healthHandlers{db: services.DBHealth, cache: services.CacheHealth}
	mux.Handle("GET /healthz", http.HandlerFunc(health.liveness))
	mux.Handle("HEAD /healthz", http.HandlerFunc(health.liveness))
	mux.Handle("GET /readyz", http.HandlerFunc(health.readiness))

	return mux
}

func registerBacktestRoutes(mux *http.ServeMux, h *BacktestHandlers) {
	mux.HandleFunc("POST /api/backtests", h.Create)
	mux.HandleFunc("GET /api/backtests", h.List)
	mux.HandleFunc("GET /api/backtests/stats", h.Stats)
	mux.HandleFunc("GET /api/backtests/{id}", h.Get)
	mux.HandleFunc("POST /api/backtests/{id}/cancel", h.Cancel)
}
