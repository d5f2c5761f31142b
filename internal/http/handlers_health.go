package httpx

import (
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

const healthResponse = `{"status":"ok"}`

// healthHandlers exposes liveness and readiness probes.
type healthHandlers struct {
	db    HealthChecker
	cache HealthChecker
}

// liveness returns a simple 200 OK for liveness checks.
func (h *healthHandlers) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// readiness reports per-dependency reachability. Absent probes count as ready.
// Probes run concurrently so one slow dependency doesn't delay the rest.
func (h *healthHandlers) readiness(w http.ResponseWriter, r *http.Request) {
	probes := map[string]HealthChecker{}
	if h.db != nil {
		probes["database"] = h.db
	}
	if h.cache != nil {
		probes["cache"] = h.cache
	}

	status := http.StatusOK
	checks := map[string]string{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(r.Context())
	for name, probe := range probes {
		g.Go(func() error {
			result := "ok"
			if err := probe.Health(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			checks[name] = result
			if result != "ok" {
				status = http.StatusServiceUnavailable
			}
			return nil
		})
	}
	// Probes report failures through the checks map, not errors.
	_ = g.Wait()

	WriteJSON(w, status, checks)
}
