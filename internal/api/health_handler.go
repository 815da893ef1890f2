package api

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck names a dependency probed by /readyz.
type ReadinessCheck struct {
	Name   string
	Pinger Pinger
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type readinessResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks"`
}

// HealthzHandler handles GET /healthz.
// Always returns 200 OK with {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz.
// Every check must pass for a 200; otherwise the response is 503 with a
// Retry-After header and the failing checks' messages.
func ReadyzHandler(checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readinessResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]checkResult, len(checks)),
		}

		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := c.Pinger.Ping(ctx)
			cancel()

			if err != nil {
				resp.Status = "unhealthy"
				resp.Checks[c.Name] = checkResult{Status: "unhealthy", Message: err.Error()}
				continue
			}
			resp.Checks[c.Name] = checkResult{Status: "healthy"}
		}

		if resp.Status != "healthy" {
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}
