package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

const (
	serviceName    = "voice-button"
	serviceVersion = "1.0.0"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// PipelineStatus is the live view of the orchestrator served on /status
type PipelineStatus struct {
	State    string                   `json:"state"`
	GateOpen bool                     `json:"gate_open"`
	Breakers map[string]BreakerStatus `json:"breakers,omitempty"` // keyed by stage
}

// BreakerStatus is one stage circuit breaker
type BreakerStatus struct {
	State       string  `json:"state"`
	Requests    int64   `json:"requests"`
	Failures    int64   `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
}

// HealthCheckFunc reports whether a dependency is usable.
// It is a plain func so adapters stay free of HTTP concerns.
type HealthCheckFunc func(ctx context.Context) (bool, error)

// HealthCheckHandler handles health check requests
func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Version:   serviceVersion,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessHandler runs every named check and answers 503 if any fails
func ReadinessHandler(checks map[string]HealthCheckFunc) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dependencies := make(map[string]DependencyStatus, len(names))
		allHealthy := true
		for _, name := range names {
			start := time.Now()
			healthy, err := checks[name](ctx)
			dep := DependencyStatus{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
			if err != nil || !healthy {
				dep.Status = "unhealthy"
				allHealthy = false
				if err != nil {
					dep.Message = err.Error()
				}
			}
			dependencies[name] = dep
		}

		status := HealthStatus{
			Status:       "ready",
			Service:      serviceName,
			Version:      serviceVersion,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}
		code := http.StatusOK
		if !allHealthy {
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

// StatusHandler serves the current pipeline state and gate
func StatusHandler(snapshot func() PipelineStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, snapshot())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
