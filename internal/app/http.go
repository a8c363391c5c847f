package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/felixgeelhaar/cadence/pkg/observability"
)

// HTTPHandler serves liveness, readiness and Prometheus metrics for the worker.
//
//	/healthz  process is up, with engine, loop and outbox counters
//	/readyz   every registered dependency check passes
//	/metrics  Prometheus exposition, when the Prometheus backend is in use
func (c *Container) HTTPHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"status":       "ok",
			"engine":       c.Engine.Stats(),
			"loop_running": c.Loop.IsRunning(),
		}
		if c.OutboxProcessor != nil {
			response["outbox"] = c.OutboxProcessor.GetStats()
		}
		writeJSON(w, http.StatusOK, response)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		overall := c.Health.GetOverallHealth(checkCtx)
		status := http.StatusOK
		if overall.Status == observability.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, overall)
	})

	if exporter, ok := c.Metrics.(interface{ Handler() http.Handler }); ok {
		mux.Handle("/metrics", exporter.Handler())
	}

	return withRequestContext(mux)
}

// withRequestContext tags each request with a request ID and the caller's
// X-Correlation-ID, echoing the correlation ID back.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.NewRequestContext(r.Context(), r.Header.Get("X-Correlation-ID"))
		w.Header().Set("X-Correlation-ID", observability.CorrelationIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LogStats writes one line of engine and relay counters.
func (c *Container) LogStats() {
	stats := c.Engine.Stats()
	args := []any{
		"live", stats.Live,
		"in_flight", stats.InFlight,
		"submitted", stats.Submitted,
		"conflicts", stats.Conflicts,
		"fired", stats.Fired,
		"succeeded", stats.Succeeded,
		"retried", stats.Retried,
		"failed", stats.Failed,
	}
	if c.OutboxProcessor != nil {
		outboxStats := c.OutboxProcessor.GetStats()
		args = append(args,
			"outbox_published", outboxStats.PublishedCount,
			"outbox_failed", outboxStats.FailedCount,
			"outbox_dead", outboxStats.DeadCount,
			"outbox_lag_seconds", outboxStats.LagSeconds,
		)
	}
	c.Logger.Info("cadence stats", args...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
