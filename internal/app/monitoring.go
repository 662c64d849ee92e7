package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/deusflow/newsharvest/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsFunc returns extra sections merged into /stats.
type StatsFunc func(ctx context.Context) map[string]any

// MonitoringHandler serves /health, /stats and the prometheus /metrics endpoint.
func MonitoringHandler(m *metrics.Metrics, extra StatsFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := m.GetStats()

		status, code := "ok", http.StatusOK
		if healthy, _ := stats["is_healthy"].(bool); !healthy {
			status, code = "error", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":     status,
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
		})
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := m.GetStats()
		if extra != nil {
			for k, v := range extra(r.Context()) {
				stats[k] = v
			}
		}
		writeJSON(w, http.StatusOK, stats)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ServeMonitoring runs the monitoring server on port until ctx is done.
func ServeMonitoring(ctx context.Context, port string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting monitoring server", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stats collects storage and model budget figures for /stats.
func (a *App) Stats(ctx context.Context) map[string]any {
	out := map[string]any{}
	if st, err := a.store.Stats(ctx); err != nil {
		a.logger.Warn("Failed to read storage stats", "error", err)
	} else {
		out["storage"] = st
	}
	if ls := a.LimiterStats(); ls != nil {
		out["llm"] = ls
	}
	return out
}
