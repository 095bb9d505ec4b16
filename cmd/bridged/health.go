package main

import (
	"encoding/json"
	"net/http"

	"github.com/langbridge/bridge-engine/internal/facade"
	"github.com/langbridge/bridge-engine/internal/metrics"
)

func newHealthServer(addr string, f *facade.Facade) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler(f))
	mux.Handle("/metrics", metrics.PrometheusHandler())

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

func healthzHandler(f *facade.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := f.PoolStats()
		w.Header().Set("Content-Type", "application/json")
		if stats.Healthy == 0 && stats.TotalSize > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(stats)
	}
}
