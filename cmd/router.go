package main

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/fileserver/internal/backend"
	"github.com/angeloszaimis/fileserver/internal/loadbalancer"
	"github.com/angeloszaimis/fileserver/internal/metrics"
)

func setupRouter(metricsCollector *metrics.Collector, lb *loadbalancer.LoadBalancer, backends []*backend.Backend, mode string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/metrics", metricsCollector.Handler(mode))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/backends", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, lb.Statuses(backends))
	})
	mux.HandleFunc("/select", func(w http.ResponseWriter, r *http.Request) {
		chosen, err := lb.Select(r.Context(), backends)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"host": chosen.Host()})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
