package webserver

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallyd/tally/internal/webapi"
)

// registerRoutes sets up API and operational routes on the given mux.
func registerRoutes(mux *http.ServeMux, h *webapi.Handlers) {
	webapi.RegisterRoutes(mux, h)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", handleIndex)
}

// handleIndex identifies the service for anything probing the root.
func handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
		"service": "tally",
		"version": webapi.Version,
	})
}
