// Package server assembles the collector's HTTP routes.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookline-systems/hookline/internal/collector/handlers"
	"github.com/hookline-systems/hookline/internal/middleware"
)

// NewRouter constructs a ServeMux with collector API routes registered.
// Auth applies to the event and audit endpoints only; health and
// metrics stay open for probes and scrapers.
func NewRouter(h *handlers.Handler, apiToken string) http.Handler {
	auth := middleware.BearerAuth(apiToken)

	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/events", auth(http.HandlerFunc(h.IngestEvent)))
	mux.Handle("GET /api/v1/audit/{requestId}", auth(http.HandlerFunc(h.GetAudit)))

	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
