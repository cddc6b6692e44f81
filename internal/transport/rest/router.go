package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health        *HealthHandler
	Documents     *DocumentHandler
	Notifications *NotificationHandler
}

// NewRouter builds the route table. Middleware is applied by the caller.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health.Health)
	mux.HandleFunc("GET /health/live", h.Health.Live)
	mux.HandleFunc("GET /health/ready", h.Health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/documents", h.Documents.Create)
	mux.HandleFunc("GET /api/documents", h.Documents.List)
	mux.HandleFunc("GET /api/documents/{id}", h.Documents.Get)
	mux.HandleFunc("GET /api/documents/{id}/history", h.Documents.History)
	mux.HandleFunc("POST /api/documents/{id}/actions/{action}", h.Documents.Transition)

	mux.HandleFunc("GET /api/notifications", h.Notifications.List)

	return mux
}
