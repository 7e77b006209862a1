// Package routes registers HTTP endpoints on the router.
package routes

import (
	"github.com/dukerupert/resibo/internal/handler"
	"github.com/dukerupert/resibo/internal/middleware"
	"github.com/dukerupert/resibo/internal/router"
)

// RegisterAPIRoutes registers the operator API.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	api := r.Group(middleware.RequireToken(deps.APIToken))

	api.Post("/recurring-invoices/run", deps.RecurringHandler.Run)
}

// RegisterOpsRoutes registers the health checks, the Prometheus endpoint and
// the JSON 404 fallback. They are unauthenticated.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	r.Get("/health", handler.Health)
	if deps.DB != nil {
		r.Get("/ready", handler.Ready(deps.DB))
	}
	if deps.MetricsHandler != nil {
		r.Handle("GET", "/metrics", deps.MetricsHandler)
	}
	r.NotFound(handler.NotFoundResponse)
}
