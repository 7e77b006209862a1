package routes

import (
	"net/http"

	"github.com/dukerupert/resibo/internal/handler"
)

// APIDeps contains dependencies for the operator API routes
type APIDeps struct {
	RecurringHandler *handler.RecurringHandler

	// APIToken guards mutating endpoints. Empty disables the check.
	APIToken string
}

// OpsDeps contains dependencies for health and metrics routes
type OpsDeps struct {
	DB             handler.Pinger
	MetricsHandler http.Handler
}
