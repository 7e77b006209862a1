package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/resibo/internal/clock"
	"github.com/dukerupert/resibo/internal/domain"
	"github.com/dukerupert/resibo/internal/service"
)

// maxRunBody bounds the request body of the run endpoint.
const maxRunBody = 1 << 10

// RecurringHandler triggers the monthly recurrence batch over HTTP.
type RecurringHandler struct {
	service  domain.RecurrenceService
	clock    clock.Clock
	location *time.Location
	logger   *slog.Logger
}

// NewRecurringHandler creates a handler. loc decides "today" when the
// request does not name a date.
func NewRecurringHandler(svc domain.RecurrenceService, clk clock.Clock, loc *time.Location, logger *slog.Logger) *RecurringHandler {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RecurringHandler{service: svc, clock: clk, location: loc, logger: logger}
}

type runRequest struct {
	TodayISO string `json:"todayISO"`
}

// Run handles POST /recurring-invoices/run with an optional
// {"todayISO":"YYYY-MM-DD"} body.
func (h *RecurringHandler) Run(w http.ResponseWriter, r *http.Request) {
	const op = "recurrence.run"

	var req runRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRunBody))
	if err != nil {
		ErrorResponse(w, r, domain.Invalid(op, "request body too large"))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			ErrorResponse(w, r, domain.Invalid(op, "request body must be JSON"))
			return
		}
	}

	today := h.clock.Now().In(h.location)
	if req.TodayISO != "" {
		today, err = service.ParseISODate(req.TodayISO)
		if err != nil {
			ErrorResponse(w, r, domain.NewValidationError(op, "todayISO", err.Error()))
			return
		}
	}

	result, err := h.service.RunMonthlyRecurringInvoices(r.Context(), today)
	if err != nil {
		if errors.Is(err, domain.ErrCounterNotInitialized) {
			h.logger.WarnContext(r.Context(), "recurrence run skipped: invoice counter is not initialized")
		}
		ErrorResponse(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "recurrence run completed",
		"today", result.TodayISO,
		"due", result.DueTemplateCount,
		"generated", result.GeneratedCount,
	)
	writeJSON(w, http.StatusOK, result)
}
