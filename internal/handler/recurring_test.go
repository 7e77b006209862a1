package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/resibo/internal/clock"
	"github.com/dukerupert/resibo/internal/domain"
)

type stubRecurrence struct {
	gotToday time.Time
	result   domain.RunResult
	err      error
}

func (s *stubRecurrence) RunMonthlyRecurringInvoices(_ context.Context, today time.Time) (domain.RunResult, error) {
	s.gotToday = today
	if s.err != nil {
		return domain.RunResult{TodayISO: today.Format("2006-01-02")}, s.err
	}
	res := s.result
	res.TodayISO = today.Format("2006-01-02")
	return res, nil
}

func newRecurringHandler(svc domain.RecurrenceService, now time.Time) *RecurringHandler {
	manila := time.FixedZone("PHT", 8*3600)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecurringHandler(svc, clock.NewFake(now), manila, logger)
}

func TestRecurringHandler_Run_WithDate(t *testing.T) {
	svc := &stubRecurrence{result: domain.RunResult{DueTemplateCount: 2, GeneratedCount: 1}}
	h := newRecurringHandler(svc, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/recurring-invoices/run", strings.NewReader(`{"todayISO":"2024-03-20"}`))
	rec := httptest.NewRecorder()
	h.Run(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"todayISO":"2024-03-20","dueTemplateCount":2,"generatedCount":1}`, rec.Body.String())
}

func TestRecurringHandler_Run_DefaultsToLocalToday(t *testing.T) {
	svc := &stubRecurrence{}
	// 17:30 UTC on the 19th is already the 20th in UTC+8.
	h := newRecurringHandler(svc, time.Date(2024, 3, 19, 17, 30, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest(http.MethodPost, "/recurring-invoices/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-03-20", svc.gotToday.Format("2006-01-02"))
}

func TestRecurringHandler_Run_BadInput(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"invalid date", `{"todayISO":"2024-13-40"}`, "todayISO"},
		{"wrong format", `{"todayISO":"20/03/2024"}`, "todayISO"},
		{"not json", `todayISO=2024-03-20`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubRecurrence{}
			h := newRecurringHandler(svc, time.Now())

			rec := httptest.NewRecorder()
			h.Run(rec, httptest.NewRequest(http.MethodPost, "/recurring-invoices/run", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp struct {
				Error struct {
					Code    string            `json:"code"`
					Message string            `json:"message"`
					Fields  map[string]string `json:"fields"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, domain.EINVALID, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
			if tt.field != "" {
				assert.Contains(t, resp.Error.Fields[tt.field], "expected YYYY-MM-DD")
			} else {
				assert.Empty(t, resp.Error.Fields)
			}
			assert.True(t, svc.gotToday.IsZero(), "service must not run")
		})
	}
}

func TestRecurringHandler_Run_CounterNotInitialized(t *testing.T) {
	svc := &stubRecurrence{err: domain.ErrCounterNotInitialized}
	h := newRecurringHandler(svc, time.Now())

	rec := httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest(http.MethodPost, "/recurring-invoices/run", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ENOTINIT)
}

func TestRecurringHandler_Run_InternalError(t *testing.T) {
	svc := &stubRecurrence{err: domain.Internal(nil, "recurrence.run", "duplicate key on invoices_invoice_no_key")}
	h := newRecurringHandler(svc, time.Now())

	rec := httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest(http.MethodPost, "/recurring-invoices/run", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "duplicate key")
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthAndReady(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	Ready(stubPinger{})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	Ready(stubPinger{err: context.DeadlineExceeded})(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
