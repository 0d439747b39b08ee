package metrics_test

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/metrics"
	"github.com/warp/leave-ledger/timeoff"
)

var _ timeoff.Recorder = (*metrics.Registry)(nil)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&timeoff.NotFoundError{Entity: "leave", ID: "x"}, "not_found"},
		{fmt.Errorf("wrap: %w", generic.ErrInvalidRange), "invalid"},
		{&timeoff.ValidationError{Field: "reason", Message: "required"}, "invalid"},
		{generic.ErrInsufficientBalance, "insufficient_balance"},
		{generic.ErrDateConflict, "conflict"},
		{generic.ErrInvalidStateTransition, "invalid_state"},
		{generic.ErrUnauthorized, "unauthorized"},
		{errors.New("disk on fire"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, metrics.Outcome(tt.err))
		})
	}
}

func TestRegistry_Handler(t *testing.T) {
	reg := metrics.New()
	reg.ObserveRequest("create", nil)
	reg.ObserveRequest("create", generic.ErrDateConflict)
	reg.ObserveBatch("accrual", 3, nil)
	reg.ObserveBatch("carryover", 0, errors.New("boom"))

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `leave_requests_total{action="create",outcome="ok"} 1`)
	assert.Contains(t, text, `leave_requests_total{action="create",outcome="conflict"} 1`)
	assert.Contains(t, text, `leave_batch_runs_total{job="accrual",outcome="ok"} 1`)
	assert.Contains(t, text, `leave_batch_runs_total{job="carryover",outcome="error"} 1`)
	assert.Contains(t, text, `leave_batch_items_total{job="accrual"} 3`)
	assert.NotContains(t, text, `leave_batch_items_total{job="carryover"}`)
}

func TestRegistry_MiddlewareUsesRoutePattern(t *testing.T) {
	reg := metrics.New()
	r := chi.NewRouter()
	r.Use(reg.Middleware)
	r.Get("/api/leaves/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaves/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	count, err := testutil.GatherAndCount(reg.Gatherer(), metrics.MetricHTTPDurationSeconds)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "both ids share one series")

	expected := `
# HELP leave_requests_total Leave and balance operations by action and outcome.
# TYPE leave_requests_total counter
leave_requests_total{action="approve",outcome="ok"} 2
`
	reg.ObserveRequest("approve", nil)
	reg.ObserveRequest("approve", nil)
	assert.NoError(t, testutil.GatherAndCompare(reg.Gatherer(), strings.NewReader(expected), metrics.MetricRequestsTotal))
}
