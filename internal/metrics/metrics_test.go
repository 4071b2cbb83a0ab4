package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPass(t *testing.T) {
	okBefore := testutil.ToFloat64(passesTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(passesTotal.WithLabelValues("error"))

	RecordPass(nil, 2*time.Second)
	RecordPass(errors.New("load failed"), time.Second)

	if got := testutil.ToFloat64(passesTotal.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Errorf("ok passes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(passesTotal.WithLabelValues("error")) - errBefore; got != 1 {
		t.Errorf("error passes = %v, want 1", got)
	}
}

func TestRecordTrigger(t *testing.T) {
	c := triggersTotal.WithLabelValues("payment_due", OutcomeSkipped)
	before := testutil.ToFloat64(c)

	RecordTrigger("payment_due", OutcomeSkipped)
	RecordTrigger("payment_due", OutcomeSkipped)
	RecordTrigger("payment_due", OutcomeSent)

	if got := testutil.ToFloat64(c) - before; got != 2 {
		t.Errorf("skipped = %v, want 2", got)
	}
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(transitionsTotal.WithLabelValues("paused"))
	RecordTransition("paused")
	if got := testutil.ToFloat64(transitionsTotal.WithLabelValues("paused")) - before; got != 1 {
		t.Errorf("paused transitions = %v, want 1", got)
	}
}

func TestSetBreakerState(t *testing.T) {
	SetBreakerState("ses", 1)
	if got := testutil.ToFloat64(breakerState.WithLabelValues("ses")); got != 1 {
		t.Errorf("breaker state = %v, want 1", got)
	}
	SetBreakerState("ses", 0)
	if got := testutil.ToFloat64(breakerState.WithLabelValues("ses")); got != 0 {
		t.Errorf("breaker state = %v, want 0", got)
	}
}

func TestGauges(t *testing.T) {
	SetDBConnections(3)
	if got := testutil.ToFloat64(dbConnectionsActive); got != 3 {
		t.Errorf("db connections = %v, want 3", got)
	}
	RecordRateLimitRejection()
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	if len(rec.Body.String()) == 0 {
		t.Error("metrics response should not be empty")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/v1/passes", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "/v1/passes", "201")); got < 1 {
		t.Errorf("request counter = %v, want >= 1", got)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
