package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("testns")

	m.RecordRequest("ping", "success", time.Millisecond)
	m.RecordRequest("ping", "success", 2*time.Millisecond)
	m.RecordRequest("tools/call", "error", time.Millisecond)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("ping", "success")); got != 2 {
		t.Errorf("Expected 2 successful pings, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("tools/call", "error")); got != 1 {
		t.Errorf("Expected 1 failed call, got %v", got)
	}

	done := m.RequestStarted()
	if got := testutil.ToFloat64(m.requestsInFlight); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
	done()
	if got := testutil.ToFloat64(m.requestsInFlight); got != 0 {
		t.Errorf("Expected 0 in flight, got %v", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordRequest("ping", "success", time.Millisecond)
	m.RequestStarted()()
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("testns")
	m.RecordRequest("ping", "success", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "testns_requests_total") {
		t.Errorf("Expected exposition to contain the counter, got %q", rec.Body.String())
	}
}

func TestNilTracer(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.StartRequest(context.Background(), "ping", 1)
	if ctx == nil {
		t.Fatal("Expected a context back from a nil tracer")
	}
	tr.EndRequest(span, nil)
}
