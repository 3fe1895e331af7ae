package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveCommand("project.assign", OutcomeAccepted, time.Millisecond)
	r.EventAppended("project_assigned")
	r.StreamCreateRetried()
	r.CacheRefreshed(3)
	if r.Registry() != nil {
		t.Fatal("expected nil registry")
	}
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.ObserveCommand("project.assign", OutcomeAccepted, 10*time.Millisecond)
	r.ObserveCommand("project.assign", OutcomeAccepted, 10*time.Millisecond)
	r.ObserveCommand("project.assign", OutcomeRejected, time.Millisecond)
	r.EventAppended("project_assigned")
	r.StreamCreateRetried()
	r.CacheRefreshed(4)
	r.CacheRefreshed(0)

	if got := testutil.ToFloat64(r.commands.WithLabelValues("project.assign", OutcomeAccepted)); got != 2 {
		t.Fatalf("accepted commands = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.commands.WithLabelValues("project.assign", OutcomeRejected)); got != 1 {
		t.Fatalf("rejected commands = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.appended.WithLabelValues("project_assigned")); got != 1 {
		t.Fatalf("appended = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.streamRetries); got != 1 {
		t.Fatalf("stream retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.cacheRefreshes); got != 2 {
		t.Fatalf("cache refreshes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.cacheEvents); got != 4 {
		t.Fatalf("cache events = %v, want 4", got)
	}
}

func TestHandlerExposesServiceMetrics(t *testing.T) {
	r := New()
	r.EventAppended("workflowitem_closed")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `trubudget_ledger_events_appended_total{type="workflowitem_closed"} 1`) {
		t.Fatalf("expected appended counter in output:\n%s", body)
	}
}
