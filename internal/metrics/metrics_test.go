package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordLookup("listing", "hit")
	m.RecordLookup("listing", "hit")
	m.RecordLookup("video", "miss")
	m.RecordWrite("listing", "ok")
	m.RecordPruned(4)
	m.RecordPruned(0)
	m.RecordTakeaway("reviews", "generated")
	m.RecordInferenceCall("throttled")
	m.RecordRetry()

	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("listing", "hit")); got != 2 {
		t.Errorf("Expected 2 listing hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("video", "miss")); got != 1 {
		t.Errorf("Expected 1 video miss, got %v", got)
	}
	if got := testutil.ToFloat64(m.PrunedRows); got != 4 {
		t.Errorf("Expected 4 pruned rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.Takeaways.WithLabelValues("reviews", "generated")); got != 1 {
		t.Errorf("Expected 1 generated takeaway, got %v", got)
	}
	if got := testutil.ToFloat64(m.InferenceRetries); got != 1 {
		t.Errorf("Expected 1 retry, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	// Must not panic
	m.RecordLookup("listing", "hit")
	m.RecordWrite("listing", "ok")
	m.RecordPruned(1)
	m.RecordTakeaway("reviews", "generated")
	m.RecordGeneration("reviews", 1)
	m.RecordInferenceCall("ok")
	m.RecordRetry()
	m.RecordLimiterWait(0.5)
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.RecordInferenceCall("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `safesight_inference_calls_total{result="ok"} 1`) {
		t.Error("Expected inference counter in exposition output")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("Expected Go collector output")
	}
}
