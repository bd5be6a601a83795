package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"safesight/internal/config"
	"safesight/internal/core"
	"safesight/internal/metrics"
	"safesight/internal/takeaway"
)

type fakeService struct {
	mu       sync.Mutex
	requests []takeaway.Request
}

func (f *fakeService) FindOrGenerate(ctx context.Context, req takeaway.Request) *core.Takeaway {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &core.Takeaway{
		ID:           "rec-1",
		Subject:      req.Subject,
		PositiveText: core.StringPtr("✓ Well-lit streets."),
		Outcome:      core.OutcomeGenerated,
		CreatedAt:    now,
		ExpiresAt:    now.Add(720 * time.Hour),
	}
}

func (f *fakeService) last(t *testing.T) takeaway.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("Expected a FindOrGenerate call")
	}
	return f.requests[len(f.requests)-1]
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func testConfig() config.Server {
	return config.Server{Host: "127.0.0.1", Port: 8080, ReadTimeout: "5s", WriteTimeout: "5s"}
}

func newTestServer(svc TakeawayService, ping Pinger, cfg config.Server) *Server {
	return New(svc, ping, metrics.New(prometheus.NewRegistry()), cfg)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestListingTakeaway(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, fakePinger{}, testConfig())

	rec := do(t, s, http.MethodPost, "/api/takeaways/listings/abc-123",
		`{"display_name": "Loft on Main", "reviews": [{"text": "Felt safe", "rating": 5, "author": "Ana"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req := svc.last(t)
	if req.Subject.ListingID != "abc-123" {
		t.Errorf("Expected listing id from path, got %q", req.Subject.ListingID)
	}
	if req.ContentType != core.ContentReviews || req.SubjectName != "Loft on Main" || len(req.Items) != 1 {
		t.Errorf("Unexpected request %+v", req)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body["positive_takeaway"] != "✓ Well-lit streets." {
		t.Errorf("Unexpected positive_takeaway %v", body["positive_takeaway"])
	}
	if v, ok := body["negative_takeaway"]; !ok || v != nil {
		t.Errorf("Expected explicit null negative_takeaway, got %v", v)
	}
	if body["outcome"] != "generated" {
		t.Errorf("Unexpected outcome %v", body["outcome"])
	}
}

func TestLocationTakeaway(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, fakePinger{}, testConfig())

	rec := do(t, s, http.MethodPost, "/api/takeaways/locations",
		`{"latitude": 40.7128, "longitude": -74.006, "radius": 500, "insights": [{"text": "Busy at night", "sentiment": "positive"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	req := svc.last(t)
	if req.Subject.Location == nil || req.Subject.Location.Radius != 500 {
		t.Errorf("Unexpected subject %+v", req.Subject)
	}
	if req.ContentType != core.ContentInsights {
		t.Errorf("Expected insights, got %s", req.ContentType)
	}
}

func TestVideoTakeaway(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, fakePinger{}, testConfig())

	rec := do(t, s, http.MethodPost, "/api/takeaways/videos/v42",
		`{"title": "Night walk", "transcript": "quiet streets", "comments": ["felt fine"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	req := svc.last(t)
	if req.Subject.VideoID != "v42" || req.SubjectName != "Night walk" {
		t.Errorf("Unexpected request %+v", req)
	}
	if len(req.Items) != 4 {
		t.Errorf("Expected title, description, transcript and one comment, got %d items", len(req.Items))
	}
}

func TestTakeaway_BadRequest(t *testing.T) {
	svc := &fakeService{}
	s := newTestServer(svc, fakePinger{}, testConfig())

	for _, body := range []string{"", "{not json", `{"reviews": "nope"}`} {
		rec := do(t, s, http.MethodPost, "/api/takeaways/listings/abc", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %q, got %d", body, rec.Code)
		}
	}
	if len(svc.requests) != 0 {
		t.Errorf("Expected no service calls, got %d", len(svc.requests))
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeService{}, fakePinger{}, testConfig())
	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cache_store":"ok"`) {
		t.Errorf("Unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	s = newTestServer(&fakeService{}, fakePinger{err: errors.New("database is closed")}, testConfig())
	rec = do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeService{}, fakePinger{}, testConfig())
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "safesight_cache_pruned_rows_total") {
		t.Error("Expected safesight metrics in exposition")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.ServerRateLimit{Enabled: true, RequestsPerSecond: 0.01, Burst: 2}
	s := newTestServer(&fakeService{}, fakePinger{}, cfg)

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = do(t, s, http.MethodGet, "/health", "").Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected burst of 2 to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst, got %d", codes[2])
	}
}

func TestClientLimiter_EvictIdle(t *testing.T) {
	l := newClientLimiter(1, 1)
	now := time.Now()
	l.allow("10.0.0.1", now.Add(-2*time.Minute))
	l.allow("10.0.0.2", now)

	l.evictIdle(now, time.Minute)

	if _, ok := l.clients.Load("10.0.0.1"); ok {
		t.Error("Expected idle client to be evicted")
	}
	if _, ok := l.clients.Load("10.0.0.2"); !ok {
		t.Error("Expected active client to be kept")
	}
}
