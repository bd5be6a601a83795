package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"safesight/internal/metrics"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakePruner) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestPruneJob_Run(t *testing.T) {
	pruner := &fakePruner{deleted: 7}
	m := metrics.New(prometheus.NewRegistry())
	job := NewPruneJob(pruner, 7*24*time.Hour, m)
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if deleted != 7 {
		t.Errorf("Expected 7 deleted, got %d", deleted)
	}
	if want := now.Add(-7 * 24 * time.Hour); !pruner.cutoffs[0].Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, pruner.cutoffs[0])
	}
	if got := testutil.ToFloat64(m.PrunedRows); got != 7 {
		t.Errorf("Expected pruned counter 7, got %v", got)
	}
}

func TestPruneJob_RunError(t *testing.T) {
	pruner := &fakePruner{err: errors.New("database is locked")}
	job := NewPruneJob(pruner, time.Hour, nil)

	if _, err := job.Run(context.Background()); err == nil {
		t.Error("Expected error from pruner")
	}
}

func TestNewPruneScheduler_InvalidInterval(t *testing.T) {
	if _, err := NewPruneScheduler(NewPruneJob(&fakePruner{}, time.Hour, nil), 0); err == nil {
		t.Error("Expected error for zero interval")
	}
}

func TestPruneScheduler_RunsImmediately(t *testing.T) {
	pruner := &fakePruner{}
	scheduler, err := NewPruneScheduler(NewPruneJob(pruner, time.Hour, nil), time.Hour)
	if err != nil {
		t.Fatalf("NewPruneScheduler failed: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pruner.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := scheduler.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if pruner.calls() != 1 {
		t.Errorf("Expected exactly one immediate run, got %d", pruner.calls())
	}
}
