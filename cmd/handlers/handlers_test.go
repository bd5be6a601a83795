package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"safesight/internal/core"
	"safesight/internal/takeaway"
)

func TestDecodeInput_YAMLAndJSON(t *testing.T) {
	yamlInput := `
display_name: Loft on Main
reviews:
  - text: Felt safe walking home
    rating: 5
    author: Ana
  - text: Car window smashed
    rating: 2
`
	var fromYAML takeaway.ListingInput
	if err := decodeInput([]byte(yamlInput), &fromYAML); err != nil {
		t.Fatalf("decodeInput failed: %v", err)
	}
	if fromYAML.DisplayName != "Loft on Main" || len(fromYAML.Reviews) != 2 || fromYAML.Reviews[0].Rating != 5 {
		t.Errorf("Unexpected listing input %+v", fromYAML)
	}

	var fromJSON takeaway.VideoInput
	if err := decodeInput([]byte(`{"title": "Night walk", "comments": ["ok", "fine"]}`), &fromJSON); err != nil {
		t.Fatalf("decodeInput failed: %v", err)
	}
	if fromJSON.Title != "Night walk" || len(fromJSON.Comments) != 2 {
		t.Errorf("Unexpected video input %+v", fromJSON)
	}

	if err := decodeInput([]byte("reviews: [unclosed"), &fromYAML); err == nil {
		t.Error("Expected parse error")
	}
}

func TestReadInput_RequiresPath(t *testing.T) {
	var in takeaway.ListingInput
	if err := readInput("", &in); err == nil {
		t.Error("Expected error for empty path")
	}
	if err := readInput("/does/not/exist.yaml", &in); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestBatchFile_Requests(t *testing.T) {
	var file BatchFile
	err := decodeInput([]byte(`
concurrency: 2
listings:
  - listing_id: l1
    reviews: [{text: "quiet", rating: 4}]
locations:
  - {latitude: 1.5, longitude: 2.5, radius: 100}
videos:
  - {video_id: v1, title: "Walk"}
`), &file)
	if err != nil {
		t.Fatalf("decodeInput failed: %v", err)
	}

	reqs := file.Requests()
	if len(reqs) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(reqs))
	}
	if reqs[0].Subject.ListingID != "l1" || reqs[1].Subject.Location == nil || reqs[2].Subject.VideoID != "v1" {
		t.Errorf("Unexpected request order %+v", reqs)
	}
	if file.Concurrency != 2 {
		t.Errorf("Expected concurrency 2, got %d", file.Concurrency)
	}
}

type slowFinder struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	seen     []string
}

func (f *slowFinder) FindOrGenerate(ctx context.Context, req takeaway.Request) *core.Takeaway {
	n := f.inFlight.Add(1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	f.inFlight.Add(-1)

	f.mu.Lock()
	f.seen = append(f.seen, req.Subject.Key())
	f.mu.Unlock()

	return &core.Takeaway{Subject: req.Subject, Outcome: core.OutcomeGenerated}
}

func TestRunBatch_OrderAndConcurrency(t *testing.T) {
	var reqs []takeaway.Request
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		reqs = append(reqs, takeaway.Request{Subject: core.ListingSubject(id)})
	}

	finder := &slowFinder{}
	results, err := runBatch(context.Background(), finder, reqs, 2)
	if err != nil {
		t.Fatalf("runBatch failed: %v", err)
	}

	for i, r := range results {
		if r.Subject.ListingID != reqs[i].Subject.ListingID {
			t.Errorf("Result %d out of order: %s", i, r.Subject.Key())
		}
	}
	if peak := finder.peak.Load(); peak > 2 {
		t.Errorf("Expected at most 2 concurrent calls, saw %d", peak)
	}
	if len(finder.seen) != len(reqs) {
		t.Errorf("Expected %d calls, got %d", len(reqs), len(finder.seen))
	}
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	finder := &slowFinder{}
	_, err := runBatch(ctx, finder, []takeaway.Request{{Subject: core.ListingSubject("a")}}, 1)
	if err == nil {
		t.Fatal("Expected error for cancelled batch")
	}
}

func TestFormatTakeaway(t *testing.T) {
	tk := &core.Takeaway{
		Subject:      core.ListingSubject("abc"),
		PositiveText: core.StringPtr("✓ Well-lit streets.\n✓ Responsive host."),
		NegativeText: core.StringPtr("✗ Car break-ins reported."),
		SummaryText:  core.StringPtr("Calm block."),
		Outcome:      core.OutcomeGenerated,
		ExpiresAt:    time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	out := formatTakeaway(tk)
	for _, want := range []string{"listing:abc", "✓ Well-lit streets.", "✓ Responsive host.", "✗ Car break-ins reported.", "Calm block.", "generated"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q\n%s", want, out)
		}
	}

	empty := formatTakeaway(&core.Takeaway{Subject: core.VideoSubject("v"), Outcome: core.OutcomeUnavailable})
	if !strings.Contains(empty, "No safety signal available.") {
		t.Errorf("Expected placeholder for null record\n%s", empty)
	}
}

func TestRenderTakeaway_JSON(t *testing.T) {
	var buf bytes.Buffer
	tk := &core.Takeaway{Subject: core.ListingSubject("abc"), Outcome: core.OutcomeNoSignal}
	if err := renderTakeaway(&buf, tk, "json"); err != nil {
		t.Fatalf("renderTakeaway failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if decoded["outcome"] != "no_signal" {
		t.Errorf("Unexpected outcome %v", decoded["outcome"])
	}
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"takeaway", "batch", "serve", "cache", "migrate"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %s", name)
		}
	}
}
