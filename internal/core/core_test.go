package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSubjectKind(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		want    SubjectKind
		wantErr bool
	}{
		{"location", LocationSubject(34.05, -118.24, 500), SubjectLocation, false},
		{"listing", ListingSubject("lst-1"), SubjectListing, false},
		{"video", VideoSubject("vid-1"), SubjectVideo, false},
		{"empty", Subject{}, "", true},
		{"listing and video", Subject{ListingID: "a", VideoID: "b"}, "", true},
		{"location and listing", Subject{Location: &Location{Radius: 1}, ListingID: "a"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.subject.Kind()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSubject) {
					t.Fatalf("Expected ErrInvalidSubject, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Kind failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected kind %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSubjectValidate_Location(t *testing.T) {
	if err := LocationSubject(91, 0, 100).Validate(); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Expected latitude range error, got %v", err)
	}
	if err := LocationSubject(10, 10, 0).Validate(); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Expected radius error, got %v", err)
	}
	if err := LocationSubject(math.NaN(), 10, 250).Validate(); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Expected ErrInvalidSubject for NaN latitude, got %v", err)
	}
	if err := LocationSubject(10, 10, math.Inf(1)).Validate(); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Expected ErrInvalidSubject for infinite radius, got %v", err)
	}
	if err := LocationSubject(10, 10, 250).Validate(); err != nil {
		t.Errorf("Expected valid location, got %v", err)
	}
}

func TestSubjectKey(t *testing.T) {
	if got := LocationSubject(34.5, -118.25, 800).Key(); got != "location:34.5,-118.25,800" {
		t.Errorf("Unexpected location key %q", got)
	}
	if got := ListingSubject("abc").Key(); got != "listing:abc" {
		t.Errorf("Unexpected listing key %q", got)
	}
	if got := (Subject{ListingID: "a", VideoID: "b"}).Key(); got != "invalid" {
		t.Errorf("Expected invalid key, got %q", got)
	}
}

func TestPolarityMarker(t *testing.T) {
	if Positive.Marker() == Negative.Marker() {
		t.Fatal("Positive and negative markers must differ")
	}
	if Negative.String() != "negative" || Positive.String() != "positive" {
		t.Error("Unexpected polarity names")
	}
}

func TestTakeawayIsFresh(t *testing.T) {
	now := time.Now()
	tk := Takeaway{CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if !tk.IsFresh(now) {
		t.Error("Expected record to be fresh")
	}
	if tk.IsFresh(now.Add(2 * time.Hour)) {
		t.Error("Expected record to be expired")
	}
}

func TestOutcomeFallback(t *testing.T) {
	if OutcomeGenerated.Fallback() {
		t.Error("Generated outcome should not be a fallback")
	}
	for _, o := range []Outcome{OutcomeRecovered, OutcomeNoSignal, OutcomeEmptyContent, OutcomeRateLimited} {
		if !o.Fallback() {
			t.Errorf("Expected %s to be a fallback", o)
		}
	}
}

func TestStringPtr(t *testing.T) {
	if StringPtr("") != nil {
		t.Error("Expected nil for empty string")
	}
	if Deref(StringPtr("x")) != "x" {
		t.Error("Expected round trip through StringPtr")
	}
	if Deref(nil) != "" {
		t.Error("Expected empty string for nil")
	}
}
