package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrInvalidSubject is returned when a subject does not populate exactly one variant.
var ErrInvalidSubject = errors.New("subject must have exactly one of location, listing_id or video_id")

// SubjectKind names the populated variant of a Subject.
type SubjectKind string

const (
	SubjectLocation SubjectKind = "location"
	SubjectListing  SubjectKind = "listing"
	SubjectVideo    SubjectKind = "video"
)

// ContentType tags the kind of content a takeaway is generated from.
type ContentType string

const (
	ContentReviews  ContentType = "reviews"  // Guest reviews of a listing
	ContentInsights ContentType = "insights" // Community comments around a location
	ContentVideos   ContentType = "videos"   // Short-video transcript, description and comments
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentReviews, ContentInsights, ContentVideos:
		return true
	}
	return false
}

// Polarity selects one side of a takeaway checklist.
type Polarity int

const (
	Positive Polarity = iota
	Negative
)

// Checklist markers. Every line of a stored positive or negative text starts with one.
const (
	PositiveMarker = "✓"
	NegativeMarker = "✗"
)

// Marker returns the line prefix for the polarity.
func (p Polarity) Marker() string {
	if p == Negative {
		return NegativeMarker
	}
	return PositiveMarker
}

func (p Polarity) String() string {
	if p == Negative {
		return "negative"
	}
	return "positive"
}

// Location is a geographic point plus a search radius in meters.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// Subject identifies what a takeaway describes. Exactly one field is populated.
type Subject struct {
	Location  *Location `json:"location,omitempty"`
	ListingID string    `json:"listing_id,omitempty"`
	VideoID   string    `json:"video_id,omitempty"`
}

// LocationSubject builds a location-scoped subject.
func LocationSubject(lat, lng, radius float64) Subject {
	return Subject{Location: &Location{Latitude: lat, Longitude: lng, Radius: radius}}
}

// ListingSubject builds a listing-scoped subject.
func ListingSubject(id string) Subject { return Subject{ListingID: id} }

// VideoSubject builds a video-scoped subject.
func VideoSubject(id string) Subject { return Subject{VideoID: id} }

// Kind returns the populated variant, or ErrInvalidSubject when zero or several are set.
func (s Subject) Kind() (SubjectKind, error) {
	var kinds []SubjectKind
	if s.Location != nil {
		kinds = append(kinds, SubjectLocation)
	}
	if s.ListingID != "" {
		kinds = append(kinds, SubjectListing)
	}
	if s.VideoID != "" {
		kinds = append(kinds, SubjectVideo)
	}
	if len(kinds) != 1 {
		return "", ErrInvalidSubject
	}
	return kinds[0], nil
}

// Validate checks the one-variant invariant and the location ranges.
func (s Subject) Validate() error {
	kind, err := s.Kind()
	if err != nil {
		return err
	}
	if kind == SubjectLocation {
		l := s.Location
		if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) || math.IsNaN(l.Radius) {
			return fmt.Errorf("%w: coordinates must be numbers", ErrInvalidSubject)
		}
		if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
			return fmt.Errorf("%w: coordinates out of range (%f, %f)", ErrInvalidSubject, l.Latitude, l.Longitude)
		}
		if l.Radius <= 0 || math.IsInf(l.Radius, 1) {
			return fmt.Errorf("%w: radius must be positive and finite", ErrInvalidSubject)
		}
	}
	return nil
}

// Key is a stable string form of the subject, used in logs and metrics labels.
func (s Subject) Key() string {
	switch {
	case s.Location != nil && s.ListingID == "" && s.VideoID == "":
		return "location:" + strconv.FormatFloat(s.Location.Latitude, 'f', -1, 64) +
			"," + strconv.FormatFloat(s.Location.Longitude, 'f', -1, 64) +
			"," + strconv.FormatFloat(s.Location.Radius, 'f', -1, 64)
	case s.ListingID != "" && s.Location == nil && s.VideoID == "":
		return "listing:" + s.ListingID
	case s.VideoID != "" && s.Location == nil && s.ListingID == "":
		return "video:" + s.VideoID
	}
	return "invalid"
}

// Outcome is a diagnostic code describing how a takeaway record was produced.
type Outcome string

const (
	OutcomeGenerated         Outcome = "generated"          // Strict parse of a valid reply
	OutcomeRecovered         Outcome = "recovered"          // Fields recovered from a malformed reply
	OutcomeNoSignal          Outcome = "no_signal"          // Reply had nothing usable
	OutcomeEmptyContent      Outcome = "empty_content"      // No content to summarize
	OutcomeMissingCredential Outcome = "missing_credential" // No inference key configured
	OutcomeRateLimited       Outcome = "rate_limited"       // Throttling retries exhausted
	OutcomeUnavailable       Outcome = "unavailable"        // Transport-level failure
	OutcomeInvalidSubject    Outcome = "invalid_subject"    // Subject failed validation
)

// Fallback reports whether the outcome is a guess that should expire early.
func (o Outcome) Fallback() bool {
	return o != OutcomeGenerated
}

// Takeaway is the persisted bipolar summary for a subject. It is never mutated once stored.
type Takeaway struct {
	ID           string    `json:"id"`
	Subject      Subject   `json:"subject"`
	PositiveText *string   `json:"positive_takeaway"`
	NegativeText *string   `json:"negative_takeaway"`
	SummaryText  *string   `json:"summary,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	ModelUsed    string    `json:"model_used,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsFresh reports whether the record is still valid at now.
func (t *Takeaway) IsFresh(now time.Time) bool {
	return t.ExpiresAt.After(now)
}

// TableStats describes one takeaway table.
type TableStats struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
	Fresh int64  `json:"fresh"`
}

// CacheStats summarizes the takeaway cache.
type CacheStats struct {
	Driver    string       `json:"driver"`
	Tables    []TableStats `json:"tables"`
	SizeBytes int64        `json:"size_bytes"`
}

// TotalRows sums the row counts of every table.
func (s *CacheStats) TotalRows() int64 {
	var total int64
	for _, t := range s.Tables {
		total += t.Rows
	}
	return total
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
