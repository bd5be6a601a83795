// Package takeaway implements find-or-generate for safety takeaways: cache lookup,
// generation on a miss, append-only persistence, and a return path that never fails.
package takeaway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"safesight/internal/content"
	"safesight/internal/core"
	"safesight/internal/llm"
	"safesight/internal/logger"
	"safesight/internal/metrics"
	"safesight/internal/summarize"
)

// Store is the cache the service reads from and appends to.
type Store interface {
	FindFresh(ctx context.Context, subject core.Subject, now time.Time) (*core.Takeaway, error)
	Insert(ctx context.Context, takeaway *core.Takeaway) error
}

// Generator turns normalized content into formatted takeaways.
type Generator interface {
	GenerateTakeaways(ctx context.Context, req summarize.GenerateRequest) (*summarize.Generation, error)
	ModelName() string
}

// Options configures TTLs and per-call timeouts.
type Options struct {
	SuccessTTL        time.Duration // TTL of a fully parsed generation
	FallbackTTL       time.Duration // TTL of every degraded or default record
	GenerationTimeout time.Duration // Whole generation, including limiter waits and retries
	StoreTimeout      time.Duration
}

// DefaultOptions returns the standard TTLs and timeouts.
func DefaultOptions() Options {
	return Options{
		SuccessTTL:        30 * 24 * time.Hour,
		FallbackTTL:       24 * time.Hour,
		GenerationTimeout: 2 * time.Minute,
		StoreTimeout:      5 * time.Second,
	}
}

// Service is the cache orchestrator. It is safe for concurrent use.
type Service struct {
	store     Store
	generator Generator
	opts      Options
	now       func() time.Time
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMetrics records lookups, writes and outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// NewService creates an orchestrator. Zero option values take the defaults.
func NewService(store Store, generator Generator, opts Options, options ...Option) *Service {
	defaults := DefaultOptions()
	if opts.SuccessTTL <= 0 {
		opts.SuccessTTL = defaults.SuccessTTL
	}
	if opts.FallbackTTL <= 0 {
		opts.FallbackTTL = defaults.FallbackTTL
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = defaults.GenerationTimeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaults.StoreTimeout
	}

	s := &Service{
		store:     store,
		generator: generator,
		opts:      opts,
		now:       time.Now,
		log:       logger.Get(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Request is one find-or-generate call.
type Request struct {
	Subject     core.Subject
	ContentType core.ContentType // Defaults from the subject kind when empty
	Items       []content.Item
	SubjectName string
}

// FindOrGenerate returns the fresh cached takeaway for the subject, or generates,
// persists and returns a new one. It never fails: every error degrades to a record
// with null or default text and the fallback TTL, with Outcome naming the cause.
//
// Cancellation of ctx is not propagated; calls run to completion under their own
// timeouts.
func (s *Service) FindOrGenerate(ctx context.Context, req Request) *core.Takeaway {
	ctx = context.WithoutCancel(ctx)
	// Postgres keeps microseconds; a record must read back exactly as it was returned.
	now := s.now().UTC().Truncate(time.Microsecond)

	kind, err := req.Subject.Kind()
	if err == nil {
		err = req.Subject.Validate()
	}
	if err != nil {
		s.log.Warn("Rejected takeaway request", "error", err, "subject", req.Subject.Key())
		t := s.newRecord(req.Subject, core.OutcomeInvalidSubject, now)
		s.metrics.RecordTakeaway(string(req.ContentType), string(t.Outcome))
		return t
	}

	contentType := req.ContentType
	if !contentType.Valid() {
		contentType = DefaultContentType(kind)
	}
	log := s.log.With("subject", req.Subject.Key(), "content_type", contentType)

	if cached := s.lookup(ctx, req.Subject, kind, now, log); cached != nil {
		return cached
	}

	start := time.Now()
	t := s.generate(ctx, req, kind, contentType, now, log)
	s.metrics.RecordGeneration(string(contentType), time.Since(start).Seconds())
	s.metrics.RecordTakeaway(string(contentType), string(t.Outcome))

	s.persist(ctx, t, kind, log)
	return t
}

// lookup returns a fresh cached record or nil. Read errors count as a miss.
func (s *Service) lookup(ctx context.Context, subject core.Subject, kind core.SubjectKind, now time.Time, log *slog.Logger) *core.Takeaway {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	cached, err := s.store.FindFresh(ctx, subject, now)
	switch {
	case err != nil:
		log.Warn("Takeaway cache lookup failed, treating as miss", "error", err)
		s.metrics.RecordLookup(string(kind), "error")
		return nil
	case cached == nil || !cached.IsFresh(now):
		s.metrics.RecordLookup(string(kind), "miss")
		return nil
	}

	log.Debug("Takeaway cache hit", "id", cached.ID, "expires_at", cached.ExpiresAt)
	s.metrics.RecordLookup(string(kind), "hit")
	return cached
}

func (s *Service) generate(ctx context.Context, req Request, kind core.SubjectKind, contentType core.ContentType, now time.Time, log *slog.Logger) *core.Takeaway {
	lines := content.Normalize(req.Items, contentType)
	if len(lines) == 0 {
		log.Info("No content to summarize, using default takeaway")
		return s.defaultRecord(req.Subject, contentType, core.OutcomeEmptyContent, now)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.GenerationTimeout)
	defer cancel()

	gen, err := s.generator.GenerateTakeaways(ctx, summarize.GenerateRequest{
		Lines:          lines,
		ContentType:    contentType,
		SubjectName:    req.SubjectName,
		IncludeSummary: kind != core.SubjectLocation,
	})
	if err != nil {
		outcome := classifyError(err)
		log.Warn("Takeaway generation failed", "error", err, "outcome", outcome)
		if outcome == core.OutcomeMissingCredential {
			return s.defaultRecord(req.Subject, contentType, outcome, now)
		}
		return s.newRecord(req.Subject, outcome, now)
	}

	outcome := core.OutcomeGenerated
	switch {
	case gen.Status == summarize.ParsePartial && !gen.Empty():
		outcome = core.OutcomeRecovered
		log.Warn("Recovered takeaway fields from malformed reply", "error", gen.ParseErr)
	case gen.Empty():
		outcome = core.OutcomeNoSignal
		if gen.ParseErr != nil {
			log.Warn("Reply held no usable takeaway", "error", gen.ParseErr, "status", gen.Status)
		}
	}

	t := s.newRecord(req.Subject, outcome, now)
	t.PositiveText = gen.Positive
	t.NegativeText = gen.Negative
	t.SummaryText = gen.Summary
	t.ModelUsed = s.generator.ModelName()
	return t
}

// persist appends the record. Failures are logged and the record is still returned.
func (s *Service) persist(ctx context.Context, t *core.Takeaway, kind core.SubjectKind, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if err := s.store.Insert(ctx, t); err != nil {
		log.Error("Failed to persist takeaway", "error", err, "id", t.ID, "outcome", t.Outcome)
		s.metrics.RecordWrite(string(kind), "error")
		return
	}
	s.metrics.RecordWrite(string(kind), "ok")
}

func (s *Service) newRecord(subject core.Subject, outcome core.Outcome, now time.Time) *core.Takeaway {
	ttl := s.opts.FallbackTTL
	if !outcome.Fallback() {
		ttl = s.opts.SuccessTTL
	}
	return &core.Takeaway{
		ID:        uuid.NewString(),
		Subject:   subject,
		Outcome:   outcome,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *Service) defaultRecord(subject core.Subject, contentType core.ContentType, outcome core.Outcome, now time.Time) *core.Takeaway {
	t := s.newRecord(subject, outcome, now)
	text := defaultTexts[contentType]
	t.PositiveText = core.StringPtr(text.positive)
	t.NegativeText = core.StringPtr(text.negative)
	return t
}

// classifyError maps a generation error to its outcome code.
func classifyError(err error) core.Outcome {
	switch {
	case errors.Is(err, llm.ErrMissingCredential):
		return core.OutcomeMissingCredential
	case errors.Is(err, llm.ErrRateLimitExceeded):
		return core.OutcomeRateLimited
	default:
		return core.OutcomeUnavailable
	}
}

// DefaultContentType returns the content type a subject kind is summarized from.
func DefaultContentType(kind core.SubjectKind) core.ContentType {
	switch kind {
	case core.SubjectLocation:
		return core.ContentInsights
	case core.SubjectVideo:
		return core.ContentVideos
	default:
		return core.ContentReviews
	}
}
