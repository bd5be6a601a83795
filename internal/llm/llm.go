package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"google.golang.org/genai"

	"safesight/internal/logger"
	"safesight/internal/metrics"
	"safesight/internal/ratelimit"
)

const (
	// DefaultModel is the default Gemini model used for takeaways.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultMaxRetries bounds retries after throttling.
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the first retry delay before jitter.
	DefaultBaseBackoff = 500 * time.Millisecond
	// DefaultMaxBackoff caps a single retry delay.
	DefaultMaxBackoff = 8 * time.Second
	// DefaultCallTimeout bounds one request to the inference service.
	DefaultCallTimeout = 10 * time.Second
)

var (
	// ErrMissingCredential means no API key is configured; no request was sent.
	ErrMissingCredential = errors.New("inference API key is not configured")
	// ErrRateLimitExceeded means throttling persisted through every retry.
	ErrRateLimitExceeded = errors.New("inference rate limit exceeded")
	// ErrInferenceUnavailable wraps non-throttling transport and service failures.
	ErrInferenceUnavailable = errors.New("inference service unavailable")
	// ErrThrottled is returned by backends to signal a throttling-class failure.
	ErrThrottled = errors.New("inference request throttled")
)

// Backend performs one inference request.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds the client settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	CallTimeout time.Duration
}

// Client sends prompts to the inference service through the shared rate limiter,
// retrying throttled requests with exponential backoff and jitter.
type Client struct {
	backend   Backend
	limiter   *ratelimit.Limiter
	modelName string

	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	callTimeout time.Duration

	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBackend replaces the Gemini backend.
func WithBackend(b Backend) Option {
	return func(c *Client) {
		c.backend = b
	}
}

// WithMetrics records inference calls, retries and limiter waits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithSleep replaces the retry delay function, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient creates an inference client. The API key is taken from cfg, then from
// GEMINI_API_KEY, GOOGLE_GEMINI_API_KEY or GOOGLE_AI_API_KEY. Without a key the client
// is still returned; every call then fails fast with ErrMissingCredential.
func NewClient(ctx context.Context, cfg Config, limiter *ratelimit.Limiter, opts ...Option) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if limiter == nil {
		limiter = ratelimit.New(60, time.Minute)
	}

	c := &Client{
		limiter:     limiter,
		modelName:   cfg.Model,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
		callTimeout: cfg.CallTimeout,
		sleep:       sleepContext,
		log:         logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.backend == nil {
		apiKey := resolveAPIKey(cfg.APIKey)
		if apiKey == "" {
			c.log.Warn("Gemini API key not configured; takeaways will use default text")
			return c, nil
		}
		backend, err := NewGeminiBackend(ctx, apiKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		c.backend = backend
	}

	return c, nil
}

func resolveAPIKey(configured string) string {
	if configured != "" {
		return configured
	}
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// HasCredential reports whether a backend is configured.
func (c *Client) HasCredential() bool {
	return c.backend != nil
}

// GetModelName returns the model name used by this client.
func (c *Client) GetModelName() string {
	return c.modelName
}

// Close cleans up resources used by the client
func (c *Client) Close() {
	// The genai client doesn't require explicit close
}

// GenerateText sends prompt and returns the reply text. Every attempt first takes a
// slot from the rate limiter. Throttled attempts are retried up to the configured
// maximum, then ErrRateLimitExceeded is returned; other failures are returned at once
// wrapped in ErrInferenceUnavailable.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	if c.backend == nil {
		return "", ErrMissingCredential
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	for attempt := 0; ; attempt++ {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: waiting for rate limiter: %w", ErrRateLimitExceeded, err)
		}
		if waited := time.Since(waitStart); waited > time.Millisecond {
			c.log.Debug("Waited for rate limiter", "wait", waited, "attempt", attempt)
		}
		c.metrics.RecordLimiterWait(time.Since(waitStart).Seconds())

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		text, err := c.backend.Generate(callCtx, prompt)
		cancel()
		if err == nil {
			c.metrics.RecordInferenceCall("ok")
			return text, nil
		}

		if !IsThrottled(err) {
			c.metrics.RecordInferenceCall("error")
			return "", fmt.Errorf("%w: %w", ErrInferenceUnavailable, err)
		}

		c.metrics.RecordInferenceCall("throttled")
		if attempt >= c.maxRetries {
			return "", fmt.Errorf("%w after %d attempts: %w", ErrRateLimitExceeded, attempt+1, err)
		}

		delay := c.backoff(attempt)
		if wait := c.limiter.WaitUntilAvailable(); wait > delay {
			delay = wait
		}
		c.log.Warn("Inference request throttled, retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"delay", delay)
		c.metrics.RecordRetry()

		if err := c.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("%w: %w", ErrRateLimitExceeded, err)
		}
	}
}

// backoff returns a full-jitter delay in (0, min(base*2^attempt, max)].
func (c *Client) backoff(attempt int) time.Duration {
	ceiling := c.maxBackoff
	if attempt < 30 {
		if d := c.baseBackoff << attempt; d > 0 && d < ceiling {
			ceiling = d
		}
	}
	return time.Duration(rand.Int64N(int64(ceiling))) + 1
}

// IsThrottled reports whether err is a throttling-class failure: ErrThrottled or a
// Gemini API error with HTTP 429 / RESOURCE_EXHAUSTED.
func IsThrottled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == "RESOURCE_EXHAUSTED"
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
