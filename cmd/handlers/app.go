package handlers

import (
	"context"
	"fmt"

	"safesight/internal/config"
	"safesight/internal/llm"
	"safesight/internal/logger"
	"safesight/internal/metrics"
	"safesight/internal/ratelimit"
	"safesight/internal/store"
	"safesight/internal/summarize"
	"safesight/internal/takeaway"
)

// app is the wired pipeline shared by every command that generates takeaways
type app struct {
	cfg     *config.Config
	backend store.Backend
	limiter *ratelimit.Limiter
	client  *llm.Client
	metrics *metrics.Metrics
	service *takeaway.Service
}

// openBackend opens the configured cache store
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	dir := cfg.Cache.Directory
	if dir == "" {
		dir = cfg.App.DataDir
	}
	backend, err := store.Open(ctx, store.Options{
		Driver:        cfg.Cache.Driver,
		Directory:     dir,
		PostgresURL:   cfg.Cache.PostgresURL,
		MemoryEntries: cfg.Cache.Memory.Entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	return backend, nil
}

// newApp builds limiter, inference client, summarizer, store and orchestrator from cfg.
// One limiter is shared by everything the app generates.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	m := metrics.New(nil)

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.WindowDuration())

	client, err := llm.NewClient(ctx, llm.Config{
		APIKey:      cfg.AI.Gemini.APIKey,
		Model:       cfg.AI.Gemini.Model,
		Temperature: cfg.AI.Gemini.Temperature,
		MaxTokens:   cfg.AI.Gemini.MaxTokens,
		MaxRetries:  cfg.RateLimit.MaxRetries,
		BaseBackoff: cfg.RateLimit.BaseBackoffDuration(),
		MaxBackoff:  cfg.RateLimit.MaxBackoffDuration(),
		CallTimeout: cfg.AI.Gemini.TimeoutDuration(),
	}, limiter, llm.WithMetrics(m))
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	summarizer := summarize.NewSummarizer(client, summarize.SummarizerOptions{
		MaxPoints: summarize.DefaultMaxPoints,
		ModelName: client.GetModelName(),
	})

	service := takeaway.NewService(backend, summarizer, takeaway.Options{
		SuccessTTL:        cfg.Cache.TTL.SuccessDuration(),
		FallbackTTL:       cfg.Cache.TTL.FallbackDuration(),
		GenerationTimeout: cfg.AI.Gemini.GenerationTimeoutDuration(),
		StoreTimeout:      cfg.Cache.TimeoutDuration(),
	}, takeaway.WithMetrics(m))

	logger.Debug("Pipeline ready",
		"driver", cfg.Cache.Driver,
		"model", client.GetModelName(),
		"credential", client.HasCredential(),
		"requests_per_window", limiter.Limit(),
		"window", limiter.Window(),
	)

	return &app{
		cfg:     cfg,
		backend: backend,
		limiter: limiter,
		client:  client,
		metrics: m,
		service: service,
	}, nil
}

// Close releases the inference client and the store
func (a *app) Close() {
	a.client.Close()
	if err := a.backend.Close(); err != nil {
		logger.Error("Failed to close cache store", err)
	}
}
