package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY",
		"DATABASE_URL", "SAFESIGHT_POSTGRES_URL", "LOG_LEVEL", "PORT",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "safesight.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	Reset()
	defer Reset()

	cfg, err := Load(writeConfig(t, "app:\n  debug: false\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AI.Gemini.APIKey != "" {
		t.Error("Expected no API key")
	}
	if cfg.AI.Gemini.Model != "gemini-flash-lite-latest" {
		t.Errorf("Unexpected model %s", cfg.AI.Gemini.Model)
	}
	if cfg.RateLimit.Requests != 60 || cfg.RateLimit.WindowDuration() != time.Minute {
		t.Errorf("Unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.MaxRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", cfg.RateLimit.MaxRetries)
	}
	if cfg.Cache.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %s", cfg.Cache.Driver)
	}
	if cfg.Cache.TTL.SuccessDuration() != 720*time.Hour || cfg.Cache.TTL.FallbackDuration() != 24*time.Hour {
		t.Errorf("Unexpected TTLs %+v", cfg.Cache.TTL)
	}
	if cfg.Cache.TimeoutDuration() != 5*time.Second || cfg.AI.Gemini.TimeoutDuration() != 10*time.Second {
		t.Error("Unexpected call timeouts")
	}
	if !cfg.Cache.Prune.Enabled || cfg.Cache.Prune.RetentionDuration() != 168*time.Hour {
		t.Errorf("Unexpected prune config %+v", cfg.Cache.Prune)
	}
	if cfg.Server.Address() != "0.0.0.0:8080" {
		t.Errorf("Unexpected address %s", cfg.Server.Address())
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected json logging, got %s", cfg.Logging.Format)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_AI_API_KEY", "key-from-env")
	t.Setenv("DATABASE_URL", "postgres://localhost/safesight")
	Reset()
	defer Reset()

	path := writeConfig(t, `
ratelimit:
  requests: 1
  window: 1s
cache:
  driver: Postgres
  ttl:
    success: 48h
    fallback: 1h
  memory:
    entries: 500
server:
  port: 9090
  cors:
    enabled: true
    allowed_origins: ["https://example.com"]
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AI.Gemini.APIKey != "key-from-env" {
		t.Errorf("Expected key from env, got %q", cfg.AI.Gemini.APIKey)
	}
	if cfg.Cache.Driver != "postgres" || cfg.Cache.PostgresURL != "postgres://localhost/safesight" {
		t.Errorf("Unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Cache.Memory.Entries != 500 {
		t.Errorf("Expected 500 memory entries, got %d", cfg.Cache.Memory.Entries)
	}
	if cfg.RateLimit.Requests != 1 || cfg.RateLimit.WindowDuration() != time.Second {
		t.Errorf("Unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Cache.TTL.SuccessDuration() != 48*time.Hour || cfg.Cache.TTL.FallbackDuration() != time.Hour {
		t.Errorf("Unexpected TTLs %+v", cfg.Cache.TTL)
	}
	if cfg.Server.Port != 9090 || !cfg.Server.CORS.Enabled || cfg.Server.CORS.AllowedOrigins[0] != "https://example.com" {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging config %+v", cfg.Logging)
	}
	if cfg.App.ConfigFile != path {
		t.Errorf("Expected config file %s, got %s", path, cfg.App.ConfigFile)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	Reset()
	defer Reset()

	_, err := Load(writeConfig(t, "cache:\n  ttl:\n    success: forever\n"))
	if err == nil || !strings.Contains(err.Error(), "cache.ttl.success") {
		t.Fatalf("Expected invalid duration error, got %v", err)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"postgres without url", "cache:\n  driver: postgres\n", "requires cache.postgres_url"},
		{"unknown driver", "cache:\n  driver: mysql\n", "Unknown cache driver"},
		{"fallback longer than success", "cache:\n  ttl:\n    success: 1h\n    fallback: 2h\n", "must not exceed"},
		{"zero requests", "ratelimit:\n  requests: 0\n", "ratelimit.requests"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			Reset()
			defer Reset()

			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_Cached(t *testing.T) {
	clearEnv(t)
	Reset()
	defer Reset()

	first, err := Load(writeConfig(t, "app:\n  debug: true\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if Get() != first || !IsDebugMode() {
		t.Error("Expected Get to return the loaded config")
	}
}
