package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	AI        AI        `mapstructure:"ai"`
	RateLimit RateLimit `mapstructure:"ratelimit"`
	Cache     Cache     `mapstructure:"cache"`
	Server    Server    `mapstructure:"server"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds inference service configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Timeout           string  `mapstructure:"timeout"`
	GenerationTimeout string  `mapstructure:"generation_timeout"`
	MaxTokens         int32   `mapstructure:"max_tokens"`
	Temperature       float32 `mapstructure:"temperature"`
}

// RateLimit holds the outbound inference quota and retry policy
type RateLimit struct {
	Requests    int    `mapstructure:"requests"`
	Window      string `mapstructure:"window"`
	MaxRetries  int    `mapstructure:"max_retries"`
	BaseBackoff string `mapstructure:"base_backoff"`
	MaxBackoff  string `mapstructure:"max_backoff"`
}

// Cache holds takeaway cache configuration
type Cache struct {
	Driver      string      `mapstructure:"driver"`
	Directory   string      `mapstructure:"directory"`
	PostgresURL string      `mapstructure:"postgres_url"`
	Timeout     string      `mapstructure:"timeout"`
	TTL         TTLConfig   `mapstructure:"ttl"`
	Prune       PruneConfig `mapstructure:"prune"`
	Memory      MemoryCache `mapstructure:"memory"`
}

// TTLConfig holds record validity windows
type TTLConfig struct {
	Success  string `mapstructure:"success"`
	Fallback string `mapstructure:"fallback"`
}

// PruneConfig controls deletion of expired rows
type PruneConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Interval  string `mapstructure:"interval"`
	Retention string `mapstructure:"retention"`
}

// MemoryCache controls the in-process read cache in front of the store
type MemoryCache struct {
	Entries int `mapstructure:"entries"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string          `mapstructure:"host"`
	Port         int             `mapstructure:"port"`
	ReadTimeout  string          `mapstructure:"read_timeout"`
	WriteTimeout string          `mapstructure:"write_timeout"`
	CORS         CORSConfig      `mapstructure:"cors"`
	RateLimit    ServerRateLimit `mapstructure:"rate_limit"`
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ServerRateLimit holds the per-client inbound limit
type ServerRateLimit struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".safesight")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".safesight")

	// AI defaults
	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.timeout", "10s")
	viper.SetDefault("ai.gemini.generation_timeout", "2m")
	viper.SetDefault("ai.gemini.max_tokens", 1024)
	viper.SetDefault("ai.gemini.temperature", 0.3)

	// Outbound quota shared by every generation
	viper.SetDefault("ratelimit.requests", 60)
	viper.SetDefault("ratelimit.window", "60s")
	viper.SetDefault("ratelimit.max_retries", 3)
	viper.SetDefault("ratelimit.base_backoff", "500ms")
	viper.SetDefault("ratelimit.max_backoff", "8s")

	// Cache defaults
	viper.SetDefault("cache.driver", "sqlite")
	viper.SetDefault("cache.directory", ".safesight")
	viper.SetDefault("cache.timeout", "5s")
	viper.SetDefault("cache.ttl.success", "720h")
	viper.SetDefault("cache.ttl.fallback", "24h")
	viper.SetDefault("cache.prune.enabled", true)
	viper.SetDefault("cache.prune.interval", "6h")
	viper.SetDefault("cache.prune.retention", "168h")
	viper.SetDefault("cache.memory.entries", 0)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "150s")
	viper.SetDefault("server.cors.enabled", false)
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.rate_limit.enabled", true)
	viper.SetDefault("server.rate_limit.requests_per_second", 5.0)
	viper.SetDefault("server.rate_limit.burst", 10)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("cache.postgres_url", []string{
		"DATABASE_URL",
		"SAFESIGHT_POSTGRES_URL",
	})

	bindEnvKeys("logging.level", []string{
		"LOG_LEVEL",
	})

	bindEnvKeys("server.port", []string{
		"PORT",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Cache.Directory != "" {
		config.Cache.Directory = expandPath(config.Cache.Directory)
	}
	config.Cache.Driver = strings.ToLower(strings.TrimSpace(config.Cache.Driver))

	durations := map[string]string{
		"ai.gemini.timeout":            config.AI.Gemini.Timeout,
		"ai.gemini.generation_timeout": config.AI.Gemini.GenerationTimeout,
		"ratelimit.window":             config.RateLimit.Window,
		"ratelimit.base_backoff":       config.RateLimit.BaseBackoff,
		"ratelimit.max_backoff":        config.RateLimit.MaxBackoff,
		"cache.timeout":                config.Cache.Timeout,
		"cache.ttl.success":            config.Cache.TTL.Success,
		"cache.ttl.fallback":           config.Cache.TTL.Fallback,
		"cache.prune.interval":         config.Cache.Prune.Interval,
		"cache.prune.retention":        config.Cache.Prune.Retention,
		"server.read_timeout":          config.Server.ReadTimeout,
		"server.write_timeout":         config.Server.WriteTimeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig checks values that would break the pipeline. A missing Gemini key is
// allowed: generation then falls back to default takeaways.
func validateConfig(config *Config) error {
	var errors []string

	switch config.Cache.Driver {
	case "sqlite", "":
	case "postgres":
		if config.Cache.PostgresURL == "" {
			errors = append(errors, "cache.driver postgres requires cache.postgres_url. Set DATABASE_URL or cache.postgres_url in config file")
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown cache driver: %s. Supported: sqlite, postgres", config.Cache.Driver))
	}

	if config.RateLimit.Requests <= 0 {
		errors = append(errors, "ratelimit.requests must be positive")
	}
	if config.RateLimit.MaxRetries < 0 {
		errors = append(errors, "ratelimit.max_retries cannot be negative")
	}
	if config.Cache.Memory.Entries < 0 {
		errors = append(errors, "cache.memory.entries cannot be negative")
	}

	success := parseDuration(config.Cache.TTL.Success, 0)
	fallback := parseDuration(config.Cache.TTL.Fallback, 0)
	if success <= 0 || fallback <= 0 {
		errors = append(errors, "cache.ttl.success and cache.ttl.fallback must be positive")
	} else if fallback > success {
		errors = append(errors, "cache.ttl.fallback must not exceed cache.ttl.success")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("Invalid server.port: %d", config.Server.Port))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// parseDuration parses s, returning fallback when s is empty or invalid.
// postProcessConfig has already rejected invalid values for loaded configs.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Duration accessors

func (g GeminiConfig) TimeoutDuration() time.Duration {
	return parseDuration(g.Timeout, 10*time.Second)
}

func (g GeminiConfig) GenerationTimeoutDuration() time.Duration {
	return parseDuration(g.GenerationTimeout, 2*time.Minute)
}

func (r RateLimit) WindowDuration() time.Duration {
	return parseDuration(r.Window, time.Minute)
}

func (r RateLimit) BaseBackoffDuration() time.Duration {
	return parseDuration(r.BaseBackoff, 500*time.Millisecond)
}

func (r RateLimit) MaxBackoffDuration() time.Duration {
	return parseDuration(r.MaxBackoff, 8*time.Second)
}

func (c Cache) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 5*time.Second)
}

func (t TTLConfig) SuccessDuration() time.Duration {
	return parseDuration(t.Success, 720*time.Hour)
}

func (t TTLConfig) FallbackDuration() time.Duration {
	return parseDuration(t.Fallback, 24*time.Hour)
}

func (p PruneConfig) IntervalDuration() time.Duration {
	return parseDuration(p.Interval, 6*time.Hour)
}

func (p PruneConfig) RetentionDuration() time.Duration {
	return parseDuration(p.Retention, 168*time.Hour)
}

func (s Server) ReadTimeoutDuration() time.Duration {
	return parseDuration(s.ReadTimeout, 15*time.Second)
}

func (s Server) WriteTimeoutDuration() time.Duration {
	return parseDuration(s.WriteTimeout, 150*time.Second)
}

// Address returns host:port for the HTTP listener
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Convenience getters for commonly used configuration values
func GetApp() App             { return Get().App }
func GetAI() AI               { return Get().AI }
func GetRateLimit() RateLimit { return Get().RateLimit }
func GetCache() Cache         { return Get().Cache }
func GetServer() Server       { return Get().Server }
func GetLogging() Logging     { return Get().Logging }

func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func GetGeminiModel() string  { return Get().AI.Gemini.Model }
func IsDebugMode() bool       { return Get().App.Debug }

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
