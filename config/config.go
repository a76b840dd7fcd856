package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// envPrefix namespaces every variable read by Load.
const envPrefix = "IMAGESCOUT_"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Fetch     FetchConfig
	Engine    EngineConfig
	Batch     BatchConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// FetchConfig controls outbound requests to origins.
type FetchConfig struct {
	// PageTimeout bounds the fetch of the page being scraped.
	PageTimeout time.Duration // default: 15s

	// ProbeTimeout bounds each quality probe.
	ProbeTimeout time.Duration // default: 5s

	// RelayTimeout bounds each relayed image fetch.
	RelayTimeout time.Duration // default: 10s

	// MaxImageBytes is the largest image body the relay will buffer.
	MaxImageBytes int64 // default: 50 MiB
}

// EngineConfig selects how page markup is obtained.
type EngineConfig struct {
	// Mode is "http", "browser" or "auto".
	Mode string // default: "http"

	Browser BrowserConfig

	// MemoryTTL is how long a domain stays pinned to the browser in auto mode.
	MemoryTTL time.Duration // default: 24h
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	Headless   bool // default: true
	MaxPages   int  // default: 4
	NoSandbox  bool // default: false
	BrowserBin string
	Proxy      string
	Stealth    bool // default: true

	// BlockResources lists resource types the browser never downloads
	// ("Font", "Media", "Stylesheet"). Images are never blocked.
	BlockResources []string // default: Font, Media
	BlockAds       bool     // default: true
}

// BatchConfig sets the concurrency groups.
type BatchConfig struct {
	// ProbeGroupSize is how many candidates are probed concurrently.
	ProbeGroupSize int // default: 5

	// ArchiveGroupSize is how many images the archiver fetches concurrently.
	ArchiveGroupSize int // default: 3
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: false
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// JobsConfig controls where async archive jobs are tracked.
type JobsConfig struct {
	// Driver is "memory" or "redis".
	Driver string // default: "memory"

	// TTL is how long finished jobs and their archives are kept.
	TTL time.Duration // default: 1h

	RedisAddr     string // default: "localhost:6379"
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // default: "imagescout:job:"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   // default: true
	Path    string // default: "/metrics"
}

// Load reads .env files, then configuration from environment variables with
// sane defaults. Variables already present in the environment win over .env.
func Load() *Config {
	loadDotEnv(".env.local", ".env")

	return &Config{
		Server: ServerConfig{
			Host: envOr("HOST", "0.0.0.0"),
			Port: envIntOr("PORT", 8080),
			Mode: envOr("MODE", "release"),
		},
		Fetch: FetchConfig{
			PageTimeout:   envDurationOr("PAGE_TIMEOUT", 15*time.Second),
			ProbeTimeout:  envDurationOr("PROBE_TIMEOUT", 5*time.Second),
			RelayTimeout:  envDurationOr("RELAY_TIMEOUT", 10*time.Second),
			MaxImageBytes: int64(envIntOr("MAX_IMAGE_BYTES", 50<<20)),
		},
		Engine: EngineConfig{
			Mode: strings.ToLower(envOr("ENGINE", "http")),
			Browser: BrowserConfig{
				Headless:   envBoolOr("HEADLESS", true),
				MaxPages:   envIntOr("MAX_PAGES", 4),
				NoSandbox:  envBoolOr("NO_SANDBOX", false),
				BrowserBin: envOr("BROWSER_BIN", ""),
				Proxy:      envOr("PROXY", ""),
				Stealth:    envBoolOr("STEALTH", true),

				BlockResources: envSliceOr("BLOCK_RESOURCES", []string{"Font", "Media"}),
				BlockAds:       envBoolOr("BLOCK_ADS", true),
			},
			MemoryTTL: envDurationOr("ENGINE_MEMORY_TTL", 24*time.Hour),
		},
		Batch: BatchConfig{
			ProbeGroupSize:   envIntOr("PROBE_GROUP_SIZE", 5),
			ArchiveGroupSize: envIntOr("ARCHIVE_GROUP_SIZE", 3),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("AUTH_ENABLED", false),
			APIKeys: envSliceOr("API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("RATE_RPS", 5.0),
			Burst:             envIntOr("RATE_BURST", 10),
		},
		Jobs: JobsConfig{
			Driver:        strings.ToLower(envOr("JOBS_DRIVER", "memory")),
			TTL:           envDurationOr("JOBS_TTL", time.Hour),
			RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
			RedisPassword: envOr("REDIS_PASSWORD", ""),
			RedisDB:       envIntOr("REDIS_DB", 0),
			RedisPrefix:   envOr("REDIS_PREFIX", "imagescout:job:"),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: envBoolOr("METRICS_ENABLED", true),
			Path:    envOr("METRICS_PATH", "/metrics"),
		},
	}
}

// loadDotEnv loads each file that exists. godotenv.Load never overrides
// variables that are already set, so earlier files take precedence.
func loadDotEnv(files ...string) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to load env file", "file", f, "error", err)
		}
	}
}

// --- helper functions ---

func lookup(key string) string {
	return os.Getenv(envPrefix + key)
}

func envOr(key, fallback string) string {
	if v := lookup(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := lookup(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := lookup(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
