// Package config loads AirPulse runtime configuration from the
// environment, optionally merged with a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the AirPulse daemon.
type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Scheduler SchedulerConfig
	History   HistoryConfig
	PubSub    PubSubConfig
	Telemetry TelemetryConfig
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port string
	Env  string
}

// ProviderConfig configures the EPA Victoria client.
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	UserAgent    string
	FetchTimeout time.Duration
	MaxTries     int
	BaseBackoff  time.Duration
	JitterMax    time.Duration
}

// SchedulerConfig configures the fetch coordinators. Sites are either
// named explicitly via SiteIDs or resolved once at startup from
// Latitude/Longitude.
type SchedulerConfig struct {
	SiteIDs          []string
	Latitude         float64
	Longitude        float64
	HasCoordinates   bool
	Timezone         string
	Divisions        int
	CheckInterval    time.Duration
	MinFetchInterval time.Duration
	CacheDir         string
}

// HistoryConfig configures the observation archive.
type HistoryConfig struct {
	// DatabaseEnabled switches the archive from in-memory to Postgres.
	// Connection parameters come from database.ConfigFromEnv.
	DatabaseEnabled bool
	Retention       time.Duration
	PruneInterval   time.Duration
}

// PubSubConfig configures the remote refresh trigger.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// Enabled reports whether the Pub/Sub trigger is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Subscription != ""
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged first, without overriding variables that
// are already set.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("APP_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Provider: providerFromEnv(),
		Scheduler: SchedulerConfig{
			SiteIDs:          splitList(getEnv("SITE_IDS", "")),
			Timezone:         getEnv("SITE_TIMEZONE", "Australia/Melbourne"),
			Divisions:        getEnvAsInt("FETCH_DIVISIONS", 0),
			CheckInterval:    getEnvAsDuration("CHECK_INTERVAL", 0),
			MinFetchInterval: getEnvAsDuration("MIN_FETCH_INTERVAL", 0),
			CacheDir:         getEnv("CACHE_DIR", defaultCacheDir()),
		},
		History: HistoryConfig{
			DatabaseEnabled: getEnvAsBool("DB_ENABLED", false),
			Retention:       getEnvAsDuration("HISTORY_RETENTION", 0),
			PruneInterval:   getEnvAsDuration("HISTORY_PRUNE_INTERVAL", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
			Subscription: getEnv("PUBSUB_SUBSCRIPTION", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
	}

	lat, latSet := lookupEnvAsFloat("SITE_LATITUDE")
	lon, lonSet := lookupEnvAsFloat("SITE_LONGITUDE")
	if latSet != lonSet {
		return nil, fmt.Errorf("SITE_LATITUDE and SITE_LONGITUDE must be set together")
	}
	if latSet {
		cfg.Scheduler.Latitude = lat
		cfg.Scheduler.Longitude = lon
		cfg.Scheduler.HasCoordinates = true
	}

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("EPA_API_KEY is required")
	}
	if len(cfg.Scheduler.SiteIDs) == 0 && !cfg.Scheduler.HasCoordinates {
		return nil, fmt.Errorf("either SITE_IDS or SITE_LATITUDE/SITE_LONGITUDE is required")
	}

	return cfg, nil
}

// LoadProvider reads only the provider section. One-shot lookup
// commands use it so they work without a full daemon configuration.
func LoadProvider() (ProviderConfig, error) {
	_ = godotenv.Load()

	p := providerFromEnv()
	if p.APIKey == "" {
		return ProviderConfig{}, fmt.Errorf("EPA_API_KEY is required")
	}
	return p, nil
}

func providerFromEnv() ProviderConfig {
	return ProviderConfig{
		BaseURL:      getEnv("EPA_BASE_URL", ""),
		APIKey:       getEnv("EPA_API_KEY", ""),
		UserAgent:    getEnv("EPA_USER_AGENT", ""),
		FetchTimeout: getEnvAsDuration("EPA_FETCH_TIMEOUT", 0),
		MaxTries:     getEnvAsInt("EPA_MAX_TRIES", 0),
		BaseBackoff:  getEnvAsDuration("EPA_BASE_BACKOFF", 0),
		JitterMax:    getEnvAsDuration("EPA_BACKOFF_JITTER", 0),
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "."
	}
	return dir + "/airpulse"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func lookupEnvAsFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
