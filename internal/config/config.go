// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, queue scheduling, event
// delivery, and observability.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls response hardening headers.
type SecurityConfig struct {
	EnableHSTS bool          // HSTS_ENABLED; only when HTTPS end-to-end
	HSTSMaxAge time.Duration // HSTS_MAX_AGE
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "clinic-queue")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and tunes the storage backend.
type DBConfig struct {
	Driver       string // sqlite|postgres
	Path         string // SQLite file path
	URL          string // Postgres DSN
	MaxOpenConns int
}

// QueueConfig holds the knobs of the admission and prioritization engine.
type QueueConfig struct {
	TimeZone             string        // clinic calendar day for ticket numbering
	SweepInterval        time.Duration // periodic priority recompute
	AllocationMaxRetries int           // sequence allocator retry budget
	ProfilePath          string        // optional YAML scoring profile
}

// EventsConfig configures outbound domain events.
type EventsConfig struct {
	RedisURL string // empty disables the Redis sink
	Channel  string
	Codec    string // json|cbor
	Buffer   int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	SwaggerEnabled bool // serve the OpenAPI document and UI under /swagger

	DB     DBConfig
	Queue  QueueConfig
	Events EventsConfig

	// Rate limiting of mutating routes
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	v := newViper()

	cfg := Config{
		// Server
		Port:              v.GetString("PORT"),
		ReadTimeout:       v.GetDuration("READ_TIMEOUT"),
		ReadHeaderTimeout: v.GetDuration("READ_HEADER_TIMEOUT"),
		WriteTimeout:      v.GetDuration("WRITE_TIMEOUT"),
		IdleTimeout:       v.GetDuration("IDLE_TIMEOUT"),
		MaxHeaderBytes:    v.GetInt("MAX_HEADER_BYTES"),
		GinMode:           strings.ToLower(v.GetString("GIN_MODE")),

		// Logging
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		LogPretty:   v.GetBool("LOG_PRETTY"),
		APIBasePath: normalizeBasePath(v.GetString("API_BASE_PATH")),

		SwaggerEnabled: v.GetBool("SWAGGER_ENABLED"),

		DB: DBConfig{
			Driver:       strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			Path:         v.GetString("DB_PATH"),
			URL:          v.GetString("DATABASE_URL"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		},
		Queue: QueueConfig{
			TimeZone:             v.GetString("CLINIC_TIMEZONE"),
			SweepInterval:        v.GetDuration("SWEEP_INTERVAL"),
			AllocationMaxRetries: v.GetInt("ALLOCATION_MAX_RETRIES"),
			ProfilePath:          strings.TrimSpace(v.GetString("PRIORITY_PROFILE")),
		},
		Events: EventsConfig{
			RedisURL: strings.TrimSpace(v.GetString("REDIS_URL")),
			Channel:  v.GetString("EVENTS_CHANNEL"),
			Codec:    strings.ToLower(v.GetString("EVENTS_CODEC")),
			Buffer:   v.GetInt("EVENT_BUFFER"),
		},

		// Rate limiting
		RateRPS:   v.GetFloat64("RATE_RPS"),
		RateBurst: v.GetInt("RATE_BURST"),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(v.GetString("CORS_ALLOWED_ORIGINS")),
		},

		Security: SecurityConfig{
			EnableHSTS: v.GetBool("HSTS_ENABLED"),
			HSTSMaxAge: v.GetDuration("HSTS_MAX_AGE"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     v.GetBool("OTEL_ENABLED"),
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			SampleRatio: v.GetFloat64("OTEL_TRACES_SAMPLER_ARG"),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.DB.MaxOpenConns < 1 {
		return cfg, errors.New("DB_MAX_OPEN_CONNS must be >= 1")
	}
	if _, err := time.LoadLocation(cfg.Queue.TimeZone); err != nil {
		return cfg, errors.New("CLINIC_TIMEZONE must be a valid IANA time zone")
	}
	if cfg.Queue.SweepInterval <= 0 {
		return cfg, errors.New("SWEEP_INTERVAL must be a positive duration")
	}
	if cfg.Queue.AllocationMaxRetries < 1 {
		return cfg, errors.New("ALLOCATION_MAX_RETRIES must be >= 1")
	}
	switch cfg.Events.Codec {
	case "json", "cbor":
	default:
		return cfg, errors.New("EVENTS_CODEC must be one of: json, cbor")
	}
	if cfg.Events.Buffer < 1 {
		return cfg, errors.New("EVENT_BUFFER must be >= 1")
	}
	if strings.TrimSpace(cfg.Events.Channel) == "" {
		return cfg, errors.New("EVENTS_CHANNEL must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// Location returns the clinic time zone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Queue.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// newViper binds every known key to the environment and registers defaults.
func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	defaults := map[string]any{
		// Server
		"PORT":                "8080",
		"READ_TIMEOUT":        15 * time.Second,
		"READ_HEADER_TIMEOUT": 10 * time.Second,
		"WRITE_TIMEOUT":       20 * time.Second,
		"IDLE_TIMEOUT":        60 * time.Second,
		"MAX_HEADER_BYTES":    1 << 20,
		"GIN_MODE":            "release",

		// Logging
		"LOG_LEVEL":     "info",
		"LOG_PRETTY":    false,
		"API_BASE_PATH": "/api/v1",

		"SWAGGER_ENABLED": false,

		// Storage
		"DB_DRIVER":         "sqlite",
		"DB_PATH":           "clinic.db",
		"DATABASE_URL":      "",
		"DB_MAX_OPEN_CONNS": 1,

		// Queue engine
		"CLINIC_TIMEZONE":        "UTC",
		"SWEEP_INTERVAL":         5 * time.Minute,
		"ALLOCATION_MAX_RETRIES": 5,
		"PRIORITY_PROFILE":       "",

		// Events
		"REDIS_URL":      "",
		"EVENTS_CHANNEL": "clinic.queue.events",
		"EVENTS_CODEC":   "json",
		"EVENT_BUFFER":   256,

		// Rate limiting
		"RATE_RPS":   5.0,
		"RATE_BURST": 10,

		"CORS_ALLOWED_ORIGINS": "",
		"HSTS_ENABLED":         false,
		"HSTS_MAX_AGE":         180 * 24 * time.Hour,

		// Observability
		"OTEL_ENABLED":                false,
		"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": true,
		"OTEL_SERVICE_NAME":           "clinic-queue",
		"OTEL_TRACES_SAMPLER_ARG":     1.0,
	}
	for k, def := range defaults {
		v.SetDefault(k, def)
		_ = v.BindEnv(k)
	}
	return v
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
