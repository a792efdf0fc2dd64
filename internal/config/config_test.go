package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults unexpected: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.SwaggerEnabled {
		t.Fatalf("APIBasePath/SwaggerEnabled defaults = %q/%v", cfg.APIBasePath, cfg.SwaggerEnabled)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "clinic.db" || cfg.DB.MaxOpenConns != 1 {
		t.Fatalf("db defaults unexpected: %+v", cfg.DB)
	}
	if cfg.Queue.TimeZone != "UTC" || cfg.Queue.SweepInterval != 5*time.Minute || cfg.Queue.AllocationMaxRetries != 5 {
		t.Fatalf("queue defaults unexpected: %+v", cfg.Queue)
	}
	if cfg.Events.Codec != "json" || cfg.Events.Buffer != 256 || cfg.Events.RedisURL != "" {
		t.Fatalf("events defaults unexpected: %+v", cfg.Events)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "clinic-queue" || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("otel defaults unexpected: %+v", cfg.OTEL)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("Location() = %v, want UTC", cfg.Location())
	}
}

// --- Load overrides + normalization ---

func TestLoad_OverridesAndNormalization(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird")    // normalizes to "release"
	t.Setenv("LOG_LEVEL", "warning") // normalizes to "warn"
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("SWAGGER_ENABLED", "1")
	t.Setenv("DB_DRIVER", "PostgreSQL")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/clinic")
	t.Setenv("DB_MAX_OPEN_CONNS", "8")
	t.Setenv("CLINIC_TIMEZONE", "Europe/Paris")
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("ALLOCATION_MAX_RETRIES", "3")
	t.Setenv("EVENTS_CODEC", "CBOR")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	t.Setenv("HSTS_ENABLED", "true")
	t.Setenv("HSTS_MAX_AGE", "24h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging fields unexpected: %+v", cfg)
	}
	if cfg.DB.Driver != "postgres" || cfg.DB.MaxOpenConns != 8 {
		t.Fatalf("db fields unexpected: %+v", cfg.DB)
	}
	if cfg.Queue.SweepInterval != 90*time.Second || cfg.Queue.AllocationMaxRetries != 3 {
		t.Fatalf("queue fields unexpected: %+v", cfg.Queue)
	}
	if cfg.Location().String() != "Europe/Paris" {
		t.Fatalf("Location() = %v", cfg.Location())
	}
	if cfg.Events.Codec != "cbor" || cfg.Events.RedisURL == "" {
		t.Fatalf("events fields unexpected: %+v", cfg.Events)
	}
	if want := []string{"https://a.com", "http://b"}; !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Fatalf("CORS origins = %v, want %v", cfg.CORS.AllowedOrigins, want)
	}
	if cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("SampleRatio = %v", cfg.OTEL.SampleRatio)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security fields unexpected: %+v", cfg.Security)
	}
}

// --- Load validation errors ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantSub string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad timeout", map[string]string{"READ_TIMEOUT": "-1s"}, "timeouts"},
		{"bad header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"zero conns", map[string]string{"DB_MAX_OPEN_CONNS": "0"}, "DB_MAX_OPEN_CONNS"},
		{"bad tz", map[string]string{"CLINIC_TIMEZONE": "Mars/Olympus"}, "CLINIC_TIMEZONE"},
		{"bad sweep", map[string]string{"SWEEP_INTERVAL": "0s"}, "SWEEP_INTERVAL"},
		{"bad retries", map[string]string{"ALLOCATION_MAX_RETRIES": "0"}, "ALLOCATION_MAX_RETRIES"},
		{"bad codec", map[string]string{"EVENTS_CODEC": "xml"}, "EVENTS_CODEC"},
		{"bad buffer", map[string]string{"EVENT_BUFFER": "0"}, "EVENT_BUFFER"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"zero burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"bad sampler", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("Load() err = %v, want mention of %q", err, tc.wantSub)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		"  ":        "/",
		"api":       "/api",
		"/api/":     "/api",
		"/api/v1//": "/api/v1",
		"/":         "/",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

// --- Profile ---

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return p
}

func TestLoadProfile_EmptyPath(t *testing.T) {
	p, err := LoadProfile("")
	if err != nil {
		t.Fatalf("LoadProfile(\"\") error: %v", err)
	}
	if p.Weights != nil || len(p.Symptoms) != 0 {
		t.Fatalf("expected empty profile, got %+v", p)
	}
}

func TestLoadProfile_Parses(t *testing.T) {
	path := writeProfile(t, `
weights:
  urgency: 0.5
  waiting_time: 0.2
  category: 0.1
  activity: 0.1
  history: 0.1
category_multipliers:
  emergency: 2.5
risk_conditions: [diabetes, asthme]
symptoms:
  - id: chest_pain
    label: Chest pain
    severity: urgent
  - id: rash
    label: Rash
    severity: medium
`)
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile error: %v", err)
	}
	if p.Weights == nil || p.Weights.Urgency != 0.5 || p.Weights.WaitingTime != 0.2 {
		t.Fatalf("weights unexpected: %+v", p.Weights)
	}
	if p.CategoryMultipliers["emergency"] != 2.5 {
		t.Fatalf("category multipliers unexpected: %+v", p.CategoryMultipliers)
	}
	if len(p.RiskConditions) != 2 || len(p.Symptoms) != 2 || p.Symptoms[0].Severity != "urgent" {
		t.Fatalf("lists unexpected: %+v", p)
	}
}

func TestLoadProfile_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "weightz: {}\n",
		"negative weight":  "weights: {urgency: -0.1}\n",
		"bad multiplier":   "category_multipliers: {regular: 0}\n",
		"empty symptom id": "symptoms: [{id: '', severity: urgent}]\n",
		"dup symptom":      "symptoms: [{id: a, severity: high}, {id: a, severity: high}]\n",
		"bad severity":     "symptoms: [{id: a, severity: mild}]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadProfile(writeProfile(t, body)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
