// Package bootstrap turns a YAML file plus environment overrides into a
// running onboardgate service.
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/heartlink/onboardgate"
)

// Backend kinds accepted in backend.kind / BACKEND_KIND.
const (
	BackendMemory   = "memory"
	BackendStrapi   = "strapi"
	BackendSanity   = "sanity"
	BackendPostgres = "postgres"
)

// Config is the resolved service configuration.
type Config struct {
	HTTPAddr        string
	UpstreamURL     string
	RedisURL        string
	ShutdownTimeout time.Duration

	Log     LogConfig
	Auth    AuthConfig
	Backend BackendConfig
	Kafka   KafkaConfig

	Gate onboardgate.Config
}

// LogConfig selects the zap preset.
type LogConfig struct {
	Development bool
	Level       string
}

// AuthConfig configures access-token verification.
type AuthConfig struct {
	JWTSecret    string
	Issuer       string
	Audience     string
	ProjectRef   string
	AccessCookie string
	Leeway       time.Duration
}

// BackendConfig selects and configures the record store.
type BackendConfig struct {
	Kind string

	StrapiURL   string
	StrapiToken string

	SanityProjectID  string
	SanityDataset    string
	SanityAPIVersion string
	SanityToken      string

	DatabaseURL string
	MaxDBConns  int
	AutoMigrate bool
}

// KafkaConfig enables the Kafka audit sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// configFile mirrors the YAML schema of configs/onboardgate.yaml.
type configFile struct {
	HTTP struct {
		Addr            string `yaml:"addr"`
		ShutdownSeconds int    `yaml:"shutdown_seconds"`
	} `yaml:"http"`
	Upstream struct {
		URL string `yaml:"url"`
	} `yaml:"upstream"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Log struct {
		Development *bool  `yaml:"development"`
		Level       string `yaml:"level"`
	} `yaml:"log"`
	Auth struct {
		Issuer       string `yaml:"issuer"`
		Audience     string `yaml:"audience"`
		ProjectRef   string `yaml:"project_ref"`
		AccessCookie string `yaml:"access_cookie"`
		LeewaySecs   int    `yaml:"leeway_seconds"`
	} `yaml:"auth"`
	Backend struct {
		Kind   string `yaml:"kind"`
		Strapi struct {
			URL string `yaml:"url"`
		} `yaml:"strapi"`
		Sanity struct {
			ProjectID  string `yaml:"project_id"`
			Dataset    string `yaml:"dataset"`
			APIVersion string `yaml:"api_version"`
		} `yaml:"sanity"`
		Postgres struct {
			URL         string `yaml:"url"`
			MaxConns    int    `yaml:"max_conns"`
			AutoMigrate *bool  `yaml:"auto_migrate"`
		} `yaml:"postgres"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers    []string `yaml:"brokers"`
		AuditTopic string   `yaml:"audit_topic"`
	} `yaml:"kafka"`
	Routes struct {
		SignIn              string   `yaml:"sign_in"`
		Verify              string   `yaml:"verify"`
		ProfileCreate       string   `yaml:"profile_create"`
		Landing             string   `yaml:"landing"`
		AuthExempt          []string `yaml:"auth_exempt"`
		PublicExempt        []string `yaml:"public_exempt"`
		PassthroughPrefixes []string `yaml:"passthrough_prefixes"`
		APIPrefixes         []string `yaml:"api_prefixes"`
	} `yaml:"routes"`
	Lookup struct {
		TimeoutMS int `yaml:"timeout_ms"`
	} `yaml:"lookup"`
	Cache struct {
		Enabled    *bool `yaml:"enabled"`
		TTLSeconds int   `yaml:"ttl_seconds"`
	} `yaml:"cache"`
	RateLimit struct {
		Enabled       *bool `yaml:"enabled"`
		MaxCreates    int   `yaml:"max_creates"`
		WindowSeconds int   `yaml:"window_seconds"`
	} `yaml:"rate_limit"`
	Metrics struct {
		Enabled    *bool `yaml:"enabled"`
		Histograms *bool `yaml:"histograms"`
	} `yaml:"metrics"`
}

// LoadConfig resolves configuration in priority order: defaults, then the
// file at path (skipped when it does not exist), then environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		HTTPAddr:        ":8080",
		ShutdownTimeout: 15 * time.Second,
		Log:             LogConfig{Level: "info"},
		Auth: AuthConfig{
			Audience: "authenticated",
			Leeway:   30 * time.Second,
		},
		Backend: BackendConfig{
			Kind:             BackendStrapi,
			SanityDataset:    "production",
			SanityAPIVersion: "2023-05-03",
			MaxDBConns:       10,
		},
		Kafka: KafkaConfig{AuditTopic: "onboarding.audit"},
		Gate:  onboardgate.DefaultConfig(),
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			var f configFile
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
			applyFile(&cfg, &f)
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f *configFile) {
	setString(&cfg.HTTPAddr, f.HTTP.Addr)
	if f.HTTP.ShutdownSeconds > 0 {
		cfg.ShutdownTimeout = time.Duration(f.HTTP.ShutdownSeconds) * time.Second
	}
	setString(&cfg.UpstreamURL, f.Upstream.URL)
	setString(&cfg.RedisURL, f.Redis.URL)
	setBool(&cfg.Log.Development, f.Log.Development)
	setString(&cfg.Log.Level, f.Log.Level)

	setString(&cfg.Auth.Issuer, f.Auth.Issuer)
	setString(&cfg.Auth.Audience, f.Auth.Audience)
	setString(&cfg.Auth.ProjectRef, f.Auth.ProjectRef)
	setString(&cfg.Auth.AccessCookie, f.Auth.AccessCookie)
	if f.Auth.LeewaySecs > 0 {
		cfg.Auth.Leeway = time.Duration(f.Auth.LeewaySecs) * time.Second
	}

	setString(&cfg.Backend.Kind, f.Backend.Kind)
	setString(&cfg.Backend.StrapiURL, f.Backend.Strapi.URL)
	setString(&cfg.Backend.SanityProjectID, f.Backend.Sanity.ProjectID)
	setString(&cfg.Backend.SanityDataset, f.Backend.Sanity.Dataset)
	setString(&cfg.Backend.SanityAPIVersion, f.Backend.Sanity.APIVersion)
	setString(&cfg.Backend.DatabaseURL, f.Backend.Postgres.URL)
	if f.Backend.Postgres.MaxConns > 0 {
		cfg.Backend.MaxDBConns = f.Backend.Postgres.MaxConns
	}
	setBool(&cfg.Backend.AutoMigrate, f.Backend.Postgres.AutoMigrate)

	if len(f.Kafka.Brokers) > 0 {
		cfg.Kafka.Brokers = f.Kafka.Brokers
	}
	setString(&cfg.Kafka.AuditTopic, f.Kafka.AuditTopic)

	routes := &cfg.Gate.Routes
	setString(&routes.SignInPath, f.Routes.SignIn)
	setString(&routes.VerifyPath, f.Routes.Verify)
	setString(&routes.ProfileCreatePath, f.Routes.ProfileCreate)
	setString(&routes.LandingPath, f.Routes.Landing)
	if f.Routes.AuthExempt != nil {
		routes.AuthExempt = f.Routes.AuthExempt
	}
	if f.Routes.PublicExempt != nil {
		routes.PublicExempt = f.Routes.PublicExempt
	}
	if f.Routes.PassthroughPrefixes != nil {
		routes.PassthroughPrefixes = f.Routes.PassthroughPrefixes
	}
	if f.Routes.APIPrefixes != nil {
		routes.APIPrefixes = f.Routes.APIPrefixes
	}

	if f.Lookup.TimeoutMS > 0 {
		cfg.Gate.Lookup.Timeout = time.Duration(f.Lookup.TimeoutMS) * time.Millisecond
	}
	setBool(&cfg.Gate.Cache.Enabled, f.Cache.Enabled)
	if f.Cache.TTLSeconds > 0 {
		cfg.Gate.Cache.TTL = time.Duration(f.Cache.TTLSeconds) * time.Second
	}
	setBool(&cfg.Gate.RateLimit.Enabled, f.RateLimit.Enabled)
	if f.RateLimit.MaxCreates > 0 {
		cfg.Gate.RateLimit.MaxCreates = f.RateLimit.MaxCreates
	}
	if f.RateLimit.WindowSeconds > 0 {
		cfg.Gate.RateLimit.Window = time.Duration(f.RateLimit.WindowSeconds) * time.Second
	}
	setBool(&cfg.Gate.Metrics.Enabled, f.Metrics.Enabled)
	setBool(&cfg.Gate.Metrics.EnableLatencyHistograms, f.Metrics.Histograms)
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.UpstreamURL = envOrDefault("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.Log.Development = envBool("LOG_DEVELOPMENT", cfg.Log.Development)
	cfg.Log.Level = envOrDefault("LOG_LEVEL", cfg.Log.Level)

	cfg.Backend.Kind = strings.ToLower(strings.TrimSpace(envOrDefault("BACKEND_KIND", cfg.Backend.Kind)))
	cfg.Backend.StrapiURL = envOrDefault("STRAPI_URL", cfg.Backend.StrapiURL)
	cfg.Backend.StrapiToken = envOrDefault("STRAPI_API_TOKEN", cfg.Backend.StrapiToken)
	cfg.Backend.SanityProjectID = envOrDefault("SANITY_PROJECT_ID", cfg.Backend.SanityProjectID)
	cfg.Backend.SanityDataset = envOrDefault("SANITY_DATASET", cfg.Backend.SanityDataset)
	cfg.Backend.SanityAPIVersion = envOrDefault("SANITY_API_VERSION", cfg.Backend.SanityAPIVersion)
	cfg.Backend.SanityToken = envOrDefault("SANITY_API_TOKEN", cfg.Backend.SanityToken)
	cfg.Backend.DatabaseURL = envOrDefault("DB_URL", cfg.Backend.DatabaseURL)

	cfg.Auth.JWTSecret = envOrDefault("SUPABASE_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = envOrDefault("SUPABASE_ISSUER", cfg.Auth.Issuer)

	cfg.Kafka.Brokers = envCSV("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.AuditTopic = envOrDefault("KAFKA_AUDIT_TOPIC", cfg.Kafka.AuditTopic)

	timeoutMS := envInt("LOOKUP_TIMEOUT_MS", int(cfg.Gate.Lookup.Timeout/time.Millisecond))
	cfg.Gate.Lookup.Timeout = time.Duration(timeoutMS) * time.Millisecond

	// Without Redis there is nothing to cache in or count against.
	if cfg.RedisURL == "" {
		cfg.Gate.Cache.Enabled = false
		cfg.Gate.RateLimit.Enabled = false
	}
	if len(cfg.Kafka.Brokers) > 0 {
		cfg.Gate.Audit.Enabled = true
	}
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http address is required")
	}
	if c.UpstreamURL != "" {
		u, err := url.Parse(c.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid UPSTREAM_URL %q", c.UpstreamURL)
		}
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("missing SUPABASE_JWT_SECRET")
	}

	switch c.Backend.Kind {
	case BackendMemory:
	case BackendStrapi:
		if c.Backend.StrapiURL == "" {
			return errors.New("missing STRAPI_URL")
		}
	case BackendSanity:
		if c.Backend.SanityProjectID == "" {
			return errors.New("missing SANITY_PROJECT_ID")
		}
	case BackendPostgres:
		if c.Backend.DatabaseURL == "" {
			return errors.New("missing DB_URL")
		}
	default:
		return fmt.Errorf("unknown backend kind %q", c.Backend.Kind)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		return errors.New("missing KAFKA_AUDIT_TOPIC")
	}
	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate config: %w", err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt falls back on empty or invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV drops empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
