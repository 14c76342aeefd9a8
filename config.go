package onboardgate

import (
	"errors"
	"strings"
	"time"

	"github.com/heartlink/onboardgate/internal/routes"
)

// Config is the complete gate configuration. Start from DefaultConfig and
// override what differs.
type Config struct {
	Routes    RoutesConfig
	Lookup    LookupConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig holds the route policy and the redirect targets.
//
// Paths are exact matches after normalization. Prefixes are segment aware:
// "/api" covers "/api/x" but not "/apiary".
type RoutesConfig struct {
	SignInPath        string
	VerifyPath        string
	ProfileCreatePath string
	LandingPath       string

	AuthExempt          []string
	PublicExempt        []string
	PassthroughPrefixes []string
	APIPrefixes         []string
}

/*
====================================
LOOKUP CONFIG
====================================
*/

// LookupConfig bounds each record existence lookup.
type LookupConfig struct {
	Timeout time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig controls the Redis cache of positive existence results.
type CacheConfig struct {
	Enabled     bool
	RedisPrefix string
	TTL         time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig caps record creations per user and window.
type RateLimitConfig struct {
	Enabled     bool
	RedisPrefix string
	MaxCreates  int
	Window      time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by onboardgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by onboardgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// Marketing pages of the public route group.
var defaultMarketingPages = []string{
	"/about",
	"/faqs",
	"/how-it-works",
	"/privacy-policy",
	"/refund-policy",
	"/terms",
}

// DefaultConfig returns the configuration the web client ships with.
func DefaultConfig() Config {
	return Config{
		Routes: RoutesConfig{
			SignInPath:          "/sign-in",
			VerifyPath:          "/verify",
			ProfileCreatePath:   "/profile/create",
			LandingPath:         "/",
			AuthExempt:          []string{"/sign-in", "/callback"},
			PublicExempt:        append([]string{"/verify"}, defaultMarketingPages...),
			PassthroughPrefixes: []string{"/_next", "/static", "/favicon.ico"},
			APIPrefixes:         []string{"/api", "/trpc"},
		},
		Lookup: LookupConfig{
			Timeout: 3 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:     true,
			RedisPrefix: "og",
			TTL:         10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			RedisPrefix: "og",
			MaxCreates:  5,
			Window:      10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Routes.AuthExempt = cloneStrings(cfg.Routes.AuthExempt)
	out.Routes.PublicExempt = cloneStrings(cfg.Routes.PublicExempt)
	out.Routes.PassthroughPrefixes = cloneStrings(cfg.Routes.PassthroughPrefixes)
	out.Routes.APIPrefixes = cloneStrings(cfg.Routes.APIPrefixes)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations that could loop a browser or that leave a
// redirect target undefined.
func (c *Config) Validate() error {
	// Routes
	targets := []struct{ name, path string }{
		{"SignInPath", c.Routes.SignInPath},
		{"VerifyPath", c.Routes.VerifyPath},
		{"ProfileCreatePath", c.Routes.ProfileCreatePath},
		{"LandingPath", c.Routes.LandingPath},
	}
	for _, t := range targets {
		if !strings.HasPrefix(t.path, "/") {
			return errors.New("Routes " + t.name + " must be an absolute path")
		}
	}

	table := NewRouteTable(c.Routes)
	switch table.Classify(c.Routes.SignInPath) {
	case routes.AuthExempt, routes.Public, routes.Passthrough:
	default:
		return errors.New("Routes SignInPath must be auth-exempt or public")
	}
	if NormalizePath(c.Routes.LandingPath) == NormalizePath(c.Routes.ProfileCreatePath) {
		return errors.New("Routes LandingPath must differ from ProfileCreatePath")
	}
	if NormalizePath(c.Routes.VerifyPath) == NormalizePath(c.Routes.ProfileCreatePath) {
		return errors.New("Routes VerifyPath must differ from ProfileCreatePath")
	}
	if table.Classify(c.Routes.ProfileCreatePath) != routes.TerminalProfileCreate {
		return errors.New("Routes ProfileCreatePath must not be exempt or prefixed")
	}

	// Lookup
	if c.Lookup.Timeout <= 0 {
		return errors.New("Lookup Timeout must be > 0")
	}
	if c.Lookup.Timeout > 30*time.Second {
		return errors.New("Lookup Timeout must be <= 30s")
	}

	// Cache
	if c.Cache.Enabled {
		if strings.TrimSpace(c.Cache.RedisPrefix) == "" {
			return errors.New("Cache RedisPrefix must not be empty")
		}
		if c.Cache.TTL <= 0 {
			return errors.New("Cache TTL must be > 0")
		}
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if strings.TrimSpace(c.RateLimit.RedisPrefix) == "" {
			return errors.New("RateLimit RedisPrefix must not be empty")
		}
		if c.RateLimit.MaxCreates <= 0 {
			return errors.New("RateLimit MaxCreates must be > 0")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

// needsRedis reports whether any enabled component is Redis backed.
func (c *Config) needsRedis() bool {
	return c.Cache.Enabled || c.RateLimit.Enabled
}
