package onboardgate

import (
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "relative target",
			mutate: func(c *Config) {
				c.Routes.VerifyPath = "verify"
			},
			wantValid: false,
		},
		{
			name: "sign-in gated would loop",
			mutate: func(c *Config) {
				c.Routes.AuthExempt = []string{"/callback"}
			},
			wantValid: false,
		},
		{
			name: "sign-in public is fine",
			mutate: func(c *Config) {
				c.Routes.AuthExempt = nil
				c.Routes.PublicExempt = append(c.Routes.PublicExempt, "/sign-in")
			},
			wantValid: true,
		},
		{
			name: "landing equals profile create",
			mutate: func(c *Config) {
				c.Routes.LandingPath = "/profile/create/"
			},
			wantValid: false,
		},
		{
			name: "verify equals profile create",
			mutate: func(c *Config) {
				c.Routes.VerifyPath = "/profile/create"
			},
			wantValid: false,
		},
		{
			name: "profile create under api prefix",
			mutate: func(c *Config) {
				c.Routes.ProfileCreatePath = "/api/profile/create"
			},
			wantValid: false,
		},
		{
			name: "zero lookup timeout",
			mutate: func(c *Config) {
				c.Lookup.Timeout = 0
			},
			wantValid: false,
		},
		{
			name: "huge lookup timeout",
			mutate: func(c *Config) {
				c.Lookup.Timeout = time.Minute
			},
			wantValid: false,
		},
		{
			name: "cache without ttl",
			mutate: func(c *Config) {
				c.Cache.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "disabled cache ignores ttl",
			mutate: func(c *Config) {
				c.Cache.Enabled = false
				c.Cache.TTL = 0
			},
			wantValid: true,
		},
		{
			name: "rate limit without budget",
			mutate: func(c *Config) {
				c.RateLimit.MaxCreates = 0
			},
			wantValid: false,
		},
		{
			name: "rate limit blank prefix",
			mutate: func(c *Config) {
				c.RateLimit.RedisPrefix = "  "
			},
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolatesSlices(t *testing.T) {
	cfg := DefaultConfig()
	clone := cloneConfig(cfg)

	clone.Routes.AuthExempt[0] = "/changed"
	clone.Routes.PublicExempt = append(clone.Routes.PublicExempt, "/extra")

	if cfg.Routes.AuthExempt[0] != "/sign-in" {
		t.Fatalf("clone shares AuthExempt with original: %v", cfg.Routes.AuthExempt)
	}
	for _, p := range cfg.Routes.PublicExempt {
		if p == "/extra" {
			t.Fatal("clone shares PublicExempt with original")
		}
	}
}

func TestGateConfigIsACopy(t *testing.T) {
	g := buildTestGate(t, testConfig(), newFakeStore())

	cfg := g.Config()
	cfg.Routes.PublicExempt[0] = "/dashboard"

	if d := g.Evaluate(t.Context(), nil, "/dashboard"); d.Target != "/sign-in" {
		t.Fatalf("mutating a returned config changed the gate: %+v", d)
	}
}
