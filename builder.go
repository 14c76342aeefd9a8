package onboardgate

import (
	"errors"
	"time"

	"github.com/heartlink/onboardgate/internal/audit"
	"github.com/heartlink/onboardgate/internal/flows"
	"github.com/heartlink/onboardgate/internal/rate"
	"github.com/heartlink/onboardgate/internal/stores"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a Gate. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions SessionProvider
	records  RecordStore

	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the existence cache and the create
// rate limiter. Required when either is enabled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionProvider sets how requests are turned into sessions.
func (b *Builder) WithSessionProvider(sp SessionProvider) *Builder {
	b.sessions = sp
	return b
}

// WithRecordStore sets the backend answering record lookups.
func (b *Builder) WithRecordStore(rs RecordStore) *Builder {
	b.records = rs
	return b
}

// WithBackend sets both the session provider and the record store.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.sessions = backend
	b.records = backend
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns an immutable Gate.
func (b *Builder) Build() (*Gate, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.records == nil {
		return nil, errors.New("record store required")
	}
	if b.sessions == nil {
		return nil, errors.New("session provider required")
	}
	if cfg.needsRedis() && b.redis == nil {
		if cfg.Cache.Enabled {
			return nil, errors.New("Cache requires redis client")
		}
		return nil, errors.New("RateLimit requires redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	g := &Gate{
		config:   cloneConfig(cfg),
		table:    NewRouteTable(cfg.Routes),
		sessions: b.sessions,
		records:  b.records,
		logger:   logger,
		now:      now,
		metrics:  NewMetrics(cfg.Metrics),
	}

	// -------- REDIS STORES --------
	if cfg.Cache.Enabled {
		g.cache = stores.NewExistenceCache(b.redis, cfg.Cache.RedisPrefix, cfg.Cache.TTL)
	}
	if cfg.RateLimit.Enabled {
		g.limiter = rate.New(b.redis, rate.Config{
			Enabled:    true,
			Prefix:     cfg.RateLimit.RedisPrefix,
			MaxCreates: cfg.RateLimit.MaxCreates,
			Window:     cfg.RateLimit.Window,
		})
	}

	// -------- AUDIT --------
	g.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	// -------- DECISION DEPS --------
	g.deps = flows.EvaluateDeps{
		Exists:        g.recordExists,
		IsMalformed:   isMalformed,
		LookupTimeout: cfg.Lookup.Timeout,
		Targets: flows.Targets{
			SignIn:        NormalizePath(cfg.Routes.SignInPath),
			Verify:        NormalizePath(cfg.Routes.VerifyPath),
			ProfileCreate: NormalizePath(cfg.Routes.ProfileCreatePath),
			Landing:       NormalizePath(cfg.Routes.LandingPath),
		},
		Now: now,
		ObserveLatency: func(_ string, d time.Duration) {
			g.metrics.Observe(MetricLookupLatency, d)
		},
	}

	b.built = true

	return g, nil
}
