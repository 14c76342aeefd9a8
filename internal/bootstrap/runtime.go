package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/heartlink/onboardgate"
	"github.com/heartlink/onboardgate/auditsink/kafkasink"
	"github.com/heartlink/onboardgate/backend/memory"
	"github.com/heartlink/onboardgate/backend/postgres"
	"github.com/heartlink/onboardgate/backend/sanity"
	"github.com/heartlink/onboardgate/backend/strapi"
	"github.com/heartlink/onboardgate/internal/httpapi"
	"github.com/heartlink/onboardgate/jwt"
	"github.com/heartlink/onboardgate/metrics/export/prometheus"
	"github.com/heartlink/onboardgate/session"
)

const (
	// revocationPrefix namespaces signed-out sessions in Redis.
	revocationPrefix = "og"
	// revocationMaxTTL bounds revocation entries; it covers the Supabase
	// access-token lifetime.
	revocationMaxTTL = 24 * time.Hour
)

// Runtime owns the gate, its collaborators and the HTTP server.
type Runtime struct {
	cfg     Config
	logger  *zap.Logger
	gate        *onboardgate.Gate
	redis       redis.UniversalClient
	revocations *session.RevocationStore
	handler     http.Handler
	closers []func() error
}

// NewLogger builds the zap logger selected by cfg.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// NewTokenManager builds the access-token verifier for Supabase HS256 tokens.
func NewTokenManager(cfg AuthConfig) (*jwt.Manager, error) {
	return jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		Secret:        []byte(cfg.JWTSecret),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
	})
}

// NewRecordStore opens the backend selected by cfg.Kind. The returned close
// function is never nil.
func NewRecordStore(ctx context.Context, cfg BackendConfig) (onboardgate.RecordStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case BackendMemory:
		return memory.New(), noop, nil
	case BackendStrapi:
		c, err := strapi.New(strapi.Config{BaseURL: cfg.StrapiURL, APIToken: cfg.StrapiToken})
		if err != nil {
			return nil, nil, err
		}
		return c, noop, nil
	case BackendSanity:
		c, err := sanity.New(sanity.Config{
			ProjectID:  cfg.SanityProjectID,
			Dataset:    cfg.SanityDataset,
			APIVersion: cfg.SanityAPIVersion,
			Token:      cfg.SanityToken,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, noop, nil
	case BackendPostgres:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("gorm sql db: %w", err)
		}
		store := postgres.New(db)
		if cfg.AutoMigrate {
			if err := store.AutoMigrate(ctx); err != nil {
				_ = sqlDB.Close()
				return nil, nil, err
			}
		}
		return store, sqlDB.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
}

// OpenRedis parses url and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = client.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// NewRevocationStore returns the store the session resolver reads and the
// sign-out endpoint writes.
func NewRevocationStore(client redis.UniversalClient) *session.RevocationStore {
	return session.NewRevocationStore(client, revocationPrefix, revocationMaxTTL)
}

// NewRuntime connects every dependency named in cfg and builds the gate.
func NewRuntime(ctx context.Context, cfg Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{cfg: cfg, logger: logger}

	if cfg.RedisURL != "" {
		client, err := OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rt.redis = client
		rt.closers = append(rt.closers, client.Close)
	} else {
		logger.Warn("redis not configured; existence cache, create rate limit and session revocation are off")
	}

	tokens, err := NewTokenManager(cfg.Auth)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init token verifier: %w", err)
	}
	if rt.redis != nil {
		rt.revocations = NewRevocationStore(rt.redis)
	}
	resolver, err := session.NewResolver(tokens, rt.revocations, session.ResolverConfig{
		AccessCookie: cfg.Auth.AccessCookie,
		ProjectRef:   cfg.Auth.ProjectRef,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	records, closeRecords, err := NewRecordStore(ctx, cfg.Backend)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend.Kind, err)
	}
	rt.closers = append(rt.closers, closeRecords)

	b := onboardgate.New().
		WithConfig(cfg.Gate).
		WithBackend(onboardgate.Compose(onboardgate.ResolverProvider(resolver), records)).
		WithLogger(logger)
	if rt.redis != nil {
		b.WithRedis(rt.redis)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafkasink.New(kafkasink.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AuditTopic,
			Logger:  logger.Named("audit"),
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		b.WithAuditSink(sink)
	}

	gate, err := b.Build()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build gate: %w", err)
	}
	rt.gate = gate

	var upstream *url.URL
	if cfg.UpstreamURL != "" {
		upstream, err = url.Parse(cfg.UpstreamURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("parse UPSTREAM_URL: %w", err)
		}
	}

	opts := httpapi.Options{
		Gate:     gate,
		Upstream: upstream,
		Metrics:  prometheus.NewPrometheusExporter(gate).Handler(),
		Ready:    rt.ready,
		Logger:   logger,
	}
	if rt.revocations != nil {
		opts.Revoker = rt.revocations
	}
	rt.handler = httpapi.NewRouter(opts)

	logger.Info("onboardgate runtime ready",
		zap.String("backend", cfg.Backend.Kind),
		zap.Bool("cache", gate.CacheTTL() > 0),
		zap.Duration("cache_ttl", gate.CacheTTL()),
		zap.Bool("rate_limit", cfg.Gate.RateLimit.Enabled),
		zap.Bool("audit", cfg.Gate.Audit.Enabled),
		zap.String("upstream", cfg.UpstreamURL),
	)
	return rt, nil
}

// Gate returns the configured gate.
func (rt *Runtime) Gate() *onboardgate.Gate { return rt.gate }

// Revocations returns the revocation store, or nil without Redis.
func (rt *Runtime) Revocations() *session.RevocationStore { return rt.revocations }

// Handler returns the HTTP router.
func (rt *Runtime) Handler() http.Handler { return rt.handler }

func (rt *Runtime) ready(ctx context.Context) error {
	if rt.redis == nil {
		return nil
	}
	return rt.redis.Ping(ctx).Err()
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (rt *Runtime) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              rt.cfg.HTTPAddr,
		Handler:           rt.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("http server listening", zap.String("addr", rt.cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
	defer cancel()
	rt.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close releases the gate, the backend and Redis, in that order.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.gate != nil {
		errs = append(errs, rt.gate.Close())
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
