package onboardgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/heartlink/onboardgate/internal/audit"
	"github.com/heartlink/onboardgate/internal/flows"
	"github.com/heartlink/onboardgate/internal/rate"
	"github.com/heartlink/onboardgate/internal/routes"
	"github.com/heartlink/onboardgate/internal/stores"
	"github.com/heartlink/onboardgate/profile"
	"go.uber.org/zap"
)

var errResolveSession = errors.New("resolve session")

// Gate decides, for every navigation, whether the requester may reach the
// page or must first complete an onboarding step.
//
// A Gate is immutable after Builder.Build and safe for concurrent use.
type Gate struct {
	config   Config
	table    *routes.Table
	deps     flows.EvaluateDeps
	sessions SessionProvider
	records  RecordStore

	cache   *stores.ExistenceCache
	limiter *rate.Limiter
	audit   *audit.Dispatcher
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time

	closed atomic.Bool
}

// Evaluate decides on a navigation to path by sess. sess may be nil.
//
// Evaluate never returns an error: when a record lookup fails or times out
// the navigation is allowed with FailedOpen set, and the failure is logged.
func (g *Gate) Evaluate(ctx context.Context, sess *Session, path string) Decision {
	start := g.now()

	p := routes.Normalize(path)
	in := flows.EvaluateInput{Class: g.table.Classify(p)}
	if sess != nil && sess.UserID != "" {
		in.HasSession = true
		in.UserID = sess.UserID
	}

	v := flows.RunEvaluate(ctx, in, g.deps)
	d := g.record(ctx, in.UserID, p, v)

	g.metrics.Observe(MetricEvaluateLatency, g.now().Sub(start))
	return d
}

// Check resolves the session of r and evaluates its path.
func (g *Gate) Check(ctx context.Context, r *http.Request) Decision {
	d, _ := g.CheckRequest(ctx, r)
	return d
}

// CheckRequest is Check that also returns the resolved session. Paths that
// are decided without records (passthrough, API and public) skip session
// resolution and return a nil session.
//
// A session provider failure is handled like a failed lookup: the navigation
// is allowed with FailedOpen set.
func (g *Gate) CheckRequest(ctx context.Context, r *http.Request) (Decision, *Session) {
	p := routes.Normalize(r.URL.Path)

	switch g.table.Classify(p) {
	case routes.Passthrough, routes.API, routes.Public:
		return g.Evaluate(ctx, nil, p), nil
	}

	sess, err := g.sessions.Session(ctx, r)
	if err != nil {
		g.metrics.Inc(MetricSessionBackendError)
		v := flows.Verdict{
			Reason:     ReasonFailOpen,
			FailedOpen: true,
			Err:        fmt.Errorf("%w: %w", errResolveSession, err),
		}
		return g.record(ctx, "", p, v), nil
	}

	return g.Evaluate(ctx, sess, p), sess
}

// State reports the onboarding state of userID. Unlike Evaluate it does not
// fail open: lookup errors are returned.
func (g *Gate) State(ctx context.Context, userID string) (OnboardingState, error) {
	return flows.ResolveState(ctx, g.deps, userID)
}

// Classify returns the classification of path.
func (g *Gate) Classify(path string) Classification {
	return g.table.Classify(path)
}

// Config returns a copy of the gate configuration.
func (g *Gate) Config() Config {
	return cloneConfig(g.config)
}

// CacheTTL is the lifetime of a cached positive lookup, or 0 when the
// existence cache is off.
func (g *Gate) CacheTTL() time.Duration {
	return g.cache.TTL()
}

// Sessions returns the session provider the gate resolves requests with.
func (g *Gate) Sessions() SessionProvider {
	return g.sessions
}

// CreateRecord validates payload, applies the per-user create budget, refuses
// duplicates and writes the record through the record store.
//
// Errors: ErrNoSession, ErrUnknownKind, ErrInvalidPayload (as
// profile.FieldErrors), ErrRateLimited, ErrRecordExists, or a wrapped backend
// error.
func (g *Gate) CreateRecord(ctx context.Context, sess *Session, kind RecordKind, payload map[string]any) error {
	if g.closed.Load() {
		return ErrGateClosed
	}
	if sess == nil || sess.UserID == "" {
		return ErrNoSession
	}
	if _, err := ParseRecordKind(string(kind)); err != nil {
		return err
	}
	userID := sess.UserID

	doc, err := profile.Normalize(string(kind), payload, g.now())
	if err != nil {
		g.metrics.Inc(MetricRecordInvalid)
		g.denied(ctx, sess, kind, err)
		return err
	}

	if err := g.limiter.AllowCreate(ctx, userID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			g.metrics.Inc(MetricRecordRateLimited)
			g.denied(ctx, sess, kind, err)
			return ErrRateLimited
		}
		g.logger.Warn("create rate limiter unavailable",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err),
		)
	}

	exists, err := g.recordExists(ctx, string(kind), userID)
	if err != nil && !isMalformed(err) {
		return fmt.Errorf("check existing %s record: %w", kind, err)
	}
	if exists {
		g.metrics.Inc(MetricRecordDuplicate)
		g.denied(ctx, sess, kind, ErrRecordExists)
		return ErrRecordExists
	}

	if err := g.records.CreateRecord(ctx, kind, userID, doc); err != nil {
		g.logger.Error("record creation failed",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err),
		)
		return fmt.Errorf("create %s record: %w", kind, err)
	}

	g.metrics.Inc(MetricRecordCreated)
	if err := g.cache.Mark(ctx, string(kind), userID); err != nil {
		g.metrics.Inc(MetricCacheError)
		g.logger.Warn("existence cache write failed",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	g.audit.Emit(ctx, audit.Event{
		EventType: audit.EventRecordCreated,
		UserID:    userID,
		SessionID: sess.SessionID,
		RequestID: RequestIDFromContext(ctx),
		Success:   true,
		Metadata:  map[string]string{"kind": string(kind)},
	})
	return nil
}

// MetricsSnapshot returns the current counters and histograms.
func (g *Gate) MetricsSnapshot() MetricsSnapshot {
	return g.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (g *Gate) AuditDropped() uint64 {
	return g.audit.Dropped()
}

// Close stops accepting record writes and flushes the audit dispatcher.
// Evaluate keeps working after Close.
func (g *Gate) Close() error {
	g.closed.Store(true)
	return g.audit.Close()
}

// recordExists consults the existence cache before the record store. Only
// positive answers are cached.
func (g *Gate) recordExists(ctx context.Context, kind, userID string) (bool, error) {
	if g.cache != nil {
		hit, err := g.cache.Has(ctx, kind, userID)
		switch {
		case err != nil:
			g.metrics.Inc(MetricCacheError)
			g.logger.Warn("existence cache read failed",
				zap.String("user_id", userID),
				zap.String("kind", kind),
				zap.Error(err),
			)
		case hit:
			g.metrics.Inc(MetricCacheHit)
			return true, nil
		default:
			g.metrics.Inc(MetricCacheMiss)
		}
	}

	ok, err := g.records.RecordExists(ctx, RecordKind(kind), userID)
	if err != nil {
		if isMalformed(err) {
			g.metrics.Inc(MetricMalformedResponse)
			g.logger.Warn("malformed backend response, treating record as absent",
				zap.String("user_id", userID),
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
		return false, err
	}

	if ok {
		if err := g.cache.Mark(ctx, kind, userID); err != nil {
			g.metrics.Inc(MetricCacheError)
			g.logger.Warn("existence cache write failed",
				zap.String("user_id", userID),
				zap.String("kind", kind),
				zap.Error(err),
			)
		}
	}
	return ok, nil
}

// record turns a verdict into a Decision and reports it to metrics, logs and
// the audit trail.
func (g *Gate) record(ctx context.Context, userID, path string, v flows.Verdict) Decision {
	d := Decision{
		Reason:     v.Reason,
		State:      v.State,
		FailedOpen: v.FailedOpen,
	}
	if v.Redirect {
		d.Action = ActionRedirect
		d.Target = v.Target
	}

	if v.FailedOpen {
		g.metrics.Inc(MetricFailOpen)
		switch {
		case errors.Is(v.Err, ErrLookupTimeout):
			g.metrics.Inc(MetricLookupTimeout)
		case errors.Is(v.Err, errResolveSession):
		default:
			g.metrics.Inc(MetricLookupFailure)
		}

		errText := ""
		if v.Err != nil {
			errText = v.Err.Error()
		}
		g.logger.Error("onboarding check failed, allowing navigation",
			zap.String("user_id", userID),
			zap.String("path", path),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(v.Err),
		)
		g.audit.Emit(ctx, audit.Event{
			EventType: audit.EventFailOpen,
			UserID:    userID,
			RequestID: RequestIDFromContext(ctx),
			Path:      path,
			Reason:    string(v.Reason),
			Success:   false,
			Error:     errText,
		})
	}

	if d.Action != ActionRedirect {
		g.metrics.Inc(MetricDecisionAllow)
		return d
	}

	g.metrics.Inc(MetricDecisionRedirect)
	switch v.Reason {
	case ReasonNoSession:
		g.metrics.Inc(MetricRedirectSignIn)
	case ReasonPhoneMissing:
		g.metrics.Inc(MetricRedirectVerify)
	case ReasonProfileMissing:
		g.metrics.Inc(MetricRedirectProfileCreate)
	case ReasonAlreadyOnboarded:
		g.metrics.Inc(MetricRedirectLanding)
	}

	g.logger.Debug("navigation redirected",
		zap.String("user_id", userID),
		zap.String("path", path),
		zap.String("target", d.Target),
		zap.String("reason", string(d.Reason)),
	)
	g.audit.Emit(ctx, audit.Event{
		EventType: audit.EventRedirect,
		UserID:    userID,
		RequestID: RequestIDFromContext(ctx),
		Path:      path,
		Target:    d.Target,
		Reason:    string(d.Reason),
		Success:   true,
	})
	return d
}

func (g *Gate) denied(ctx context.Context, sess *Session, kind RecordKind, err error) {
	g.audit.Emit(ctx, audit.Event{
		EventType: audit.EventRecordDenied,
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		RequestID: RequestIDFromContext(ctx),
		Success:   false,
		Error:     err.Error(),
		Metadata:  map[string]string{"kind": string(kind)},
	})
}

func isMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}
