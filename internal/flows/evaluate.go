package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heartlink/onboardgate/internal/routes"
	"golang.org/x/sync/errgroup"
)

// Record kinds understood by the lookups. Values match onboardgate.RecordKind.
const (
	KindPhone   = "phone"
	KindProfile = "profile"
)

// ErrLookupTimeout is returned when an existence lookup exceeds its budget.
var ErrLookupTimeout = errors.New("record lookup timed out")

// Reason explains why a verdict was reached.
type Reason string

const (
	ReasonPassthrough      Reason = "passthrough"
	ReasonAPI              Reason = "api"
	ReasonPublic           Reason = "public"
	ReasonAuthExempt       Reason = "auth_exempt"
	ReasonNoSession        Reason = "no_session"
	ReasonTerminalStep     Reason = "terminal_step"
	ReasonPhoneMissing     Reason = "phone_missing"
	ReasonProfileMissing   Reason = "profile_missing"
	ReasonAlreadyOnboarded Reason = "already_onboarded"
	ReasonOnboarded        Reason = "onboarded"
	ReasonFailOpen         Reason = "fail_open"
)

// State is the onboarding state observed while evaluating. StateUnknown means
// the verdict was reached without looking at the records.
type State uint8

const (
	StateUnknown State = iota
	StateAnonymous
	StatePhoneUnverified
	StateProfileIncomplete
	StateOnboarded
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StatePhoneUnverified:
		return "phone_unverified"
	case StateProfileIncomplete:
		return "profile_incomplete"
	case StateOnboarded:
		return "onboarded"
	default:
		return "unknown"
	}
}

// Targets are the redirect destinations of the gate.
type Targets struct {
	SignIn        string
	Verify        string
	ProfileCreate string
	Landing       string
}

// EvaluateInput is one navigation to decide on.
type EvaluateInput struct {
	Class      routes.Class
	HasSession bool
	UserID     string
}

// EvaluateDeps captures the collaborators of the decision function.
type EvaluateDeps struct {
	Exists         func(ctx context.Context, kind, userID string) (bool, error)
	IsMalformed    func(error) bool
	LookupTimeout  time.Duration
	Targets        Targets
	Now            func() time.Time
	ObserveLatency func(kind string, d time.Duration)
}

// Verdict is the outcome of RunEvaluate. Err is set only when the verdict
// failed open.
type Verdict struct {
	Redirect   bool
	Target     string
	Reason     Reason
	State      State
	FailedOpen bool
	Err        error
}

// RunEvaluate applies the ordered onboarding rules. First match wins:
//
//  1. passthrough, API and public paths are allowed without lookups
//  2. auth-exempt paths are always allowed; without a session every other
//     path goes to sign-in
//  3. terminal steps never redirect to an onboarding step
//  4. gated paths resolve both records concurrently and steer to the first
//     missing step
//
// A failed or timed-out lookup allows the navigation and reports the error.
func RunEvaluate(ctx context.Context, in EvaluateInput, deps EvaluateDeps) Verdict {
	switch in.Class {
	case routes.Passthrough:
		return Verdict{Reason: ReasonPassthrough}
	case routes.API:
		return Verdict{Reason: ReasonAPI}
	case routes.Public:
		return Verdict{Reason: ReasonPublic}
	}

	if !in.HasSession {
		if in.Class == routes.AuthExempt {
			return Verdict{Reason: ReasonAuthExempt, State: StateAnonymous}
		}
		return redirect(deps.Targets.SignIn, ReasonNoSession, StateAnonymous)
	}

	switch in.Class {
	case routes.AuthExempt:
		return Verdict{Reason: ReasonAuthExempt}
	case routes.TerminalVerify:
		return Verdict{Reason: ReasonTerminalStep}
	case routes.TerminalProfileCreate:
		hasProfile, err := lookup(ctx, deps, KindProfile, in.UserID)
		if err != nil {
			return failOpen(err)
		}
		if hasProfile {
			return redirect(deps.Targets.Landing, ReasonAlreadyOnboarded, StateUnknown)
		}
		return Verdict{Reason: ReasonTerminalStep}
	}

	hasPhone, hasProfile, err := lookupBoth(ctx, deps, in.UserID)
	if err != nil {
		return failOpen(err)
	}

	switch {
	case !hasPhone:
		return redirect(deps.Targets.Verify, ReasonPhoneMissing, StatePhoneUnverified)
	case !hasProfile:
		return redirect(deps.Targets.ProfileCreate, ReasonProfileMissing, StateProfileIncomplete)
	default:
		return Verdict{Reason: ReasonOnboarded, State: StateOnboarded}
	}
}

// ResolveState reports the onboarding state of userID. It shares the lookup
// path of RunEvaluate, so it honours the same timeout and malformed-response
// rules, but it does not fail open: errors are returned.
func ResolveState(ctx context.Context, deps EvaluateDeps, userID string) (State, error) {
	if userID == "" {
		return StateAnonymous, nil
	}
	hasPhone, hasProfile, err := lookupBoth(ctx, deps, userID)
	if err != nil {
		return StateUnknown, err
	}
	switch {
	case !hasPhone:
		return StatePhoneUnverified, nil
	case !hasProfile:
		return StateProfileIncomplete, nil
	default:
		return StateOnboarded, nil
	}
}

func redirect(target string, reason Reason, state State) Verdict {
	return Verdict{Redirect: true, Target: target, Reason: reason, State: state}
}

func failOpen(err error) Verdict {
	return Verdict{Reason: ReasonFailOpen, FailedOpen: true, Err: err}
}

func lookupBoth(ctx context.Context, deps EvaluateDeps, userID string) (bool, bool, error) {
	var hasPhone, hasProfile bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ok, err := lookup(gctx, deps, KindPhone, userID)
		hasPhone = ok
		return err
	})
	g.Go(func() error {
		ok, err := lookup(gctx, deps, KindProfile, userID)
		hasProfile = ok
		return err
	})
	if err := g.Wait(); err != nil {
		return false, false, err
	}
	return hasPhone, hasProfile, nil
}

type lookupResult struct {
	ok  bool
	err error
}

// lookup bounds a single existence check by deps.LookupTimeout. The bound
// holds even when the store ignores ctx: the caller stops waiting and the
// store goroutine finishes on its own into a buffered channel.
func lookup(ctx context.Context, deps EvaluateDeps, kind, userID string) (bool, error) {
	if deps.Exists == nil {
		return false, fmt.Errorf("%s lookup: no record store", kind)
	}

	lctx := ctx
	cancel := func() {}
	if deps.LookupTimeout > 0 {
		lctx, cancel = context.WithTimeout(ctx, deps.LookupTimeout)
	}
	defer cancel()

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	start := now()

	done := make(chan lookupResult, 1)
	go func() {
		ok, err := deps.Exists(lctx, kind, userID)
		done <- lookupResult{ok: ok, err: err}
	}()

	var res lookupResult
	select {
	case res = <-done:
	case <-lctx.Done():
		res = lookupResult{err: lctx.Err()}
	}

	if deps.ObserveLatency != nil {
		deps.ObserveLatency(kind, now().Sub(start))
	}

	if res.err == nil {
		return res.ok, nil
	}
	if deps.IsMalformed != nil && deps.IsMalformed(res.err) {
		return false, nil
	}
	if errors.Is(res.err, context.DeadlineExceeded) && errors.Is(lctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return false, fmt.Errorf("%s lookup: %w", kind, ErrLookupTimeout)
	}
	return false, fmt.Errorf("%s lookup: %w", kind, res.err)
}
