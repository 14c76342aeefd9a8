package flows

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/heartlink/onboardgate/internal/routes"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errMalformed = errors.New("malformed")

type fakeRecords struct {
	mu      sync.Mutex
	phone   map[string]bool
	profile map[string]bool
	errs    map[string]error
	calls   map[string]int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		phone:   map[string]bool{},
		profile: map[string]bool{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeRecords) Exists(_ context.Context, kind, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[kind]++
	if err := f.errs[kind]; err != nil {
		return false, err
	}
	if kind == KindPhone {
		return f.phone[userID], nil
	}
	return f.profile[userID], nil
}

func (f *fakeRecords) Calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

var testTargets = Targets{
	SignIn:        "/sign-in",
	Verify:        "/verify",
	ProfileCreate: "/profile/create",
	Landing:       "/",
}

func testDeps(f *fakeRecords) EvaluateDeps {
	return EvaluateDeps{
		Exists:        f.Exists,
		IsMalformed:   func(err error) bool { return errors.Is(err, errMalformed) },
		LookupTimeout: time.Second,
		Targets:       testTargets,
	}
}

func TestRunEvaluateRules(t *testing.T) {
	tests := []struct {
		name       string
		in         EvaluateInput
		hasPhone   bool
		hasProfile bool
		want       Verdict
	}{
		{
			name: "passthrough without session",
			in:   EvaluateInput{Class: routes.Passthrough},
			want: Verdict{Reason: ReasonPassthrough},
		},
		{
			name: "api without session",
			in:   EvaluateInput{Class: routes.API},
			want: Verdict{Reason: ReasonAPI},
		},
		{
			name: "public without session",
			in:   EvaluateInput{Class: routes.Public},
			want: Verdict{Reason: ReasonPublic},
		},
		{
			name: "auth exempt without session",
			in:   EvaluateInput{Class: routes.AuthExempt},
			want: Verdict{Reason: ReasonAuthExempt, State: StateAnonymous},
		},
		{
			name: "auth exempt with session",
			in:   EvaluateInput{Class: routes.AuthExempt, HasSession: true, UserID: "u1"},
			want: Verdict{Reason: ReasonAuthExempt},
		},
		{
			name: "gated without session",
			in:   EvaluateInput{Class: routes.Gated},
			want: Verdict{Redirect: true, Target: "/sign-in", Reason: ReasonNoSession, State: StateAnonymous},
		},
		{
			name: "terminal profile create without session",
			in:   EvaluateInput{Class: routes.TerminalProfileCreate},
			want: Verdict{Redirect: true, Target: "/sign-in", Reason: ReasonNoSession, State: StateAnonymous},
		},
		{
			name: "no phone on gated path",
			in:   EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"},
			want: Verdict{Redirect: true, Target: "/verify", Reason: ReasonPhoneMissing, State: StatePhoneUnverified},
		},
		{
			name:     "phone without profile on gated path",
			in:       EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"},
			hasPhone: true,
			want:     Verdict{Redirect: true, Target: "/profile/create", Reason: ReasonProfileMissing, State: StateProfileIncomplete},
		},
		{
			name:       "onboarded on gated path",
			in:         EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"},
			hasPhone:   true,
			hasProfile: true,
			want:       Verdict{Reason: ReasonOnboarded, State: StateOnboarded},
		},
		{
			name: "terminal verify never redirects",
			in:   EvaluateInput{Class: routes.TerminalVerify, HasSession: true, UserID: "u1"},
			want: Verdict{Reason: ReasonTerminalStep},
		},
		{
			name: "profile create without phone stays",
			in:   EvaluateInput{Class: routes.TerminalProfileCreate, HasSession: true, UserID: "u1"},
			want: Verdict{Reason: ReasonTerminalStep},
		},
		{
			name:     "profile create without profile stays",
			in:       EvaluateInput{Class: routes.TerminalProfileCreate, HasSession: true, UserID: "u1"},
			hasPhone: true,
			want:     Verdict{Reason: ReasonTerminalStep},
		},
		{
			name:       "profile create when onboarded goes to landing",
			in:         EvaluateInput{Class: routes.TerminalProfileCreate, HasSession: true, UserID: "u1"},
			hasPhone:   true,
			hasProfile: true,
			want:       Verdict{Redirect: true, Target: "/", Reason: ReasonAlreadyOnboarded},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeRecords()
			f.phone["u1"] = tt.hasPhone
			f.profile["u1"] = tt.hasProfile

			got := RunEvaluate(context.Background(), tt.in, testDeps(f))
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateErrors()); diff != "" {
				t.Fatalf("verdict mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunEvaluateSkipsLookupsOffGatedPaths(t *testing.T) {
	for _, class := range []routes.Class{routes.Passthrough, routes.API, routes.Public, routes.AuthExempt, routes.TerminalVerify} {
		f := newFakeRecords()
		RunEvaluate(context.Background(), EvaluateInput{Class: class, HasSession: true, UserID: "u1"}, testDeps(f))

		if f.Calls(KindPhone)+f.Calls(KindProfile) != 0 {
			t.Fatalf("%s: expected no lookups, got phone=%d profile=%d", class, f.Calls(KindPhone), f.Calls(KindProfile))
		}
	}
}

func TestRunEvaluateProfileCreateIssuesOnlyProfileLookup(t *testing.T) {
	f := newFakeRecords()
	RunEvaluate(context.Background(), EvaluateInput{Class: routes.TerminalProfileCreate, HasSession: true, UserID: "u1"}, testDeps(f))

	if f.Calls(KindPhone) != 0 || f.Calls(KindProfile) != 1 {
		t.Fatalf("expected only the profile lookup, got phone=%d profile=%d", f.Calls(KindPhone), f.Calls(KindProfile))
	}
}

func TestRunEvaluateFailsOpenOnLookupError(t *testing.T) {
	backendDown := errors.New("connection refused")

	f := newFakeRecords()
	f.phone["u1"] = true
	f.errs[KindProfile] = backendDown

	got := RunEvaluate(context.Background(), EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"}, testDeps(f))
	if got.Redirect {
		t.Fatalf("expected allow, got redirect to %q", got.Target)
	}
	if !got.FailedOpen || got.Reason != ReasonFailOpen {
		t.Fatalf("expected fail-open verdict, got %+v", got)
	}
	if !errors.Is(got.Err, backendDown) {
		t.Fatalf("expected wrapped backend error, got %v", got.Err)
	}
}

func TestRunEvaluateMalformedMeansAbsent(t *testing.T) {
	f := newFakeRecords()
	f.phone["u1"] = true
	f.errs[KindProfile] = errMalformed

	got := RunEvaluate(context.Background(), EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"}, testDeps(f))
	if !got.Redirect || got.Target != "/profile/create" {
		t.Fatalf("expected redirect to profile create, got %+v", got)
	}
	if got.FailedOpen {
		t.Fatal("malformed response must not fail open")
	}
}

func TestRunEvaluateTimesOutSlowLookup(t *testing.T) {
	deps := EvaluateDeps{
		Exists: func(ctx context.Context, kind, _ string) (bool, error) {
			if kind == KindPhone {
				return true, nil
			}
			<-ctx.Done()
			return false, ctx.Err()
		},
		LookupTimeout: 20 * time.Millisecond,
		Targets:       testTargets,
	}

	start := time.Now()
	got := RunEvaluate(context.Background(), EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"}, deps)
	if time.Since(start) > time.Second {
		t.Fatalf("lookup was not bounded: took %s", time.Since(start))
	}
	if !got.FailedOpen || !errors.Is(got.Err, ErrLookupTimeout) {
		t.Fatalf("expected fail-open with timeout, got %+v", got)
	}
}

func TestRunEvaluateTimeoutHoldsWhenStoreIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	deps := EvaluateDeps{
		Exists: func(context.Context, string, string) (bool, error) {
			<-release
			return true, nil
		},
		LookupTimeout: 20 * time.Millisecond,
		Targets:       testTargets,
	}

	got := RunEvaluate(context.Background(), EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"}, deps)
	if !got.FailedOpen || !errors.Is(got.Err, ErrLookupTimeout) {
		t.Fatalf("expected fail-open with timeout, got %+v", got)
	}
}

func TestRunEvaluateLookupsRunConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	barrier := make(chan struct{})
	var once sync.Once

	deps := EvaluateDeps{
		Exists: func(ctx context.Context, _, _ string) (bool, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			if n == 2 {
				once.Do(func() { close(barrier) })
			}
			select {
			case <-barrier:
				return true, nil
			case <-ctx.Done():
				return false, ctx.Err()
			}
		},
		LookupTimeout: time.Second,
		Targets:       testTargets,
	}

	got := RunEvaluate(context.Background(), EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"}, deps)
	if got.FailedOpen {
		t.Fatalf("lookups did not overlap: %v", got.Err)
	}
	if peak.Load() != 2 {
		t.Fatalf("expected both lookups in flight, peak=%d", peak.Load())
	}
}

func TestRunEvaluateIdempotent(t *testing.T) {
	f := newFakeRecords()
	f.phone["u1"] = true

	in := EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"}
	first := RunEvaluate(context.Background(), in, testDeps(f))
	second := RunEvaluate(context.Background(), in, testDeps(f))

	if diff := cmp.Diff(first, second, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("decision changed between evaluations (-first +second):\n%s", diff)
	}
}

func TestRunEvaluateObservesLatencyPerLookup(t *testing.T) {
	f := newFakeRecords()
	f.phone["u1"] = true
	f.profile["u1"] = true

	var mu sync.Mutex
	seen := map[string]int{}
	deps := testDeps(f)
	deps.ObserveLatency = func(kind string, _ time.Duration) {
		mu.Lock()
		seen[kind]++
		mu.Unlock()
	}

	RunEvaluate(context.Background(), EvaluateInput{Class: routes.Gated, HasSession: true, UserID: "u1"}, deps)

	if diff := cmp.Diff(map[string]int{KindPhone: 1, KindProfile: 1}, seen); diff != "" {
		t.Fatalf("latency observations mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveState(t *testing.T) {
	f := newFakeRecords()
	deps := testDeps(f)

	state, err := ResolveState(context.Background(), deps, "")
	if err != nil || state != StateAnonymous {
		t.Fatalf("expected anonymous, got %s err=%v", state, err)
	}

	state, _ = ResolveState(context.Background(), deps, "u1")
	if state != StatePhoneUnverified {
		t.Fatalf("expected phone_unverified, got %s", state)
	}

	f.phone["u1"] = true
	state, _ = ResolveState(context.Background(), deps, "u1")
	if state != StateProfileIncomplete {
		t.Fatalf("expected profile_incomplete, got %s", state)
	}

	f.profile["u1"] = true
	state, _ = ResolveState(context.Background(), deps, "u1")
	if state != StateOnboarded {
		t.Fatalf("expected onboarded, got %s", state)
	}

	f.errs[KindPhone] = errors.New("boom")
	if _, err := ResolveState(context.Background(), deps, "u1"); err == nil {
		t.Fatal("expected error to surface from ResolveState")
	}
}
