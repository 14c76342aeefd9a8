package onboardgate

import (
	"context"
	"net/http"

	"github.com/heartlink/onboardgate/internal/flows"
	"github.com/heartlink/onboardgate/internal/routes"
	"github.com/heartlink/onboardgate/session"
)

// Session is the read-only identity behind a request. A nil *Session means
// the request is anonymous.
type Session = session.Session

// RecordKind names one of the onboarding records.
type RecordKind string

const (
	// RecordPhone is the phone verification record.
	RecordPhone RecordKind = flows.KindPhone
	// RecordProfile is the dating profile record.
	RecordProfile RecordKind = flows.KindProfile
)

// ParseRecordKind maps a URL or config value onto a RecordKind.
func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(s) {
	case RecordPhone, RecordProfile:
		return RecordKind(s), nil
	default:
		return "", ErrUnknownKind
	}
}

// Classification is the gate classification of a request path.
type Classification = routes.Class

const (
	ClassGated          = routes.Gated
	ClassPassthrough    = routes.Passthrough
	ClassAPI            = routes.API
	ClassPublicExempt   = routes.Public
	ClassAuthExempt     = routes.AuthExempt
	ClassTerminalVerify = routes.TerminalVerify
	// ClassTerminal is the profile creation step. /verify is normally public
	// and only falls back to ClassTerminalVerify when it is not.
	ClassTerminal = routes.TerminalProfileCreate
)

// RouteTable classifies request paths.
type RouteTable = routes.Table

// NewRouteTable builds the route table described by cfg.
func NewRouteTable(cfg RoutesConfig) *RouteTable {
	return routes.NewTable(routes.Config{
		VerifyPath:          cfg.VerifyPath,
		ProfileCreatePath:   cfg.ProfileCreatePath,
		AuthExempt:          cfg.AuthExempt,
		PublicExempt:        cfg.PublicExempt,
		PassthroughPrefixes: cfg.PassthroughPrefixes,
		APIPrefixes:         cfg.APIPrefixes,
	})
}

// NormalizePath cleans a request path the way the gate compares it.
func NormalizePath(p string) string {
	return routes.Normalize(p)
}

// OnboardingState is where a user stands in the onboarding sequence.
type OnboardingState = flows.State

const (
	StateUnknown           = flows.StateUnknown
	StateAnonymous         = flows.StateAnonymous
	StatePhoneUnverified   = flows.StatePhoneUnverified
	StateProfileIncomplete = flows.StateProfileIncomplete
	StateOnboarded         = flows.StateOnboarded
)

// Reason explains a Decision.
type Reason = flows.Reason

const (
	ReasonPassthrough      = flows.ReasonPassthrough
	ReasonAPI              = flows.ReasonAPI
	ReasonPublic           = flows.ReasonPublic
	ReasonAuthExempt       = flows.ReasonAuthExempt
	ReasonNoSession        = flows.ReasonNoSession
	ReasonTerminalStep     = flows.ReasonTerminalStep
	ReasonPhoneMissing     = flows.ReasonPhoneMissing
	ReasonProfileMissing   = flows.ReasonProfileMissing
	ReasonAlreadyOnboarded = flows.ReasonAlreadyOnboarded
	ReasonOnboarded        = flows.ReasonOnboarded
	ReasonFailOpen         = flows.ReasonFailOpen
)

// Action is what the caller must do with a navigation.
type Action uint8

const (
	// ActionAllow lets the navigation through.
	ActionAllow Action = iota
	// ActionRedirect sends the navigation to Decision.Target.
	ActionRedirect
)

func (a Action) String() string {
	if a == ActionRedirect {
		return "redirect"
	}
	return "allow"
}

// MarshalText renders the action as "allow" or "redirect".
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Decision is the gate's answer for one navigation.
//
// Target is set only for ActionRedirect. State is StateUnknown when the
// decision was reached without record lookups. FailedOpen marks an allow that
// was forced by a failed or timed-out lookup.
type Decision struct {
	Action     Action
	Target     string
	Reason     Reason
	State      OnboardingState
	FailedOpen bool
}

// Redirect reports whether the decision is a redirect.
func (d Decision) Redirect() bool {
	return d.Action == ActionRedirect
}

// SessionProvider resolves the session of an incoming request.
//
// Implementations return (nil, nil) for anonymous requests, including
// requests carrying an invalid or revoked token. An error means the session
// could not be determined at all.
type SessionProvider interface {
	Session(ctx context.Context, r *http.Request) (*Session, error)
}

// SessionProviderFunc adapts a function to SessionProvider.
type SessionProviderFunc func(ctx context.Context, r *http.Request) (*Session, error)

// Session calls f.
func (f SessionProviderFunc) Session(ctx context.Context, r *http.Request) (*Session, error) {
	return f(ctx, r)
}

// RecordStore answers existence queries for onboarding records and creates
// them. It is implemented by the backend adapters.
//
// RecordExists returns an error wrapping ErrMalformedResponse when the
// backend answered with an unexpected body.
type RecordStore interface {
	RecordExists(ctx context.Context, kind RecordKind, userID string) (bool, error)
	CreateRecord(ctx context.Context, kind RecordKind, userID string, payload map[string]any) error
}

// Backend is the complete collaborator surface of the gate.
type Backend interface {
	SessionProvider
	RecordStore
}

type composedBackend struct {
	SessionProvider
	RecordStore
}

// Compose joins a session provider and a record store into a Backend.
func Compose(sessions SessionProvider, records RecordStore) Backend {
	return composedBackend{SessionProvider: sessions, RecordStore: records}
}

// ResolverProvider adapts a session.Resolver to SessionProvider.
func ResolverProvider(r *session.Resolver) SessionProvider {
	return SessionProviderFunc(r.Resolve)
}
