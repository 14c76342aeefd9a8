package routes

import (
	"path"
	"strings"
)

// Class is the gate classification of a request path.
type Class uint8

const (
	// Gated paths run the full onboarding rule set. Unclassified paths land here.
	Gated Class = iota
	// Passthrough paths are static assets or framework internals. No lookups.
	Passthrough
	// API paths are API or internal RPC prefixes.
	API
	// Public paths are reachable regardless of session state.
	Public
	// AuthExempt paths are reachable without a session.
	AuthExempt
	// TerminalVerify is the phone verification step when it is not already public.
	TerminalVerify
	// TerminalProfileCreate is the profile creation step.
	TerminalProfileCreate
)

func (c Class) String() string {
	switch c {
	case Gated:
		return "gated"
	case Passthrough:
		return "passthrough"
	case API:
		return "api"
	case Public:
		return "public"
	case AuthExempt:
		return "auth_exempt"
	case TerminalVerify:
		return "terminal_verify"
	case TerminalProfileCreate:
		return "terminal_profile_create"
	default:
		return "unknown"
	}
}

// Config is the static route policy.
type Config struct {
	VerifyPath          string
	ProfileCreatePath   string
	AuthExempt          []string
	PublicExempt        []string
	PassthroughPrefixes []string
	APIPrefixes         []string
}

// Table classifies normalized paths. It is immutable once built.
type Table struct {
	verify        string
	profileCreate string
	authExempt    map[string]struct{}
	publicExempt  map[string]struct{}
	passthrough   []string
	api           []string
}

// NewTable builds a Table from cfg. Paths are normalized on the way in.
func NewTable(cfg Config) *Table {
	t := &Table{
		verify:        normalizeOptional(cfg.VerifyPath),
		profileCreate: normalizeOptional(cfg.ProfileCreatePath),
		authExempt:    make(map[string]struct{}, len(cfg.AuthExempt)),
		publicExempt:  make(map[string]struct{}, len(cfg.PublicExempt)),
		passthrough:   normalizeAll(cfg.PassthroughPrefixes),
		api:           normalizeAll(cfg.APIPrefixes),
	}
	for _, p := range normalizeAll(cfg.AuthExempt) {
		t.authExempt[p] = struct{}{}
	}
	for _, p := range normalizeAll(cfg.PublicExempt) {
		t.publicExempt[p] = struct{}{}
	}
	return t
}

// Classify returns the class of p. The order mirrors the gate's rule order:
// passthrough, API, public, auth-exempt, terminal steps, then gated.
func (t *Table) Classify(p string) Class {
	p = Normalize(p)

	if hasAnyPrefix(p, t.passthrough) {
		return Passthrough
	}
	if hasAnyPrefix(p, t.api) {
		return API
	}
	if _, ok := t.publicExempt[p]; ok {
		return Public
	}
	if _, ok := t.authExempt[p]; ok {
		return AuthExempt
	}
	if p == t.verify {
		return TerminalVerify
	}
	if p == t.profileCreate {
		return TerminalProfileCreate
	}
	return Gated
}

// Normalize cleans a request path: query and fragment dropped, dot segments
// resolved, a single leading slash, no trailing slash except for the root.
func Normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func normalizeOptional(p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	return Normalize(p)
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, Normalize(p))
	}
	return out
}

// hasAnyPrefix is segment aware: "/api" matches "/api" and "/api/x" but not
// "/apiary". A prefix containing a dot (a file such as "/favicon.ico") only
// matches exactly.
func hasAnyPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix == "/" {
			return true
		}
		if p == prefix {
			return true
		}
		if strings.Contains(path.Base(prefix), ".") {
			continue
		}
		if strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
