package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/heartlink/onboardgate/jwt"
)

// DefaultAccessCookie is the plain cookie some Supabase clients set.
const DefaultAccessCookie = "sb-access-token"

// Verifier parses and verifies an access token.
type Verifier interface {
	Parse(token string) (*jwt.AccessClaims, error)
}

// ResolverConfig controls where tokens are read from.
type ResolverConfig struct {
	// AccessCookie is the plain access-token cookie. Empty means DefaultAccessCookie.
	AccessCookie string
	// ProjectRef narrows the auth-helpers cookie to sb-<ref>-auth-token.
	// Empty accepts any project.
	ProjectRef string
	// DisableBearer ignores the Authorization header.
	DisableBearer bool
}

// Resolver turns a request into a Session. The zero value is not usable; use
// NewResolver.
type Resolver struct {
	verifier    Verifier
	revocations *RevocationStore
	cfg         ResolverConfig
}

// NewResolver builds a Resolver. revocations may be nil.
func NewResolver(verifier Verifier, revocations *RevocationStore, cfg ResolverConfig) (*Resolver, error) {
	if verifier == nil {
		return nil, errors.New("session resolver requires a token verifier")
	}
	if cfg.AccessCookie == "" {
		cfg.AccessCookie = DefaultAccessCookie
	}
	return &Resolver{
		verifier:    verifier,
		revocations: revocations,
		cfg:         cfg,
	}, nil
}

// Resolve returns the session of r, or nil when the request is anonymous.
// Missing, unreadable, invalid, expired and revoked tokens all yield nil with
// no error. An error is returned only when the revocation backend fails.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Session, error) {
	token, ok := r.Token(req)
	if !ok {
		return nil, nil
	}
	return r.ResolveToken(ctx, token)
}

// ResolveToken verifies token and checks revocation.
func (r *Resolver) ResolveToken(ctx context.Context, token string) (*Session, error) {
	claims, err := r.verifier.Parse(token)
	if err != nil {
		return nil, nil
	}

	sess := &Session{
		UserID:    claims.UserID(),
		SessionID: claims.SessionID,
		Email:     claims.Email,
		Phone:     claims.Phone,
		Role:      claims.Role,
	}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}

	if r.revocations != nil {
		revoked, err := r.revocations.IsRevoked(ctx, sess)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, nil
		}
	}
	return sess, nil
}

// Token finds the raw access token of req without verifying it.
func (r *Resolver) Token(req *http.Request) (string, bool) {
	if req == nil {
		return "", false
	}
	if !r.cfg.DisableBearer {
		if token, ok := bearerToken(req.Header.Get("Authorization")); ok {
			return token, true
		}
	}
	if c, err := req.Cookie(r.cfg.AccessCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	if raw, ok := authCookieValue(req, r.cfg.ProjectRef); ok {
		if token, err := accessTokenFromAuthCookie(raw); err == nil {
			return token, true
		}
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
