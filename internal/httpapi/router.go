// Package httpapi is the HTTP surface of the onboardgate service: the JSON
// endpoints used by clients and a catch-all that gates navigation and
// forwards allowed requests to the web application.
package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/heartlink/onboardgate"
	"github.com/heartlink/onboardgate/middleware"
)

// OpsPrefix namespaces the operational endpoints so that the fronted
// application keeps its own /healthz and /metrics.
const OpsPrefix = "/_onboardgate"

// Revoker records signed-out sessions. session.RevocationStore implements it.
type Revoker interface {
	Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
}

// Options configures the router.
type Options struct {
	Gate *onboardgate.Gate
	// Upstream receives every allowed navigation. Without it allowed
	// navigations are answered with 404.
	Upstream *url.URL
	// Metrics is mounted on OpsPrefix+"/metrics" when set.
	Metrics http.Handler
	// Ready backs OpsPrefix+"/readyz". Nil means always ready.
	Ready func(context.Context) error
	// Revoker backs POST /api/onboarding/sign-out. Without it sign-out
	// answers 503.
	Revoker Revoker
	Logger  *zap.Logger
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	gate    *onboardgate.Gate
	ready   func(context.Context) error
	revoker Revoker
	logger  *zap.Logger
}

// NewRouter registers the routes and the middleware stack.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{gate: opts.Gate, ready: opts.Ready, revoker: opts.Revoker, logger: logger}
	gated := middleware.Gate(opts.Gate)(newUpstreamProxy(opts.Upstream, logger))

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Use(loggingMiddleware(logger))

	r.Route(OpsPrefix, func(r chi.Router) {
		r.Get("/healthz", h.healthz)
		r.Get("/readyz", h.readyz)
		if opts.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", opts.Metrics)
		}
	})

	var sessions onboardgate.SessionProvider
	if opts.Gate != nil {
		sessions = opts.Gate.Sessions()
	}

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/onboarding/check", middleware.CheckHandler(opts.Gate))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(sessions))
			r.Get("/onboarding/state", h.state)
			r.Post("/onboarding/sign-out", h.signOut)
			r.Post("/records/{kind}", h.createRecord)
		})

		// The rest of /api belongs to the application.
		r.Handle("/*", gated)
	})

	r.Handle("/*", gated)

	return r
}
