package httpapi

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"github.com/heartlink/onboardgate"
	"github.com/heartlink/onboardgate/middleware"
)

// Headers set for the upstream. Client-supplied values are always removed.
const (
	headerOnboardingState = "X-Onboarding-State"
	headerUserID          = "X-Onboarding-User"
)

func newUpstreamProxy(upstream *url.URL, logger *zap.Logger) http.Handler {
	if upstream == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "no upstream configured")
		})
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host

			pr.Out.Header.Del(headerOnboardingState)
			pr.Out.Header.Del(headerUserID)
			if id := onboardgate.RequestIDFromContext(pr.In.Context()); id != "" {
				pr.Out.Header.Set(requestIDHeader, id)
			}
			if d, ok := middleware.DecisionFromContext(pr.In.Context()); ok && d.State != onboardgate.StateUnknown {
				pr.Out.Header.Set(headerOnboardingState, d.State.String())
			}
			if sess := middleware.SessionFromContext(pr.In.Context()); sess != nil {
				pr.Out.Header.Set(headerUserID, sess.UserID)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed",
				zap.String("path", r.URL.Path),
				zap.String("request_id", onboardgate.RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "BAD_GATEWAY", "upstream unavailable")
		},
	}
}
