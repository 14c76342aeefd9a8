package middleware

import (
	"context"
	"net/http"

	"github.com/heartlink/onboardgate"
)

// RequireSession resolves the session of every request through provider and
// rejects anonymous requests with 401. A provider failure yields 503.
func RequireSession(provider onboardgate.SessionProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if provider == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sign in required")
				return
			}

			sess, err := provider.Session(r.Context(), r)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "session backend unavailable")
				return
			}
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sign in required")
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
