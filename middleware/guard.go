package middleware

import (
	"context"
	"net/http"

	"github.com/heartlink/onboardgate"
)

type decisionContextKey struct{}
type sessionContextKey struct{}

// DecisionFromContext returns the decision stored by Gate.
func DecisionFromContext(ctx context.Context) (onboardgate.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(onboardgate.Decision)
	return d, ok
}

// SessionFromContext returns the session stored by Gate or RequireSession.
// It is nil for anonymous requests.
func SessionFromContext(ctx context.Context) *onboardgate.Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*onboardgate.Session)
	return sess
}

// Gate evaluates every request with gate. Redirect decisions are answered
// with 307 to the target path. Allowed requests reach next with the decision
// and the session in the context. A nil gate lets everything through.
func Gate(gate *onboardgate.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gate == nil {
				next.ServeHTTP(w, r)
				return
			}

			d, sess := gate.CheckRequest(r.Context(), r)
			if d.Redirect() {
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, d.Target, http.StatusTemporaryRedirect)
				return
			}

			ctx := context.WithValue(r.Context(), decisionContextKey{}, d)
			if sess != nil {
				ctx = context.WithValue(ctx, sessionContextKey{}, sess)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
