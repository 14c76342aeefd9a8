package middleware

import (
	"net/http"
	"strings"

	"github.com/heartlink/onboardgate"
)

// CheckResponse is the JSON body served by CheckHandler.
type CheckResponse struct {
	Action     string `json:"action"`
	Target     string `json:"target,omitempty"`
	State      string `json:"state"`
	Reason     string `json:"reason"`
	FailedOpen bool   `json:"failed_open,omitempty"`
}

// NewCheckResponse renders d for JSON clients.
func NewCheckResponse(d onboardgate.Decision) CheckResponse {
	return CheckResponse{
		Action:     d.Action.String(),
		Target:     d.Target,
		State:      d.State.String(),
		Reason:     string(d.Reason),
		FailedOpen: d.FailedOpen,
	}
}

// CheckHandler answers GET ?path=/some/page with the decision the gate would
// take if the caller navigated there with the same credentials.
func CheckHandler(gate *onboardgate.Gate) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gate == nil {
			writeError(w, http.StatusServiceUnavailable, "GATE_UNAVAILABLE", "gate not configured")
			return
		}

		p := strings.TrimSpace(r.URL.Query().Get("path"))
		if !strings.HasPrefix(p, "/") {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "path must be an absolute path")
			return
		}

		nav := r.Clone(r.Context())
		nav.URL.Path = onboardgate.NormalizePath(p)
		nav.URL.RawPath = ""
		nav.URL.RawQuery = ""

		d := gate.Check(r.Context(), nav)
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, NewCheckResponse(d))
	})
}
