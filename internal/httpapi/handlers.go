package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/heartlink/onboardgate"
	"github.com/heartlink/onboardgate/middleware"
)

const maxRecordBytes = 64 << 10

type stateResponse struct {
	UserID string `json:"user_id"`
	State  string `json:"state"`
	Next   string `json:"next"`
}

type createdResponse struct {
	Status string `json:"status"`
	Kind   string `json:"kind"`
	Next   string `json:"next,omitempty"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "gate not configured")
		return
	}
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil {
		writeError(w, http.StatusServiceUnavailable, "GATE_UNAVAILABLE", "gate not configured")
		return
	}
	sess := middleware.SessionFromContext(r.Context())

	st, err := h.gate.State(r.Context(), sess.UserID)
	if err != nil {
		writeMappedError(w, r, h.logger, "onboarding_state", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, stateResponse{
		UserID: sess.UserID,
		State:  st.String(),
		Next:   h.nextStep(st),
	})
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil {
		writeError(w, http.StatusServiceUnavailable, "GATE_UNAVAILABLE", "gate not configured")
		return
	}
	kind, err := onboardgate.ParseRecordKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeMappedError(w, r, h.logger, "create_record", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRecordBytes)
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	sess := middleware.SessionFromContext(r.Context())
	if err := h.gate.CreateRecord(r.Context(), sess, kind, payload); err != nil {
		writeMappedError(w, r, h.logger, "create_record", err)
		return
	}

	resp := createdResponse{Status: "created", Kind: string(kind)}
	if st, err := h.gate.State(r.Context(), sess.UserID); err == nil {
		resp.Next = h.nextStep(st)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// signOut revokes the caller's session. Tokens without a session id are
// revoked user-wide up to their issue time, so a later sign-in still works.
func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	if h.revoker == nil {
		writeError(w, http.StatusServiceUnavailable, "REVOCATION_DISABLED", "session revocation not configured")
		return
	}
	sess := middleware.SessionFromContext(r.Context())

	var err error
	if sess.SessionID != "" {
		err = h.revoker.Revoke(r.Context(), sess.SessionID, sess.ExpiresAt)
	} else {
		at := sess.IssuedAt
		if at.IsZero() {
			at = time.Now()
		}
		err = h.revoker.RevokeAllForUser(r.Context(), sess.UserID, at)
	}
	if err != nil {
		writeMappedError(w, r, h.logger, "sign_out", err)
		return
	}

	h.logger.Info("session revoked",
		zap.String("user_id", sess.UserID),
		zap.String("session_id", sess.SessionID),
		zap.String("request_id", onboardgate.RequestIDFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// nextStep is the page a user in st should be sent to.
func (h *Handler) nextStep(st onboardgate.OnboardingState) string {
	routes := h.gate.Config().Routes
	switch st {
	case onboardgate.StateAnonymous:
		return routes.SignInPath
	case onboardgate.StatePhoneUnverified:
		return routes.VerifyPath
	case onboardgate.StateProfileIncomplete:
		return routes.ProfileCreatePath
	default:
		return routes.LandingPath
	}
}
