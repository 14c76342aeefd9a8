package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/heartlink/onboardgate"
	"github.com/heartlink/onboardgate/profile"
)

var errEmptyBody = errors.New("request body is required")

type apiError struct {
	Status  string               `json:"status"`
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Fields  []profile.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{Status: "error", Code: code, Message: message})
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, onboardgate.ErrInvalidPayload):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, onboardgate.ErrUnknownKind):
		return http.StatusNotFound, "UNKNOWN_KIND", "unknown record kind"
	case errors.Is(err, onboardgate.ErrNoSession):
		return http.StatusUnauthorized, "UNAUTHORIZED", "sign in required"
	case errors.Is(err, onboardgate.ErrRecordExists):
		return http.StatusConflict, "CONFLICT", "record already exists"
	case errors.Is(err, onboardgate.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later"
	case errors.Is(err, onboardgate.ErrGateClosed):
		return http.StatusServiceUnavailable, "UNAVAILABLE", "service shutting down"
	case errors.Is(err, onboardgate.ErrSessionBackend):
		return http.StatusServiceUnavailable, "SESSION_BACKEND_UNAVAILABLE", "session store unavailable"
	case errors.Is(err, onboardgate.ErrBackendUnavailable),
		errors.Is(err, onboardgate.ErrLookupTimeout),
		errors.Is(err, onboardgate.ErrMalformedResponse):
		return http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", "record backend unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func writeMappedError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, operation string, err error) {
	status, code, msg := mapError(err)
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("code", code),
		zap.String("request_id", onboardgate.RequestIDFromContext(r.Context())),
		zap.Error(err),
	}
	if status >= 500 {
		logger.Error("http operation failed", fields...)
	} else {
		logger.Debug("http operation rejected", fields...)
	}

	body := apiError{Status: "error", Code: code, Message: msg}
	var fe profile.FieldErrors
	if errors.As(err, &fe) {
		body.Fields = fe
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}
