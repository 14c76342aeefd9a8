package onboardgate

import (
	"errors"

	"github.com/heartlink/onboardgate/internal/flows"
	"github.com/heartlink/onboardgate/internal/rate"
	"github.com/heartlink/onboardgate/profile"
	"github.com/heartlink/onboardgate/session"
)

var (
	// ErrMalformedResponse is returned by record stores when the backend answered
	// with a body that is not JSON or does not have the expected shape. The gate
	// treats it as "record absent".
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrBackendUnavailable wraps transport and non-2xx failures of a record store.
	ErrBackendUnavailable = errors.New("record backend unavailable")
	// ErrLookupTimeout is reported when an existence lookup exceeds Lookup.Timeout.
	ErrLookupTimeout = flows.ErrLookupTimeout
	// ErrRecordExists is returned by CreateRecord when the user already has the record.
	ErrRecordExists = errors.New("record already exists")
	// ErrNoSession is returned by operations that need an authenticated session.
	ErrNoSession = errors.New("no session")
	// ErrRateLimited is returned once a user exceeds the record creation budget.
	ErrRateLimited = rate.ErrRateLimited
	// ErrInvalidPayload marks a record payload that failed validation. The
	// concrete error is a profile.FieldErrors listing every rejected field.
	ErrInvalidPayload = profile.ErrInvalid
	// ErrUnknownKind is returned for a record kind other than phone or profile.
	ErrUnknownKind = errors.New("unknown record kind")
	// ErrSessionBackend is returned when the session revocation store fails.
	ErrSessionBackend = session.ErrRedisUnavailable
	// ErrGateClosed is returned by operations on a gate after Close.
	ErrGateClosed = errors.New("gate closed")
)
