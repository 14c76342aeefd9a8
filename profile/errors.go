package profile

import (
	"errors"
	"strings"
)

// ErrInvalid is matched by every validation failure.
var ErrInvalid = errors.New("invalid payload")

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors collects every failed rule of a payload.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return ErrInvalid.Error()
	}
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return ErrInvalid.Error() + ": " + strings.Join(parts, "; ")
}

func (e FieldErrors) Is(target error) bool {
	return target == ErrInvalid
}

func (e *FieldErrors) add(field, message string) {
	*e = append(*e, FieldError{Field: field, Message: message})
}

func (e FieldErrors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
