package profile

import (
	"fmt"
	"time"
)

// Record kinds, matching the gate's record kinds.
const (
	KindPhone   = "phone"
	KindProfile = "profile"
)

// Normalize decodes and validates payload for kind and returns the document
// to store.
func Normalize(kind string, payload map[string]any, now time.Time) (map[string]any, error) {
	switch kind {
	case KindPhone:
		p, err := DecodePhone(payload)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p.Fields(), nil
	case KindProfile:
		p, err := DecodeProfile(payload)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(now); err != nil {
			return nil, err
		}
		return p.Fields(), nil
	default:
		return nil, fmt.Errorf("%w: unknown record kind %q", ErrInvalid, kind)
	}
}
