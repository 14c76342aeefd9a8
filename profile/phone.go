package profile

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Phone is the verified phone record.
type Phone struct {
	PhoneNumber string `json:"phone_number"`
}

// DecodePhone reads a phone payload. "phone" is accepted as an alias of
// "phone_number".
func DecodePhone(payload map[string]any) (Phone, error) {
	var p Phone
	if err := decode(payload, &p); err != nil {
		return Phone{}, err
	}
	if p.PhoneNumber == "" {
		if alt, ok := payload["phone"].(string); ok {
			p.PhoneNumber = alt
		}
	}
	p.PhoneNumber = normalizePhone(p.PhoneNumber)
	return p, nil
}

// Validate checks for "+" followed by 8 to 15 digits.
func (p Phone) Validate() error {
	var errs FieldErrors
	n := p.PhoneNumber
	switch {
	case n == "":
		errs.add("phone_number", "is required")
	case n[0] != '+':
		errs.add("phone_number", "must start with +")
	case len(n)-1 < 8 || len(n)-1 > 15:
		errs.add("phone_number", "must have 8 to 15 digits")
	case !allDigits(n[1:]):
		errs.add("phone_number", "must contain only digits after +")
	}
	return errs.orNil()
}

// Fields returns the stored document.
func (p Phone) Fields() map[string]any {
	return map[string]any{"phone_number": p.PhoneNumber}
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func decode(payload map[string]any, out any) error {
	if payload == nil {
		return FieldErrors{{Field: "payload", Message: "is required"}}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return FieldErrors{{Field: "payload", Message: err.Error()}}
	}
	return nil
}
