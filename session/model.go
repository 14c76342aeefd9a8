package session

import "time"

// Session is the read-only identity behind a request.
type Session struct {
	UserID    string
	SessionID string
	Email     string
	Phone     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
