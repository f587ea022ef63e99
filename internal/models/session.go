package models

import (
	"time"
)

// Session is the durable record behind an issued credential. The raw token is
// never stored; only its SHA-256 hash. A session is usable while Active and
// unexpired. Active is only ever flipped true -> false.
type Session struct {
	ID             string // uuid, primary key, carried in the credential
	PrincipalID    int64
	TokenHash      string // hex SHA-256 of the issued token
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt *time.Time // advisory, never used for expiry
	Active         bool
}

// Usable reports whether the session can back a request at now.
func (s *Session) Usable(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// SessionPolicy selects how creating a session interacts with the
// principal's existing active sessions.
type SessionPolicy string

const (
	// SessionPolicyInvalidate deactivates prior sessions when a new one is
	// created (the staff default).
	SessionPolicyInvalidate SessionPolicy = "invalidate"
	// SessionPolicyReject refuses the login while a non-expired active
	// session exists.
	SessionPolicyReject SessionPolicy = "reject"
	// SessionPolicyShared leaves prior sessions untouched. Customers hold
	// one session per device.
	SessionPolicyShared SessionPolicy = "shared"
)
