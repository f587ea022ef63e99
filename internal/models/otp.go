package models

import (
	"time"
)

// ChallengeOutcome is the result of an atomic OTP verification attempt
// against the principal row.
type ChallengeOutcome int

const (
	// ChallengeConsumed: code matched an unconsumed, unexpired challenge.
	// The challenge was cleared, the failure counter reset, and any lockout
	// lifted, all in the same transaction.
	ChallengeConsumed ChallengeOutcome = iota
	// ChallengeMismatch: code did not match. The failure counter was
	// incremented.
	ChallengeMismatch
	// ChallengeLockedOut: the mismatch pushed the failure counter to the
	// threshold, or the principal was already inside a lockout window.
	ChallengeLockedOut
	// ChallengeExpired: no pending challenge, or the pending one expired.
	// Treated identically to "no challenge found".
	ChallengeExpired
)

// ChallengeResult carries the outcome of a verification attempt plus the
// metadata callers need to build a response.
type ChallengeResult struct {
	Outcome     ChallengeOutcome
	Attempts    int        // failure counter after this attempt
	LockedUntil *time.Time // set when Outcome is ChallengeLockedOut
}
