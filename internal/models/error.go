package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential verification errors. Everything on the verification path
	// collapses to ErrInvalidCredential or ErrSessionInvalid before leaving
	// the auth boundary so callers cannot probe why a token was rejected.
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrSessionInvalid    = errors.New("session revoked or expired")
	ErrInsufficientRole  = errors.New("insufficient role for audience")

	// OTP challenge errors. These are surfaced distinctly to the end user;
	// disclosing them does not weaken the challenge.
	ErrChallengeExpired  = errors.New("challenge expired or not found")
	ErrChallengeMismatch = errors.New("challenge code mismatch")
	ErrDeliveryFailed    = errors.New("code delivery failed")

	// Account state errors
	ErrAccountDisabled = errors.New("account is disabled")
	ErrAccountLocked   = errors.New("account is temporarily locked")
	ErrSessionActive   = errors.New("an active session already exists")
	ErrTOTPRequired    = errors.New("totp code required")
)

// LockoutError reports that a principal is locked out and for how much longer.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockoutError) Unwrap() error { return ErrAccountLocked }

// CooldownError reports that a new challenge was requested before the
// per-principal cooldown elapsed.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("challenge cooldown active, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrBadRequest }
