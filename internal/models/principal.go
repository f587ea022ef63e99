package models

import (
	"time"
)

// Role is the closed set of principal roles. Back-office roles form a strict
// hierarchy above the customer role: OWNER > MANAGER > OPERATOR > CUSTOMER.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
	RoleManager  Role = "manager"
	RoleOwner    Role = "owner"
)

// roleLevels orders roles for hierarchy comparisons.
var roleLevels = map[Role]int{
	RoleCustomer: 0,
	RoleOperator: 1,
	RoleManager:  2,
	RoleOwner:    3,
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether r sits at or above min in the role hierarchy.
func (r Role) AtLeast(min Role) bool {
	return roleLevels[r] >= roleLevels[min]
}

// IsStaff reports whether the role belongs to the back-office principal class.
func (r Role) IsStaff() bool {
	return r.AtLeast(RoleOperator)
}

// Audience scopes credential transport: back-office endpoints only accept
// staff credentials, storefront endpoints accept either class.
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceStaff    Audience = "staff"
)

// Principal is an identity record looked up from the durable store. Customers
// authenticate by phone-delivered OTP; staff authenticate by email+password
// (optionally with TOTP step-up).
type Principal struct {
	ID           int64
	Phone        *string // E.164, customers
	Email        *string // staff
	PasswordHash *string // staff only, bcrypt
	Role         Role
	Permissions  []string // staff fine-grained permissions
	Status       string   // "active" or "disabled"

	// OTP challenge state, persisted on the principal row.
	FailedOTPAttempts     int
	LockedUntil           *time.Time
	VerificationCodeHash  *string
	VerificationExpiresAt *time.Time
	VerificationRequested *time.Time

	// Staff TOTP step-up.
	TOTPSecretEncrypted []byte
	TOTPSecretNonce     []byte
	TOTPEnabled         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the principal is inside a lockout window at now.
func (p *Principal) Locked(now time.Time) bool {
	return p.LockedUntil != nil && now.Before(*p.LockedUntil)
}

// PrincipalInfo is the normalized identity the auth facade hands to request
// handlers: just enough to authorize, nothing more.
type PrincipalInfo struct {
	ID   int64
	Role Role
	// SessionID identifies the session backing this request, for targeted
	// logout.
	SessionID string
}
