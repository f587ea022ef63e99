package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmcneil/storefront/internal/models"
)

// CredentialClaims is the verified content of an issued credential.
type CredentialClaims struct {
	PrincipalID int64
	Role        models.Role
	SessionID   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// wireClaims is the raw JWT payload. Two shapes exist on the wire: the
// current one (principal_id + role + session_id) and a legacy one predating
// explicit roles (customer_id or operator_id). normalize maps both to
// CredentialClaims in one place; nothing else may probe these fields.
type wireClaims struct {
	PrincipalID int64       `json:"principal_id,omitempty"`
	Role        models.Role `json:"role,omitempty"`
	SessionID   string      `json:"session_id,omitempty"`

	// Legacy payload fields.
	CustomerID int64 `json:"customer_id,omitempty"`
	OperatorID int64 `json:"operator_id,omitempty"`

	jwt.RegisteredClaims
}

// normalize maps a wire payload to verified claims. The legacy shape infers
// the role from which id field is present; that inference is deliberate and
// confined to this function.
func (w *wireClaims) normalize() (*CredentialClaims, error) {
	claims := &CredentialClaims{
		SessionID: w.SessionID,
	}

	switch {
	case w.Role != "":
		if !w.Role.Valid() {
			return nil, fmt.Errorf("unknown role %q", w.Role)
		}
		if w.PrincipalID == 0 {
			return nil, fmt.Errorf("missing principal id")
		}
		claims.PrincipalID = w.PrincipalID
		claims.Role = w.Role
	case w.OperatorID != 0:
		claims.PrincipalID = w.OperatorID
		claims.Role = models.RoleOperator
	case w.CustomerID != 0:
		claims.PrincipalID = w.CustomerID
		claims.Role = models.RoleCustomer
	default:
		return nil, fmt.Errorf("payload carries no identity")
	}

	if claims.SessionID == "" {
		return nil, fmt.Errorf("missing session id")
	}
	if w.IssuedAt != nil {
		claims.IssuedAt = w.IssuedAt.Time
	}
	if w.ExpiresAt != nil {
		claims.ExpiresAt = w.ExpiresAt.Time
	}

	return claims, nil
}

// CredentialManager signs and verifies session credentials
type CredentialManager struct {
	secret []byte
	now    func() time.Time
}

// NewCredentialManager creates a new CredentialManager
func NewCredentialManager(secret string) *CredentialManager {
	return &CredentialManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// SetClock overrides the time source, for deterministic expiry tests
func (cm *CredentialManager) SetClock(now func() time.Time) {
	cm.now = now
}

// Issue creates a signed credential bound to a session
func (cm *CredentialManager) Issue(principalID int64, role models.Role, sessionID string, ttl time.Duration) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("cannot issue credential for unknown role %q", role)
	}
	if sessionID == "" {
		return "", fmt.Errorf("cannot issue credential without session id")
	}

	now := cm.now()
	claims := &wireClaims{
		PrincipalID: principalID,
		Role:        role,
		SessionID:   sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}

	return signed, nil
}

// Verify checks a credential and returns its claims. Every failure mode
// (bad signature, wrong algorithm, expired, malformed payload) collapses to
// models.ErrInvalidCredential so callers cannot probe why a token failed.
func (cm *CredentialManager) Verify(tokenString string) (*CredentialClaims, error) {
	wire := &wireClaims{}

	token, err := jwt.ParseWithClaims(tokenString, wire, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cm.secret, nil
	}, jwt.WithTimeFunc(cm.now))

	if err != nil || !token.Valid {
		return nil, models.ErrInvalidCredential
	}

	claims, err := wire.normalize()
	if err != nil {
		return nil, models.ErrInvalidCredential
	}

	return claims, nil
}
