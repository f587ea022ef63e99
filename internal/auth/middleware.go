package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmcneil/storefront/internal/models"
	httputil "github.com/dmcneil/storefront/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// PrincipalContextKey is the key for storing the authenticated principal
	PrincipalContextKey contextKey = "principal"
)

// Denial kinds distinguish why a request was refused. They are logged but
// never exposed: every credential-level denial produces the same external
// 401 so callers cannot probe which stage rejected them.
const (
	DenialMissingCredential = "missing_credential"
	DenialInvalidCredential = "invalid_credential"
	DenialSessionInvalid    = "session_invalid"
	DenialInsufficientRole  = "insufficient_role"
)

// SessionValidator checks that a credential's session is still live and
// matches the presented token
type SessionValidator interface {
	Validate(ctx context.Context, sessionID string, principalID int64, tokenHash string) error
}

// HashToken returns the hex SHA-256 digest under which session tokens are
// stored, so a database leak does not yield usable credentials
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticator resolves credentials from requests and gates access by
// audience and role
type Authenticator struct {
	credentials *CredentialManager
	sessions    SessionValidator
	ipConfig    *httputil.IPConfig
	logger      *slog.Logger
}

// NewAuthenticator creates a new Authenticator
func NewAuthenticator(credentials *CredentialManager, sessions SessionValidator, ipConfig *httputil.IPConfig, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		credentials: credentials,
		sessions:    sessions,
		ipConfig:    ipConfig,
		logger:      logger,
	}
}

// extractToken returns the raw credential from the request. The
// Authorization header wins over the audience cookie so API clients can
// always override an ambient browser session.
func extractToken(r *http.Request, audience models.Audience) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1], true
		}
		return "", false
	}

	token, err := GetSessionCookie(r, audience)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// denialKind names a refusal cause for logs and audit trails
func denialKind(cause error) string {
	switch {
	case errors.Is(cause, models.ErrMissingCredential):
		return DenialMissingCredential
	case errors.Is(cause, models.ErrSessionInvalid):
		return DenialSessionInvalid
	case errors.Is(cause, models.ErrInsufficientRole):
		return DenialInsufficientRole
	default:
		return DenialInvalidCredential
	}
}

// deny logs the denial cause and writes the uniform external refusal
func (a *Authenticator) deny(w http.ResponseWriter, r *http.Request, cause error) {
	a.logger.Warn("request denied",
		slog.String("denial", denialKind(cause)),
		slog.String("path", r.URL.Path),
		slog.String("ip_address", httputil.ExtractClientIP(r, a.ipConfig)),
	)

	httputil.WriteUnauthorized(w, "Authentication required")
}

// Authenticate validates the request credential for an audience and injects
// the resolved principal into the request context
func (a *Authenticator) Authenticate(audience models.Audience) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractToken(r, audience)
			if !ok {
				a.deny(w, r, models.ErrMissingCredential)
				return
			}

			claims, err := a.credentials.Verify(token)
			if err != nil {
				a.deny(w, r, err)
				return
			}

			// Staff credentials carry customer capability and are
			// accepted on the storefront; a customer credential never
			// opens the back office.
			if audience == models.AudienceStaff && !claims.Role.IsStaff() {
				a.deny(w, r, models.ErrInsufficientRole)
				return
			}

			if err := a.sessions.Validate(r.Context(), claims.SessionID, claims.PrincipalID, HashToken(token)); err != nil {
				a.deny(w, r, models.ErrSessionInvalid)
				return
			}

			principal := &models.PrincipalInfo{
				ID:        claims.PrincipalID,
				Role:      claims.Role,
				SessionID: claims.SessionID,
			}
			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces a minimum role for an already-authenticated request.
// Must run after Authenticate.
func (a *Authenticator) RequireRole(min models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipalFromContext(r)
			if principal == nil {
				a.deny(w, r, models.ErrMissingCredential)
				return
			}

			if !principal.Role.AtLeast(min) {
				a.deny(w, r, models.ErrInsufficientRole)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipalFromContext extracts the authenticated principal from the
// request context
func GetPrincipalFromContext(r *http.Request) *models.PrincipalInfo {
	principal, ok := r.Context().Value(PrincipalContextKey).(*models.PrincipalInfo)
	if !ok {
		return nil
	}
	return principal
}
