package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmcneil/storefront/internal/auth"
	"github.com/dmcneil/storefront/internal/config"
	"github.com/dmcneil/storefront/internal/models"
	pkgauth "github.com/dmcneil/storefront/pkg/auth"
	pkglogger "github.com/dmcneil/storefront/pkg/logger"
)

// PrincipalDirectory defines the principal lookups session establishment
// and TOTP enrollment need
type PrincipalDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.Principal, error)
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)
	SetTOTPSecret(ctx context.Context, id int64, encrypted, nonce []byte) error
	ActivateTOTP(ctx context.Context, id int64) error
}

// SessionStore defines the session lifecycle operations
type SessionStore interface {
	Create(ctx context.Context, session *models.Session, policy models.SessionPolicy) (string, error)
	Invalidate(ctx context.Context, sessionID string, principalID int64) error
	InvalidateAll(ctx context.Context, principalID int64) (int64, error)
}

// SessionResponse is the result of establishing a session
type SessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}

// AuthService handles login, session establishment, and logout for both
// surfaces
type AuthService struct {
	principals  PrincipalDirectory
	sessions    SessionStore
	credentials *auth.CredentialManager
	totp        *auth.TOTPManager // nil when TOTP is not configured
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	cfg         config.AuthConfig
	now         func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(principals PrincipalDirectory, sessions SessionStore, credentials *auth.CredentialManager, totp *auth.TOTPManager, timing *auth.TimingDelay, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, cfg config.AuthConfig) *AuthService {
	return &AuthService{
		principals:  principals,
		sessions:    sessions,
		credentials: credentials,
		totp:        totp,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetClock overrides the time source, for deterministic expiry tests
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// establishSession mints a session row and its matching credential as one
// unit: the session id goes into the token, the token hash into the row.
func (s *AuthService) establishSession(ctx context.Context, principal *models.Principal, ttl time.Duration, policy models.SessionPolicy, ipAddress, userAgent string) (*SessionResponse, error) {
	sessionID := uuid.New().String()

	token, err := s.credentials.Issue(principal.ID, principal.Role, sessionID, ttl)
	if err != nil {
		s.logger.Error("failed to issue credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	session := &models.Session{
		ID:          sessionID,
		PrincipalID: principal.ID,
		TokenHash:   auth.HashToken(token),
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	if _, err := s.sessions.Create(ctx, session, policy); err != nil {
		if errors.Is(err, models.ErrSessionActive) {
			return nil, models.ErrSessionActive
		}
		s.logger.Error("failed to create session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:   "session_established",
		PrincipalID: principal.ID,
		SessionID:   sessionID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Success:     true,
	})

	return &SessionResponse{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: session.ExpiresAt,
		Role:      string(principal.Role),
	}, nil
}

// EstablishCustomerSession mints a storefront session for a customer whose
// challenge was just consumed. Customers may hold several concurrent
// sessions, one per device.
func (s *AuthService) EstablishCustomerSession(ctx context.Context, principal *models.Principal, ipAddress, userAgent string) (*SessionResponse, error) {
	return s.establishSession(ctx, principal, s.cfg.CustomerSessionTTL, models.SessionPolicyShared, ipAddress, userAgent)
}

// StaffLogin authenticates a back-office principal by email and password,
// with TOTP step-up when the account has it enabled. Staff are the
// single-session class: depending on policy an existing live session is
// either displaced or blocks the new login.
func (s *AuthService) StaffLogin(ctx context.Context, email, password, totpCode, ipAddress, userAgent string) (*SessionResponse, error) {
	start := time.Now()
	success := false
	defer func() {
		s.timing.WaitFrom(start, success)
	}()

	failAudit := func(reason string, principalID int64) {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "staff_login_failed",
			PrincipalID:   principalID,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			Success:       false,
			FailureReason: reason,
		})
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		failAudit("invalid_credentials", 0)
		return nil, models.ErrUnauthorized
	}

	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			failAudit("invalid_credentials", 0)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to load staff principal", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !principal.Role.IsStaff() || principal.PasswordHash == nil {
		failAudit("invalid_credentials", principal.ID)
		return nil, models.ErrUnauthorized
	}

	if principal.Status != "active" {
		failAudit("account_disabled", principal.ID)
		return nil, models.ErrAccountDisabled
	}

	if principal.Locked(s.now()) {
		failAudit("account_locked", principal.ID)
		return nil, &models.LockoutError{RetryAfter: principal.LockedUntil.Sub(s.now())}
	}

	if err := pkgauth.ComparePassword(*principal.PasswordHash, password); err != nil {
		failAudit("invalid_credentials", principal.ID)
		return nil, models.ErrUnauthorized
	}

	if principal.TOTPEnabled {
		if s.totp == nil {
			s.logger.Error("principal has TOTP enabled but no TOTP manager is configured",
				slog.Int64("principal_id", principal.ID))
			return nil, models.ErrInternalServer
		}
		if totpCode == "" {
			failAudit("totp_required", principal.ID)
			return nil, models.ErrTOTPRequired
		}

		secret, err := s.totp.DecryptSecret(principal.TOTPSecretEncrypted, principal.TOTPSecretNonce)
		if err != nil {
			s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		valid, err := s.totp.ValidateTOTP(secret, totpCode)
		if err != nil {
			s.logger.Error("failed to validate TOTP code", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !valid {
			failAudit("invalid_totp", principal.ID)
			return nil, models.ErrUnauthorized
		}
	}

	// The policy is enforced inside the session store's transaction so two
	// concurrent logins cannot both pass a reject check.
	resp, err := s.establishSession(ctx, principal, s.cfg.StaffSessionTTL, s.cfg.StaffSessionPolicy, ipAddress, userAgent)
	if err != nil {
		if errors.Is(err, models.ErrSessionActive) {
			failAudit("session_active", principal.ID)
		}
		return nil, err
	}

	success = true
	return resp, nil
}

// Logout revokes the session backing the current request
func (s *AuthService) Logout(ctx context.Context, principalID int64, sessionID, ipAddress string) error {
	if err := s.sessions.Invalidate(ctx, sessionID, principalID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Already revoked or expired; logout is idempotent.
			return nil
		}
		s.logger.Error("failed to invalidate session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:   "logout",
		PrincipalID: principalID,
		SessionID:   sessionID,
		IPAddress:   ipAddress,
		Success:     true,
	})
	return nil
}

// LogoutAll revokes every live session of a principal and reports how many
// were revoked
func (s *AuthService) LogoutAll(ctx context.Context, principalID int64, ipAddress string) (int64, error) {
	revoked, err := s.sessions.InvalidateAll(ctx, principalID)
	if err != nil {
		s.logger.Error("failed to invalidate sessions", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:   "logout_all",
		PrincipalID: principalID,
		IPAddress:   ipAddress,
		Success:     true,
	})
	return revoked, nil
}

// TOTPEnrollment is handed back once at enrollment; the plaintext secret
// and QR image are never retrievable again
type TOTPEnrollment struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qr_code_url"`
}

// EnrollTOTP generates and stores an encrypted TOTP secret for a staff
// principal. The secret stays inactive until a valid code confirms the
// authenticator app was provisioned.
func (s *AuthService) EnrollTOTP(ctx context.Context, principalID int64) (*TOTPEnrollment, error) {
	if s.totp == nil {
		return nil, models.ErrBadRequest
	}

	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load principal for TOTP enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !principal.Role.IsStaff() || principal.Email == nil {
		return nil, models.ErrForbidden
	}

	encrypted, nonce, secret, qrDataURL, err := s.totp.GenerateSecretWithQR(*principal.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.principals.SetTOTPSecret(ctx, principalID, encrypted, nonce); err != nil {
		s.logger.Error("failed to store TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("totp_enrolled", principalID, "", nil)

	return &TOTPEnrollment{Secret: secret, QRCodeURL: qrDataURL}, nil
}

// ConfirmTOTP validates a first code against the enrolled secret and
// activates TOTP for all subsequent logins
func (s *AuthService) ConfirmTOTP(ctx context.Context, principalID int64, code string) error {
	if s.totp == nil {
		return models.ErrBadRequest
	}

	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load principal for TOTP activation", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if len(principal.TOTPSecretEncrypted) == 0 {
		return models.ErrBadRequest
	}

	secret, err := s.totp.DecryptSecret(principal.TOTPSecretEncrypted, principal.TOTPSecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return models.ErrInternalServer
	}

	valid, err := s.totp.ValidateTOTP(secret, code)
	if err != nil {
		s.logger.Error("failed to validate TOTP code", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !valid {
		return models.ErrUnauthorized
	}

	if err := s.principals.ActivateTOTP(ctx, principalID); err != nil {
		s.logger.Error("failed to activate TOTP", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("totp_activated", principalID, "", nil)
	return nil
}
