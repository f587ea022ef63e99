package services

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcneil/storefront/internal/auth"
	"github.com/dmcneil/storefront/internal/config"
	"github.com/dmcneil/storefront/internal/models"
	pkgauth "github.com/dmcneil/storefront/pkg/auth"
)

const (
	testSigningSecret = "test-signing-secret-at-least-32-chars!"
	testStaffPassword = "Sup3r-Secure-Pass!"
)

func testAuthConfig(policy models.SessionPolicy) config.AuthConfig {
	return config.AuthConfig{
		SigningSecret:      testSigningSecret,
		CustomerSessionTTL: 30 * 24 * time.Hour,
		StaffSessionTTL:    8 * time.Hour,
		StaffSessionPolicy: policy,
	}
}

func newAuthService(t *testing.T, principals PrincipalDirectory, sessions SessionStore, policy models.SessionPolicy) (*AuthService, *auth.CredentialManager) {
	t.Helper()
	cm := auth.NewCredentialManager(testSigningSecret)
	tm, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "test")
	require.NoError(t, err)
	timing := auth.NewTimingDelay(auth.TimingConfig{})
	logger, audit := discardLogger()
	return NewAuthService(principals, sessions, cm, tm, timing, logger, audit, testAuthConfig(policy)), cm
}

func staffPrincipal(t *testing.T, id int64, email string, role models.Role) *models.Principal {
	t.Helper()
	hash, err := pkgauth.HashPassword(testStaffPassword)
	require.NoError(t, err)
	return &models.Principal{
		ID:           id,
		Email:        &email,
		PasswordHash: &hash,
		Role:         role,
		Status:       "active",
	}
}

func TestStaffLogin_Success(t *testing.T) {
	principal := staffPrincipal(t, 10, "op@example.com", models.RoleOperator)
	principals := &MockPrincipalRepository{
		GetByEmailFunc: func(_ context.Context, email string) (*models.Principal, error) {
			assert.Equal(t, "op@example.com", email)
			return principal, nil
		},
	}

	var createdSession *models.Session
	var gotPolicy models.SessionPolicy
	sessions := &MockSessionRepository{
		CreateFunc: func(_ context.Context, session *models.Session, policy models.SessionPolicy) (string, error) {
			createdSession = session
			gotPolicy = policy
			return session.ID, nil
		},
	}

	svc, cm := newAuthService(t, principals, sessions, models.SessionPolicyInvalidate)

	resp, err := svc.StaffLogin(context.Background(), "  OP@example.com ", testStaffPassword, "", "203.0.113.9", "cli/1.0")
	require.NoError(t, err)
	require.NotNil(t, createdSession)

	// Staff are single-session: any prior live session is displaced.
	assert.Equal(t, models.SessionPolicyInvalidate, gotPolicy)
	assert.Equal(t, int64(10), createdSession.PrincipalID)
	assert.Equal(t, "203.0.113.9", createdSession.IPAddress)
	assert.Equal(t, auth.HashToken(resp.Token), createdSession.TokenHash)
	assert.Equal(t, "operator", resp.Role)

	claims, err := cm.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(10), claims.PrincipalID)
	assert.Equal(t, models.RoleOperator, claims.Role)
	assert.Equal(t, createdSession.ID, claims.SessionID)
	assert.Equal(t, resp.SessionID, claims.SessionID)
}

func TestStaffLogin_InvalidCredentials(t *testing.T) {
	principal := staffPrincipal(t, 10, "op@example.com", models.RoleOperator)
	principals := &MockPrincipalRepository{
		GetByEmailFunc: func(_ context.Context, _ string) (*models.Principal, error) {
			return principal, nil
		},
	}
	svc, _ := newAuthService(t, principals, &MockSessionRepository{}, models.SessionPolicyInvalidate)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "op@example.com", "wrong-password"},
		{"empty password", "op@example.com", ""},
		{"empty email", "", testStaffPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StaffLogin(context.Background(), tt.email, tt.password, "", "", "")
			assert.ErrorIs(t, err, models.ErrUnauthorized)
		})
	}
}

func TestStaffLogin_UnknownEmail(t *testing.T) {
	svc, _ := newAuthService(t, &MockPrincipalRepository{}, &MockSessionRepository{}, models.SessionPolicyInvalidate)
	_, err := svc.StaffLogin(context.Background(), "nobody@example.com", testStaffPassword, "", "", "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestStaffLogin_CustomerRejected(t *testing.T) {
	phone := "+14155550123"
	hash, err := pkgauth.HashPassword(testStaffPassword)
	require.NoError(t, err)
	email := "customer@example.com"
	principals := &MockPrincipalRepository{
		GetByEmailFunc: func(_ context.Context, _ string) (*models.Principal, error) {
			return &models.Principal{
				ID: 3, Phone: &phone, Email: &email, PasswordHash: &hash,
				Role: models.RoleCustomer, Status: "active",
			}, nil
		},
	}
	svc, _ := newAuthService(t, principals, &MockSessionRepository{}, models.SessionPolicyInvalidate)

	_, err = svc.StaffLogin(context.Background(), email, testStaffPassword, "", "", "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestStaffLogin_DisabledAccount(t *testing.T) {
	principal := staffPrincipal(t, 10, "op@example.com", models.RoleOperator)
	principal.Status = "disabled"
	principals := &MockPrincipalRepository{
		GetByEmailFunc: func(_ context.Context, _ string) (*models.Principal, error) {
			return principal, nil
		},
	}
	svc, _ := newAuthService(t, principals, &MockSessionRepository{}, models.SessionPolicyInvalidate)

	_, err := svc.StaffLogin(context.Background(), "op@example.com", testStaffPassword, "", "", "")
	assert.ErrorIs(t, err, models.ErrAccountDisabled)
}

func TestStaffLogin_RejectPolicy(t *testing.T) {
	principal := staffPrincipal(t, 10, "op@example.com", models.RoleOperator)
	principals := &MockPrincipalRepository{
		GetByEmailFunc: func(_ context.Context, _ string) (*models.Principal, error) {
			return principal, nil
		},
	}

	t.Run("active session blocks login", func(t *testing.T) {
		sessions := &MockSessionRepository{
			CreateFunc: func(_ context.Context, session *models.Session, policy models.SessionPolicy) (string, error) {
				assert.Equal(t, int64(10), session.PrincipalID)
				assert.Equal(t, models.SessionPolicyReject, policy)
				return "", models.ErrSessionActive
			},
		}
		svc, _ := newAuthService(t, principals, sessions, models.SessionPolicyReject)

		_, err := svc.StaffLogin(context.Background(), "op@example.com", testStaffPassword, "", "", "")
		assert.ErrorIs(t, err, models.ErrSessionActive)
	})

	t.Run("no active session proceeds", func(t *testing.T) {
		var gotPolicy models.SessionPolicy
		sessions := &MockSessionRepository{
			CreateFunc: func(_ context.Context, session *models.Session, policy models.SessionPolicy) (string, error) {
				gotPolicy = policy
				return session.ID, nil
			},
		}
		svc, _ := newAuthService(t, principals, sessions, models.SessionPolicyReject)

		_, err := svc.StaffLogin(context.Background(), "op@example.com", testStaffPassword, "", "", "")
		assert.NoError(t, err)
		assert.Equal(t, models.SessionPolicyReject, gotPolicy)
	})
}

func enrollTOTP(t *testing.T, principal *models.Principal) string {
	t.Helper()
	tm, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "test")
	require.NoError(t, err)

	encrypted, nonce, secret, _, err := tm.GenerateSecretWithQR(*principal.Email)
	require.NoError(t, err)

	principal.TOTPSecretEncrypted = encrypted
	principal.TOTPSecretNonce = nonce
	principal.TOTPEnabled = true
	return secret
}

func TestStaffLogin_TOTP(t *testing.T) {
	principal := staffPrincipal(t, 10, "op@example.com", models.RoleOperator)
	secret := enrollTOTP(t, principal)

	principals := &MockPrincipalRepository{
		GetByEmailFunc: func(_ context.Context, _ string) (*models.Principal, error) {
			return principal, nil
		},
	}

	t.Run("missing code", func(t *testing.T) {
		svc, _ := newAuthService(t, principals, &MockSessionRepository{}, models.SessionPolicyInvalidate)
		_, err := svc.StaffLogin(context.Background(), "op@example.com", testStaffPassword, "", "", "")
		assert.ErrorIs(t, err, models.ErrTOTPRequired)
	})

	t.Run("wrong code", func(t *testing.T) {
		svc, _ := newAuthService(t, principals, &MockSessionRepository{}, models.SessionPolicyInvalidate)
		_, err := svc.StaffLogin(context.Background(), "op@example.com", testStaffPassword, "000000", "", "")
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("valid code", func(t *testing.T) {
		svc, _ := newAuthService(t, principals, &MockSessionRepository{}, models.SessionPolicyInvalidate)

		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)

		_, err = svc.StaffLogin(context.Background(), "op@example.com", testStaffPassword, code, "", "")
		assert.NoError(t, err)
	})
}

func TestEstablishCustomerSession(t *testing.T) {
	var gotPolicy models.SessionPolicy
	var createdSession *models.Session
	sessions := &MockSessionRepository{
		CreateFunc: func(_ context.Context, session *models.Session, policy models.SessionPolicy) (string, error) {
			createdSession = session
			gotPolicy = policy
			return session.ID, nil
		},
	}

	svc, cm := newAuthService(t, &MockPrincipalRepository{}, sessions, models.SessionPolicyInvalidate)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	cm.SetClock(func() time.Time { return now })

	phone := "+14155550123"
	resp, err := svc.EstablishCustomerSession(context.Background(), &models.Principal{
		ID: 5, Phone: &phone, Role: models.RoleCustomer, Status: "active",
	}, "203.0.113.9", "storefront-app/2.1")
	require.NoError(t, err)

	// Customers keep one session per device.
	assert.Equal(t, models.SessionPolicyShared, gotPolicy)
	assert.Equal(t, now.Add(30*24*time.Hour), resp.ExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour), createdSession.ExpiresAt)
	assert.Equal(t, "customer", resp.Role)
}

func TestLogout_Idempotent(t *testing.T) {
	sessions := &MockSessionRepository{
		InvalidateFunc: func(_ context.Context, sessionID string, principalID int64) error {
			return models.ErrNotFound
		},
	}
	svc, _ := newAuthService(t, &MockPrincipalRepository{}, sessions, models.SessionPolicyInvalidate)

	assert.NoError(t, svc.Logout(context.Background(), 5, "sess-gone", ""))
}

func TestLogoutAll(t *testing.T) {
	sessions := &MockSessionRepository{
		InvalidateAllFunc: func(_ context.Context, principalID int64) (int64, error) {
			assert.Equal(t, int64(5), principalID)
			return 3, nil
		},
	}
	svc, _ := newAuthService(t, &MockPrincipalRepository{}, sessions, models.SessionPolicyInvalidate)

	revoked, err := svc.LogoutAll(context.Background(), 5, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), revoked)
}

func TestEnrollAndConfirmTOTP(t *testing.T) {
	principal := staffPrincipal(t, 10, "op@example.com", models.RoleOperator)

	var activated bool
	principals := &MockPrincipalRepository{
		GetByIDFunc: func(_ context.Context, id int64) (*models.Principal, error) {
			assert.Equal(t, int64(10), id)
			return principal, nil
		},
		SetTOTPSecretFunc: func(_ context.Context, id int64, encrypted, nonce []byte) error {
			principal.TOTPSecretEncrypted = encrypted
			principal.TOTPSecretNonce = nonce
			return nil
		},
		ActivateTOTPFunc: func(_ context.Context, id int64) error {
			activated = true
			return nil
		},
	}

	svc, _ := newAuthService(t, principals, &MockSessionRepository{}, models.SessionPolicyInvalidate)

	enrollment, err := svc.EnrollTOTP(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.NotEmpty(t, enrollment.QRCodeURL)

	// Wrong confirmation code leaves TOTP inactive.
	err = svc.ConfirmTOTP(context.Background(), 10, "000000")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.False(t, activated)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmTOTP(context.Background(), 10, code))
	assert.True(t, activated)
}

func TestEnrollTOTP_CustomerForbidden(t *testing.T) {
	phone := "+14155550123"
	principals := &MockPrincipalRepository{
		GetByIDFunc: func(_ context.Context, _ int64) (*models.Principal, error) {
			return &models.Principal{ID: 3, Phone: &phone, Role: models.RoleCustomer, Status: "active"}, nil
		},
	}
	svc, _ := newAuthService(t, principals, &MockSessionRepository{}, models.SessionPolicyInvalidate)

	_, err := svc.EnrollTOTP(context.Background(), 3)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
