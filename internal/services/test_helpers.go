package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dmcneil/storefront/internal/models"
	pkglogger "github.com/dmcneil/storefront/pkg/logger"
)

// MockPrincipalRepository implements ChallengeStore and PrincipalDirectory
// for testing
type MockPrincipalRepository struct {
	GetByIDFunc            func(ctx context.Context, id int64) (*models.Principal, error)
	GetByPhoneFunc         func(ctx context.Context, phone string) (*models.Principal, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.Principal, error)
	GetOrCreateByPhoneFunc func(ctx context.Context, phone string) (*models.Principal, error)
	SetChallengeFunc       func(ctx context.Context, id int64, codeHash string, expiresAt, requestedAt time.Time) error
	ClearChallengeFunc     func(ctx context.Context, id int64) error
	VerifyChallengeFunc    func(ctx context.Context, id int64, presentedHash string, now time.Time, maxAttempts int, lockout time.Duration) (*models.ChallengeResult, error)
	SetTOTPSecretFunc      func(ctx context.Context, id int64, encrypted, nonce []byte) error
	ActivateTOTPFunc       func(ctx context.Context, id int64) error
}

func (m *MockPrincipalRepository) GetByID(ctx context.Context, id int64) (*models.Principal, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockPrincipalRepository) GetByPhone(ctx context.Context, phone string) (*models.Principal, error) {
	if m.GetByPhoneFunc != nil {
		return m.GetByPhoneFunc(ctx, phone)
	}
	return nil, models.ErrNotFound
}

func (m *MockPrincipalRepository) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockPrincipalRepository) GetOrCreateByPhone(ctx context.Context, phone string) (*models.Principal, error) {
	if m.GetOrCreateByPhoneFunc != nil {
		return m.GetOrCreateByPhoneFunc(ctx, phone)
	}
	return nil, models.ErrInternalServer
}

func (m *MockPrincipalRepository) SetChallenge(ctx context.Context, id int64, codeHash string, expiresAt, requestedAt time.Time) error {
	if m.SetChallengeFunc != nil {
		return m.SetChallengeFunc(ctx, id, codeHash, expiresAt, requestedAt)
	}
	return nil
}

func (m *MockPrincipalRepository) ClearChallenge(ctx context.Context, id int64) error {
	if m.ClearChallengeFunc != nil {
		return m.ClearChallengeFunc(ctx, id)
	}
	return nil
}

func (m *MockPrincipalRepository) VerifyChallenge(ctx context.Context, id int64, presentedHash string, now time.Time, maxAttempts int, lockout time.Duration) (*models.ChallengeResult, error) {
	if m.VerifyChallengeFunc != nil {
		return m.VerifyChallengeFunc(ctx, id, presentedHash, now, maxAttempts, lockout)
	}
	return nil, models.ErrInternalServer
}

func (m *MockPrincipalRepository) SetTOTPSecret(ctx context.Context, id int64, encrypted, nonce []byte) error {
	if m.SetTOTPSecretFunc != nil {
		return m.SetTOTPSecretFunc(ctx, id, encrypted, nonce)
	}
	return nil
}

func (m *MockPrincipalRepository) ActivateTOTP(ctx context.Context, id int64) error {
	if m.ActivateTOTPFunc != nil {
		return m.ActivateTOTPFunc(ctx, id)
	}
	return nil
}

// MockSessionRepository implements SessionStore for testing
type MockSessionRepository struct {
	CreateFunc        func(ctx context.Context, session *models.Session, policy models.SessionPolicy) (string, error)
	InvalidateFunc    func(ctx context.Context, sessionID string, principalID int64) error
	InvalidateAllFunc func(ctx context.Context, principalID int64) (int64, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session, policy models.SessionPolicy) (string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session, policy)
	}
	return session.ID, nil
}

func (m *MockSessionRepository) Invalidate(ctx context.Context, sessionID string, principalID int64) error {
	if m.InvalidateFunc != nil {
		return m.InvalidateFunc(ctx, sessionID, principalID)
	}
	return nil
}

func (m *MockSessionRepository) InvalidateAll(ctx context.Context, principalID int64) (int64, error) {
	if m.InvalidateAllFunc != nil {
		return m.InvalidateAllFunc(ctx, principalID)
	}
	return 0, nil
}

// MockSMSService implements SMSService for testing
type MockSMSService struct {
	SendVerificationCodeFunc func(ctx context.Context, phone, code string) error
}

func (m *MockSMSService) SendVerificationCode(ctx context.Context, phone, code string) error {
	if m.SendVerificationCodeFunc != nil {
		return m.SendVerificationCodeFunc(ctx, phone, code)
	}
	return nil
}

// MockAlertService implements AlertService for testing
type MockAlertService struct {
	SendLockoutAlertFunc func(ctx context.Context, email string, lockedUntil time.Time) error
}

func (m *MockAlertService) SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error {
	if m.SendLockoutAlertFunc != nil {
		return m.SendLockoutAlertFunc(ctx, email, lockedUntil)
	}
	return nil
}

// discardLogger returns a logger and audit logger that drop everything
func discardLogger() (*slog.Logger, *pkglogger.AuditLogger) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return logger, pkglogger.NewAuditLogger(logger)
}
