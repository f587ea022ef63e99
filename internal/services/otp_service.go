package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/dmcneil/storefront/internal/config"
	"github.com/dmcneil/storefront/internal/models"
	pkglogger "github.com/dmcneil/storefront/pkg/logger"
	"github.com/dmcneil/storefront/pkg/phone"
)

// ChallengeStore defines the persistence operations the OTP engine needs
type ChallengeStore interface {
	GetOrCreateByPhone(ctx context.Context, phone string) (*models.Principal, error)
	GetByPhone(ctx context.Context, phone string) (*models.Principal, error)
	SetChallenge(ctx context.Context, id int64, codeHash string, expiresAt, requestedAt time.Time) error
	ClearChallenge(ctx context.Context, id int64) error
	VerifyChallenge(ctx context.Context, id int64, presentedHash string, now time.Time, maxAttempts int, lockout time.Duration) (*models.ChallengeResult, error)
}

// OTPService runs the one-time-code challenge flow: request a code by
// phone, deliver it by SMS, verify it with attempt counting and lockout
type OTPService struct {
	principals  ChallengeStore
	sms         SMSService
	alerts      AlertService
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	cfg         config.OTPConfig
	now         func() time.Time
}

// NewOTPService creates a new OTPService
func NewOTPService(principals ChallengeStore, sms SMSService, alerts AlertService, logger *slog.Logger, auditLogger *pkglogger.AuditLogger, cfg config.OTPConfig) *OTPService {
	return &OTPService{
		principals:  principals,
		sms:         sms,
		alerts:      alerts,
		logger:      logger,
		auditLogger: auditLogger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetClock overrides the time source, for deterministic cooldown and
// lockout tests
func (s *OTPService) SetClock(now func() time.Time) {
	s.now = now
}

// HashCode returns the hex SHA-256 digest under which challenge codes are
// stored. Codes are short-lived and high-entropy per attempt window, so a
// fast hash with constant-time comparison is sufficient here.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// generateCode produces a uniformly random numeric code of the given length
func generateCode(length int) (string, error) {
	const digits = "0123456789"

	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("failed to generate code digit: %w", err)
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}

// Request issues a new challenge for a phone number and delivers it by SMS.
// The code is persisted before the send; if delivery fails the stored
// challenge is rolled back so the cooldown never charges for a code the
// customer could not have received.
func (s *OTPService) Request(ctx context.Context, rawPhone, ipAddress string) error {
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	principal, err := s.principals.GetOrCreateByPhone(ctx, normalized)
	if err != nil {
		s.logger.Error("failed to resolve principal for challenge", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if principal.Status != "active" {
		s.auditLogger.LogChallengeEvent("otp_request_blocked", principal.ID, ipAddress, false)
		return models.ErrAccountDisabled
	}

	now := s.now()
	if principal.Locked(now) {
		s.auditLogger.LogChallengeEvent("otp_request_blocked", principal.ID, ipAddress, false)
		return &models.LockoutError{RetryAfter: principal.LockedUntil.Sub(now)}
	}

	if principal.VerificationRequested != nil {
		elapsed := now.Sub(*principal.VerificationRequested)
		if elapsed < s.cfg.Cooldown {
			return &models.CooldownError{RetryAfter: s.cfg.Cooldown - elapsed}
		}
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		s.logger.Error("failed to generate challenge code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.principals.SetChallenge(ctx, principal.ID, HashCode(code), now.Add(s.cfg.CodeTTL), now); err != nil {
		s.logger.Error("failed to store challenge", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sms.SendVerificationCode(ctx, normalized, code); err != nil {
		if clearErr := s.principals.ClearChallenge(ctx, principal.ID); clearErr != nil {
			s.logger.Error("failed to roll back undelivered challenge",
				slog.Int64("principal_id", principal.ID),
				slog.Any("error", clearErr),
			)
		}
		s.auditLogger.LogChallengeEvent("otp_delivery_failed", principal.ID, ipAddress, false)
		return models.ErrDeliveryFailed
	}

	s.auditLogger.LogChallengeEvent("otp_requested", principal.ID, ipAddress, true)
	return nil
}

// Verify checks a presented code against the pending challenge. Attempt
// counting and the lockout transition happen atomically in the store; this
// layer maps the outcome to caller-facing errors and fires the lockout
// alert exactly once, on the attempt that engaged it.
func (s *OTPService) Verify(ctx context.Context, rawPhone, code, ipAddress string) (*models.Principal, error) {
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	principal, err := s.principals.GetByPhone(ctx, normalized)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Indistinguishable from an expired code, so verify cannot
			// be used to probe which phone numbers exist.
			return nil, models.ErrChallengeExpired
		}
		s.logger.Error("failed to load principal for verification", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if principal.Status != "active" {
		s.auditLogger.LogChallengeEvent("otp_verify_blocked", principal.ID, ipAddress, false)
		return nil, models.ErrAccountDisabled
	}

	now := s.now()
	result, err := s.principals.VerifyChallenge(ctx, principal.ID, HashCode(code), now, s.cfg.MaxAttempts, s.cfg.LockoutDuration)
	if err != nil {
		s.logger.Error("failed to verify challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	switch result.Outcome {
	case models.ChallengeConsumed:
		s.auditLogger.LogChallengeEvent("otp_verified", principal.ID, ipAddress, true)
		return principal, nil

	case models.ChallengeExpired:
		s.auditLogger.LogChallengeEvent("otp_verify_failed", principal.ID, ipAddress, false)
		return nil, models.ErrChallengeExpired

	case models.ChallengeLockedOut:
		s.auditLogger.LogChallengeEvent("otp_verify_locked", principal.ID, ipAddress, false)
		retryAfter := s.cfg.LockoutDuration
		if result.LockedUntil != nil {
			retryAfter = result.LockedUntil.Sub(now)
		}
		return nil, &models.LockoutError{RetryAfter: retryAfter}

	case models.ChallengeMismatch:
		s.auditLogger.LogChallengeEvent("otp_verify_failed", principal.ID, ipAddress, false)

		// LockedUntil set on a mismatch means this attempt crossed the
		// threshold and engaged the lockout.
		if result.LockedUntil != nil {
			s.logger.Warn("challenge lockout engaged",
				slog.Int64("principal_id", principal.ID),
				slog.Int("attempts", result.Attempts),
			)
			if principal.Email != nil {
				if alertErr := s.alerts.SendLockoutAlert(ctx, *principal.Email, *result.LockedUntil); alertErr != nil {
					s.logger.Error("failed to send lockout alert", slog.Any("error", alertErr))
				}
			}
			return nil, &models.LockoutError{RetryAfter: result.LockedUntil.Sub(now)}
		}

		return nil, models.ErrChallengeMismatch

	default:
		return nil, models.ErrInternalServer
	}
}
