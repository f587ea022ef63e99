package handlers

import (
	"context"

	"github.com/dmcneil/storefront/internal/models"
	"github.com/dmcneil/storefront/internal/services"
)

// MockOTPService implements OTPServiceInterface for testing
type MockOTPService struct {
	RequestFunc func(ctx context.Context, phone, ipAddress string) error
	VerifyFunc  func(ctx context.Context, phone, code, ipAddress string) (*models.Principal, error)
}

func (m *MockOTPService) Request(ctx context.Context, phone, ipAddress string) error {
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, phone, ipAddress)
	}
	return nil
}

func (m *MockOTPService) Verify(ctx context.Context, phone, code, ipAddress string) (*models.Principal, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, phone, code, ipAddress)
	}
	return nil, models.ErrChallengeExpired
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	EstablishCustomerSessionFunc func(ctx context.Context, principal *models.Principal, ipAddress, userAgent string) (*services.SessionResponse, error)
	StaffLoginFunc               func(ctx context.Context, email, password, totpCode, ipAddress, userAgent string) (*services.SessionResponse, error)
	LogoutFunc                   func(ctx context.Context, principalID int64, sessionID, ipAddress string) error
	LogoutAllFunc                func(ctx context.Context, principalID int64, ipAddress string) (int64, error)
	EnrollTOTPFunc               func(ctx context.Context, principalID int64) (*services.TOTPEnrollment, error)
	ConfirmTOTPFunc              func(ctx context.Context, principalID int64, code string) error
}

func (m *MockAuthService) EstablishCustomerSession(ctx context.Context, principal *models.Principal, ipAddress, userAgent string) (*services.SessionResponse, error) {
	if m.EstablishCustomerSessionFunc != nil {
		return m.EstablishCustomerSessionFunc(ctx, principal, ipAddress, userAgent)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) StaffLogin(ctx context.Context, email, password, totpCode, ipAddress, userAgent string) (*services.SessionResponse, error) {
	if m.StaffLoginFunc != nil {
		return m.StaffLoginFunc(ctx, email, password, totpCode, ipAddress, userAgent)
	}
	return nil, models.ErrUnauthorized
}

func (m *MockAuthService) Logout(ctx context.Context, principalID int64, sessionID, ipAddress string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, principalID, sessionID, ipAddress)
	}
	return nil
}

func (m *MockAuthService) LogoutAll(ctx context.Context, principalID int64, ipAddress string) (int64, error) {
	if m.LogoutAllFunc != nil {
		return m.LogoutAllFunc(ctx, principalID, ipAddress)
	}
	return 0, nil
}

func (m *MockAuthService) EnrollTOTP(ctx context.Context, principalID int64) (*services.TOTPEnrollment, error) {
	if m.EnrollTOTPFunc != nil {
		return m.EnrollTOTPFunc(ctx, principalID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) ConfirmTOTP(ctx context.Context, principalID int64, code string) error {
	if m.ConfirmTOTPFunc != nil {
		return m.ConfirmTOTPFunc(ctx, principalID, code)
	}
	return nil
}
