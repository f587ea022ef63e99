package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmcneil/storefront/internal/auth"
	"github.com/dmcneil/storefront/internal/config"
	"github.com/dmcneil/storefront/internal/models"
	"github.com/dmcneil/storefront/internal/services"
	pkghttp "github.com/dmcneil/storefront/pkg/http"
)

// OTPServiceInterface defines the challenge flow operations
type OTPServiceInterface interface {
	Request(ctx context.Context, phone, ipAddress string) error
	Verify(ctx context.Context, phone, code, ipAddress string) (*models.Principal, error)
}

// AuthServiceInterface defines session establishment and logout operations
type AuthServiceInterface interface {
	EstablishCustomerSession(ctx context.Context, principal *models.Principal, ipAddress, userAgent string) (*services.SessionResponse, error)
	StaffLogin(ctx context.Context, email, password, totpCode, ipAddress, userAgent string) (*services.SessionResponse, error)
	Logout(ctx context.Context, principalID int64, sessionID, ipAddress string) error
	LogoutAll(ctx context.Context, principalID int64, ipAddress string) (int64, error)
	EnrollTOTP(ctx context.Context, principalID int64) (*services.TOTPEnrollment, error)
	ConfirmTOTP(ctx context.Context, principalID int64, code string) error
}

// AuthHandler handles authentication HTTP requests for both surfaces
type AuthHandler struct {
	otp       OTPServiceInterface
	service   AuthServiceInterface
	ipConfig  *pkghttp.IPConfig
	cookieCfg auth.CookieConfig
	authCfg   config.AuthConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(otp OTPServiceInterface, service AuthServiceInterface, ipConfig *pkghttp.IPConfig, cookieCfg auth.CookieConfig, authCfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		otp:       otp,
		service:   service,
		ipConfig:  ipConfig,
		cookieCfg: cookieCfg,
		authCfg:   authCfg,
	}
}

// Request DTOs

// OTPRequestRequest represents the request body for requesting a code
type OTPRequestRequest struct {
	Phone string `json:"phone" validate:"required,min=8,max=20"`
}

// OTPVerifyRequest represents the request body for verifying a code
type OTPVerifyRequest struct {
	Phone string `json:"phone" validate:"required,min=8,max=20"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// StaffLoginRequest represents the request body for back-office login
type StaffLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code" validate:"omitempty,len=6,numeric"`
}

// TOTPConfirmRequest represents the request body for confirming enrollment
type TOTPConfirmRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// RequestOTP handles POST /auth/otp/request. The response is identical for
// new, existing, and disabled accounts so the endpoint cannot be used to
// probe which phone numbers are registered.
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	err := h.otp.Request(r.Context(), req.Phone, ipAddress)
	if err != nil {
		var cooldown *models.CooldownError
		var lockout *models.LockoutError
		switch {
		case errors.As(err, &cooldown):
			pkghttp.WriteRetryableError(w, http.StatusTooManyRequests, "challenge_cooldown",
				"A code was sent recently. Please wait before requesting another.", cooldown.RetryAfter)
		case errors.As(err, &lockout):
			pkghttp.WriteRetryableError(w, http.StatusTooManyRequests, "account_locked",
				"Too many failed attempts. Please try again later.", lockout.RetryAfter)
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid phone number")
		case errors.Is(err, models.ErrDeliveryFailed):
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "delivery_failed",
				"Could not deliver the code. Please try again.")
		case errors.Is(err, models.ErrAccountDisabled):
			// Same body as success.
			writeAccepted(w)
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeAccepted(w)
}

func writeAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": "If the number is valid, a code is on its way.",
	})
}

// VerifyOTP handles POST /auth/otp/verify. A consumed challenge mints a
// storefront session delivered both as JSON and as the audience cookie.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	principal, err := h.otp.Verify(r.Context(), req.Phone, req.Code, ipAddress)
	if err != nil {
		var lockout *models.LockoutError
		switch {
		case errors.As(err, &lockout):
			pkghttp.WriteRetryableError(w, http.StatusTooManyRequests, "account_locked",
				"Too many failed attempts. Please try again later.", lockout.RetryAfter)
		case errors.Is(err, models.ErrChallengeExpired),
			errors.Is(err, models.ErrChallengeMismatch),
			errors.Is(err, models.ErrAccountDisabled):
			pkghttp.WriteUnauthorized(w, "Invalid or expired code")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid phone number")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	resp, err := h.service.EstablishCustomerSession(r.Context(), principal, ipAddress, userAgent)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetSessionCookie(w, models.AudienceCustomer, resp.Token, h.authCfg.CustomerSessionTTL, h.cookieCfg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// StaffLogin handles POST /backoffice/auth/login
func (h *AuthHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	var req StaffLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	resp, err := h.service.StaffLogin(r.Context(), req.Email, req.Password, req.TOTPCode, ipAddress, userAgent)
	if err != nil {
		var lockout *models.LockoutError
		switch {
		case errors.Is(err, models.ErrTOTPRequired):
			pkghttp.WriteError(w, http.StatusUnauthorized, "totp_required", "A TOTP code is required")
		case errors.Is(err, models.ErrSessionActive):
			pkghttp.WriteConflict(w, "An active session already exists for this account")
		case errors.As(err, &lockout):
			pkghttp.WriteRetryableError(w, http.StatusTooManyRequests, "account_locked",
				"Too many failed attempts. Please try again later.", lockout.RetryAfter)
		case errors.Is(err, models.ErrUnauthorized),
			errors.Is(err, models.ErrAccountDisabled):
			// Generic refusal for credential and account state failures
			// to prevent account enumeration.
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.SetSessionCookie(w, models.AudienceStaff, resp.Token, h.authCfg.StaffSessionTTL, h.cookieCfg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// logout revokes the current session and clears the audience cookie
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request, audience models.Audience) {
	principal := auth.GetPrincipalFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.Logout(r.Context(), principal.ID, principal.SessionID, ipAddress); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearSessionCookie(w, audience, h.cookieCfg)
	w.WriteHeader(http.StatusNoContent)
}

// CustomerLogout handles POST /auth/logout
func (h *AuthHandler) CustomerLogout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, models.AudienceCustomer)
}

// StaffLogout handles POST /backoffice/auth/logout
func (h *AuthHandler) StaffLogout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, models.AudienceStaff)
}

// StaffLogoutAll handles POST /backoffice/auth/logout-all, revoking every
// live session of the calling principal
func (h *AuthHandler) StaffLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	revoked, err := h.service.LogoutAll(r.Context(), principal.ID, ipAddress)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearSessionCookie(w, models.AudienceStaff, h.cookieCfg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int64{"revoked": revoked})
}

// EnrollTOTP handles POST /backoffice/auth/totp/enroll
func (h *AuthHandler) EnrollTOTP(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	enrollment, err := h.service.EnrollTOTP(r.Context(), principal.ID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrForbidden):
			pkghttp.WriteForbidden(w, "TOTP enrollment is not available for this account")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "TOTP is not configured")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(enrollment)
}

// ConfirmTOTP handles POST /backoffice/auth/totp/activate
func (h *AuthHandler) ConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req TOTPConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ConfirmTOTP(r.Context(), principal.ID, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid TOTP code")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "No enrollment in progress")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
