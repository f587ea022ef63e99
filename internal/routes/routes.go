package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/dmcneil/storefront/internal/auth"
	"github.com/dmcneil/storefront/internal/handlers"
	"github.com/dmcneil/storefront/internal/middleware"
	"github.com/dmcneil/storefront/internal/models"
	"github.com/dmcneil/storefront/internal/ratelimit"
	pkghttp "github.com/dmcneil/storefront/pkg/http"
)

// RegisterRoutes registers all application routes. Every route passes the
// governor under the traffic class it belongs to; security-sensitive
// endpoints carry the tight budgets.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	authenticator *auth.Authenticator,
	governor *ratelimit.Governor,
	ipConfig *pkghttp.IPConfig,
) {
	// Storefront surface: customers authenticate by phone-delivered code.
	router.With(middleware.Govern(governor, ratelimit.ClassOTPRequest, ipConfig)).
		Post("/auth/otp/request", authHandler.RequestOTP)
	router.With(middleware.Govern(governor, ratelimit.ClassOTPVerify, ipConfig)).
		Post("/auth/otp/verify", authHandler.VerifyOTP)

	router.Group(func(r chi.Router) {
		r.Use(authenticator.Authenticate(models.AudienceCustomer))
		r.Use(middleware.Govern(governor, ratelimit.ClassAuthenticatedCustomer, ipConfig))

		r.Post("/auth/logout", authHandler.CustomerLogout)
	})

	// Back-office surface: staff authenticate by email+password with
	// optional TOTP step-up.
	router.With(middleware.Govern(governor, ratelimit.ClassLogin, ipConfig)).
		Post("/backoffice/auth/login", authHandler.StaffLogin)

	router.Group(func(r chi.Router) {
		r.Use(authenticator.Authenticate(models.AudienceStaff))
		r.Use(authenticator.RequireRole(models.RoleOperator))
		r.Use(middleware.Govern(governor, ratelimit.ClassAuthenticatedStaff, ipConfig))

		r.Post("/backoffice/auth/logout", authHandler.StaffLogout)
		r.Post("/backoffice/auth/logout-all", authHandler.StaffLogoutAll)
		r.Post("/backoffice/auth/totp/enroll", authHandler.EnrollTOTP)
		r.Post("/backoffice/auth/totp/activate", authHandler.ConfirmTOTP)
	})
}
