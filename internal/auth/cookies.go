package auth

import (
	"net/http"
	"time"

	"github.com/dmcneil/storefront/internal/models"
)

const (
	// CustomerCookieName carries the storefront session credential
	CustomerCookieName = "storefront_session"
	// StaffCookieName carries the back-office session credential
	StaffCookieName = "backoffice_session"

	staffCookiePath = "/backoffice"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only
}

// cookieName returns the cookie name bound to an audience
func cookieName(audience models.Audience) string {
	if audience == models.AudienceStaff {
		return StaffCookieName
	}
	return CustomerCookieName
}

// cookiePath scopes staff cookies to the back-office surface so a staff
// credential is never sent with storefront requests
func cookiePath(audience models.Audience) string {
	if audience == models.AudienceStaff {
		return staffCookiePath
	}
	return "/"
}

// SetSessionCookie sets a session credential in an httpOnly cookie for the
// given audience
func SetSessionCookie(w http.ResponseWriter, audience models.Audience, token string, ttl time.Duration, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     cookieName(audience),
		Value:    token,
		Path:     cookiePath(audience),
		Domain:   config.Domain,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true, // Critical: prevents JavaScript access (XSS protection)
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie clears the session credential cookie for an audience
func ClearSessionCookie(w http.ResponseWriter, audience models.Audience, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     cookieName(audience),
		Value:    "",
		Path:     cookiePath(audience),
		Domain:   config.Domain,
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// GetSessionCookie retrieves the session credential for an audience
func GetSessionCookie(r *http.Request, audience models.Audience) (string, error) {
	cookie, err := r.Cookie(cookieName(audience))
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
