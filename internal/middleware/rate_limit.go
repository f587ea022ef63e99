package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/dmcneil/storefront/internal/auth"
	"github.com/dmcneil/storefront/internal/ratelimit"
	httputil "github.com/dmcneil/storefront/pkg/http"
)

// GlobalIPRateLimit is a coarse per-IP limit applied in front of the whole
// router. It only catches floods; per-class budgets are enforced by the
// governor after routing.
func GlobalIPRateLimit(requestsPerMinute int) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteTooManyRequests(w, "Too many requests", time.Minute)
		}),
	)
}

// Govern enforces the class budget for a route. Authenticated requests are
// keyed by principal id so a NAT full of customers never shares one
// budget; anonymous requests fall back to the client IP.
func Govern(governor *ratelimit.Governor, class ratelimit.Class, ipConfig *httputil.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := ""
			if principal := auth.GetPrincipalFromContext(r); principal != nil {
				identity = "p:" + strconv.FormatInt(principal.ID, 10)
			} else {
				identity = "ip:" + httputil.ExtractClientIP(r, ipConfig)
			}

			endpoint := r.Method + " " + r.URL.Path
			decision := governor.Admit(identity, endpoint, class)

			if decision.Limit > 0 {
				httputil.SetRateLimitHeaders(w, decision.Limit, decision.Remaining, decision.ResetAt)
			}

			if !decision.Allowed {
				httputil.WriteTooManyRequests(w, "Rate limit exceeded", decision.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
