package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcneil/storefront/internal/models"
)

type mockSessionValidator struct {
	ValidateFunc func(ctx context.Context, sessionID string, principalID int64, tokenHash string) error
}

func (m *mockSessionValidator) Validate(ctx context.Context, sessionID string, principalID int64, tokenHash string) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, sessionID, principalID, tokenHash)
	}
	return nil
}

func testAuthenticator(sessions SessionValidator) (*Authenticator, *CredentialManager) {
	cm := NewCredentialManager(testSecret)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthenticator(cm, sessions, nil, logger), cm
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate_BearerToken(t *testing.T) {
	var gotHash string
	sessions := &mockSessionValidator{
		ValidateFunc: func(_ context.Context, sessionID string, principalID int64, tokenHash string) error {
			assert.Equal(t, "sess-1", sessionID)
			assert.Equal(t, int64(42), principalID)
			gotHash = tokenHash
			return nil
		},
	}
	authn, cm := testAuthenticator(sessions)

	token, err := cm.Issue(42, models.RoleCustomer, "sess-1", time.Hour)
	require.NoError(t, err)

	var principal *models.PrincipalInfo
	handler := authn.Authenticate(models.AudienceCustomer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = GetPrincipalFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HashToken(token), gotHash)
	require.NotNil(t, principal)
	assert.Equal(t, int64(42), principal.ID)
	assert.Equal(t, models.RoleCustomer, principal.Role)
	assert.Equal(t, "sess-1", principal.SessionID)
}

func TestAuthenticate_CookieFallback(t *testing.T) {
	authn, cm := testAuthenticator(&mockSessionValidator{})

	token, err := cm.Issue(7, models.RoleManager, "sess-2", time.Hour)
	require.NoError(t, err)

	var called bool
	handler := authn.Authenticate(models.AudienceStaff)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/backoffice/orders", nil)
	req.AddCookie(&http.Cookie{Name: StaffCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestAuthenticate_HeaderWinsOverCookie(t *testing.T) {
	var gotPrincipal int64
	sessions := &mockSessionValidator{
		ValidateFunc: func(_ context.Context, _ string, principalID int64, _ string) error {
			gotPrincipal = principalID
			return nil
		},
	}
	authn, cm := testAuthenticator(sessions)

	headerToken, err := cm.Issue(1, models.RoleCustomer, "sess-h", time.Hour)
	require.NoError(t, err)
	cookieToken, err := cm.Issue(2, models.RoleCustomer, "sess-c", time.Hour)
	require.NoError(t, err)

	var called bool
	handler := authn.Authenticate(models.AudienceCustomer)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+headerToken)
	req.AddCookie(&http.Cookie{Name: CustomerCookieName, Value: cookieToken})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gotPrincipal)
}

func TestAuthenticate_StaffAcceptedOnCustomerSurface(t *testing.T) {
	authn, cm := testAuthenticator(&mockSessionValidator{})

	token, err := cm.Issue(9, models.RoleOperator, "sess-op", time.Hour)
	require.NoError(t, err)

	var called bool
	handler := authn.Authenticate(models.AudienceCustomer)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestAuthenticate_Denials(t *testing.T) {
	authn, cm := testAuthenticator(&mockSessionValidator{
		ValidateFunc: func(_ context.Context, sessionID string, _ int64, _ string) error {
			if sessionID == "sess-dead" {
				return models.ErrSessionInvalid
			}
			return nil
		},
	})

	liveCustomer, err := cm.Issue(1, models.RoleCustomer, "sess-live", time.Hour)
	require.NoError(t, err)
	deadCustomer, err := cm.Issue(1, models.RoleCustomer, "sess-dead", time.Hour)
	require.NoError(t, err)
	_, err = cm.Issue(2, models.RoleOperator, "sess-staff", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		audience models.Audience
		setup    func(r *http.Request)
	}{
		{
			name:     "no credential at all",
			audience: models.AudienceCustomer,
			setup:    func(r *http.Request) {},
		},
		{
			name:     "malformed authorization header",
			audience: models.AudienceCustomer,
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			},
		},
		{
			name:     "garbage bearer token",
			audience: models.AudienceCustomer,
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer not-a-token")
			},
		},
		{
			name:     "revoked session",
			audience: models.AudienceCustomer,
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+deadCustomer)
			},
		},
		{
			name:     "customer credential on staff surface",
			audience: models.AudienceStaff,
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+liveCustomer)
			},
		},
		{
			name:     "wrong audience cookie ignored",
			audience: models.AudienceStaff,
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: CustomerCookieName, Value: liveCustomer})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			handler := authn.Authenticate(tt.audience)(okHandler(&called))

			req := httptest.NewRequest(http.MethodGet, "/anything", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			// Every credential-level denial looks identical from outside.
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
			assert.JSONEq(t, `{"error":"unauthorized","message":"Authentication required"}`, rec.Body.String())
		})
	}
}

func TestDenialKind(t *testing.T) {
	tests := []struct {
		cause error
		want  string
	}{
		{models.ErrMissingCredential, DenialMissingCredential},
		{models.ErrInvalidCredential, DenialInvalidCredential},
		{models.ErrSessionInvalid, DenialSessionInvalid},
		{models.ErrInsufficientRole, DenialInsufficientRole},
		{errors.New("anything else"), DenialInvalidCredential},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, denialKind(tt.cause))
	}
}

func TestRequireRole(t *testing.T) {
	authn, cm := testAuthenticator(&mockSessionValidator{})

	operator, err := cm.Issue(1, models.RoleOperator, "sess-op", time.Hour)
	require.NoError(t, err)
	owner, err := cm.Issue(2, models.RoleOwner, "sess-own", time.Hour)
	require.NoError(t, err)

	run := func(token string, min models.Role) *httptest.ResponseRecorder {
		var called bool
		handler := authn.Authenticate(models.AudienceStaff)(
			authn.RequireRole(min)(okHandler(&called)),
		)
		req := httptest.NewRequest(http.MethodGet, "/backoffice/settings", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, run(operator, models.RoleOperator).Code)
	assert.Equal(t, http.StatusUnauthorized, run(operator, models.RoleManager).Code)
	assert.Equal(t, http.StatusOK, run(owner, models.RoleManager).Code)
	assert.Equal(t, http.StatusOK, run(owner, models.RoleOwner).Code)
}

func TestRequireRole_WithoutAuthenticate(t *testing.T) {
	authn, _ := testAuthenticator(&mockSessionValidator{})

	var called bool
	handler := authn.RequireRole(models.RoleOperator)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/backoffice/settings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}
