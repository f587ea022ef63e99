package http_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/dmcneil/storefront/pkg/http"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
	assert.Empty(t, resp.Details)
}

func TestWriteRetryableError_RoundsUpToWholeSeconds(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteRetryableError(w, 429, "rate_limit_exceeded", "slow down", 1500*time.Millisecond)

	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.Equal(t, 2, resp.RetryAfter)
}

func TestWriteRetryableError_MinimumOneSecond(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteRetryableError(w, 429, "rate_limit_exceeded", "slow down", 10*time.Millisecond)

	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestSetRateLimitHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	resetAt := time.Unix(1900000000, 0)

	pkghttp.SetRateLimitHeaders(w, 60, 12, resetAt)

	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "12", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1900000000", w.Header().Get("X-RateLimit-Reset"))
}

func TestWriteTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded", 30*time.Second)

	assert.Equal(t, 429, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "rate_limit_exceeded", resp.Error)
}

func TestWriteUnauthorized(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteUnauthorized(w, "unauthorized")

	assert.Equal(t, 401, w.Code)

	var resp pkghttp.ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "unauthorized", resp.Error)
}
