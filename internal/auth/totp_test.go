package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	key := []byte("0123456789abcdef0123456789abcdef")
	tm, err := NewTOTPManager(key, "Storefront Back Office")
	require.NoError(t, err)
	return tm
}

func TestNewTOTPManager_KeyLength(t *testing.T) {
	_, err := NewTOTPManager([]byte("too-short"), "test")
	assert.Error(t, err)

	_, err = NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "test")
	assert.NoError(t, err)
}

func TestTOTPManager_EncryptDecryptRoundTrip(t *testing.T) {
	tm := testTOTPManager(t)

	secret := []byte("JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")
	encrypted, nonce, err := tm.EncryptSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, encrypted)
	assert.Len(t, nonce, 12)

	decrypted, err := tm.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, decrypted)
}

func TestTOTPManager_DecryptWithWrongNonce(t *testing.T) {
	tm := testTOTPManager(t)

	encrypted, _, err := tm.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	wrongNonce := make([]byte, 12)
	_, err = tm.DecryptSecret(encrypted, wrongNonce)
	assert.Error(t, err)
}

func TestTOTPManager_GenerateSecretWithQR(t *testing.T) {
	tm := testTOTPManager(t)

	encrypted, nonce, secret, qrDataURL, err := tm.GenerateSecretWithQR("manager@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, encrypted)
	assert.Len(t, nonce, 12)
	assert.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(qrDataURL, "data:image/png;base64,"))

	// The encrypted blob must round-trip back to the plaintext secret.
	decrypted, err := tm.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, string(decrypted))
}

func TestTOTPManager_ValidateTOTP(t *testing.T) {
	tm := testTOTPManager(t)

	_, _, secret, _, err := tm.GenerateSecretWithQR("manager@example.com")
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tm.SetClock(func() time.Time { return at })

	code, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)

	valid, err := tm.ValidateTOTP([]byte(secret), code)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = tm.ValidateTOTP([]byte(secret), "000000")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_ValidateTOTP_ClockDrift(t *testing.T) {
	tm := testTOTPManager(t)

	_, _, secret, _, err := tm.GenerateSecretWithQR("manager@example.com")
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)

	// One step behind still validates.
	tm.SetClock(func() time.Time { return at.Add(30 * time.Second) })
	valid, err := tm.ValidateTOTP([]byte(secret), code)
	require.NoError(t, err)
	assert.True(t, valid)

	// Three steps behind does not.
	tm.SetClock(func() time.Time { return at.Add(90 * time.Second) })
	valid, err = tm.ValidateTOTP([]byte(secret), code)
	require.NoError(t, err)
	assert.False(t, valid)
}
