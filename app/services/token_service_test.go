package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenService(t *testing.T, ttl time.Duration) TokenService {
	t.Helper()
	svc, err := NewTokenService(testSecret, ttl, "simurgh", "simurgh-api")
	require.NoError(t, err)
	return svc
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)

	token, err := svc.GenerateOperatorToken("operator-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateOperatorToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", claims.OperatorID)
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestTokenService_RejectsEmptyOperator(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)

	_, err := svc.GenerateOperatorToken("")
	assert.Error(t, err)
}

func TestTokenService_RejectsTamperedToken(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)

	token, err := svc.GenerateOperatorToken("operator-1")
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = svc.ValidateOperatorToken(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_RejectsForeignSignature(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)
	other, err := NewTokenService(strings.Repeat("z", 32), time.Hour, "simurgh", "simurgh-api")
	require.NoError(t, err)

	token, err := other.GenerateOperatorToken("operator-1")
	require.NoError(t, err)

	_, err = svc.ValidateOperatorToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_RejectsWrongAudience(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)
	other, err := NewTokenService(testSecret, time.Hour, "simurgh", "someone-else")
	require.NoError(t, err)

	token, err := other.GenerateOperatorToken("operator-1")
	require.NoError(t, err)

	_, err = svc.ValidateOperatorToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenService_RejectsExpiredToken(t *testing.T) {
	svc := newTestTokenService(t, time.Nanosecond)

	token, err := svc.GenerateOperatorToken("operator-1")
	require.NoError(t, err)

	// exp is second-granular; wait past the boundary
	time.Sleep(1100 * time.Millisecond)

	_, err = svc.ValidateOperatorToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour, "simurgh", "simurgh-api")
	assert.Error(t, err)
}
