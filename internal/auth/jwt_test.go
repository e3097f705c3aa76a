package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests"

func TestGenerateAndParse(t *testing.T) {
	tok, err := GenerateToken(testSecret, "u1", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	tok, err := GenerateToken(testSecret, "u1", 0)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), claims.ExpiresAt.Time, 5*time.Second)
}

func TestGenerateToken_RequiresInputs(t *testing.T) {
	_, err := GenerateToken("", "u1", time.Hour)
	assert.Error(t, err)
	_, err = GenerateToken(testSecret, "", time.Hour)
	assert.Error(t, err)
}

func TestParseToken_Rejects(t *testing.T) {
	good, err := GenerateToken(testSecret, "u1", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("other-secret", good)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(testSecret, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "u1",
	})
	signed, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseToken(testSecret, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyUser(t *testing.T) {
	tok, err := GenerateToken(testSecret, "u1", time.Hour)
	require.NoError(t, err)

	assert.NoError(t, VerifyUser(testSecret, tok, "u1"))
	assert.ErrorIs(t, VerifyUser(testSecret, tok, "u2"), ErrInvalidToken)
}
