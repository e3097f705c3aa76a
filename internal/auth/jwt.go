// Package auth issues and verifies the bearer tokens that scope API calls and
// push subscriptions to a single marketplace user.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is set on every token this package generates.
const Issuer = "carfeed"

// DefaultTTL is the lifetime of generated tokens when none is given.
const DefaultTTL = 24 * time.Hour

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	// UserID is the authenticated marketplace user.
	UserID string `json:"user_id"`
}

// GenerateToken signs an HS256 token for userID.
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing token: empty secret")
	}
	if userID == "" {
		return "", fmt.Errorf("signing token: empty user id")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies tokenString with secret and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyUser checks that tokenString is valid and issued to userID.
func VerifyUser(secret, tokenString, userID string) error {
	claims, err := ParseToken(secret, tokenString)
	if err != nil {
		return err
	}
	if claims.UserID != userID {
		return fmt.Errorf("%w: issued to a different user", ErrInvalidToken)
	}
	return nil
}
