package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the session token claims; ID is the user id
type Claims struct {
	jwt.RegisteredClaims
	ID string `json:"id"`
}

// TokenIssuer signs and validates HS256 session tokens
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer creates an issuer for the given signing secret
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("token signing secret is required")
	}
	return &TokenIssuer{
		secret: []byte(secret),
		now:    time.Now,
	}, nil
}

// Issue creates a token for userID. When expires is false the token carries no exp claim.
func (ti *TokenIssuer) Issue(userID string, ttl time.Duration, expires bool) (string, error) {
	claims := Claims{ID: userID}
	if expires {
		claims.ExpiresAt = jwt.NewNumericDate(ti.now().Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse validates tokenString and returns the user id it was issued for
func (ti *TokenIssuer) Parse(tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(ti.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.ID == "" {
		return "", ErrInvalidToken
	}

	return claims.ID, nil
}
