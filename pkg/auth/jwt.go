package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier accepts HMAC-signed tokens carrying a "scope" claim that must
// match the requested scope.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier over a shared HMAC secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses and validates the token, then matches its scope claim. A
// "*" claim grants access to every scope.
func (v *JWTVerifier) Verify(_ context.Context, scopeID, tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrUnauthorized
	}
	scope, _ := claims["scope"].(string)
	if scope != scopeID && scope != "*" {
		return ErrUnauthorized
	}
	return nil
}

// Multi tries each verifier in order, accepting the first success.
type Multi []Verifier

// Verify accepts the token when any member verifier does.
func (m Multi) Verify(ctx context.Context, scopeID, token string) error {
	for _, v := range m {
		if err := v.Verify(ctx, scopeID, token); err == nil {
			return nil
		}
	}
	return ErrUnauthorized
}

// Verify interface compliance.
var (
	_ Verifier = (*JWTVerifier)(nil)
	_ Verifier = Multi(nil)
)
