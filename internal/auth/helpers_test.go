package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mustSign(t *testing.T, m *Manager, typ string) string {
	t.Helper()
	now := time.Now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    "u1",
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}).SignedString(m.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}
