package utils

import (
	"strings"

	"github.com/google/uuid"
)

func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCertificateCode folds a user-typed code onto the stored form.
// Codes are issued upper case.
func NormalizeCertificateCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// cache keys

func CertificateVerifyKey(code string) string {
	return "certificates:verify:v1:" + NormalizeCertificateCode(code)
}

func IdempotencyKey(scope, userID, key string) string {
	return "idem:v1:" + scope + ":" + userID + ":" + key
}
