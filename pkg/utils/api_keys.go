package utils

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateSecret returns length random bytes, URL-safe base64 encoded. Used for SECRET_KEY and
// CRON_SECRET values.
func GenerateSecret(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
