// Package security содержит генерацию и проверку API-ключей.
package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateAPIKey возвращает криптографически случайный API-ключ из 64 hex-символов.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIKey возвращает hex-представление SHA-256 хэша ключа.
// В базе хранится только хэш, сам ключ показывается один раз при создании.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// VerifyKey сравнивает два ключа за константное время.
func VerifyKey(got, want string) bool {
	return hmac.Equal([]byte(got), []byte(want))
}
