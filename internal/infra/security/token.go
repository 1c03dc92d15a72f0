package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateSecureToken returns a base64 URL-safe random string using the
// specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates the SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// GenerateBackupCode returns one human-transcribable backup code formatted as
// four groups of four base36 characters (XXXX-XXXX-XXXX-XXXX).
func GenerateBackupCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate backup code: %w", err)
	}

	chars := make([]byte, 16)
	for i, b := range buf {
		chars[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}

	code := string(chars)
	return strings.Join([]string{code[0:4], code[4:8], code[8:12], code[12:16]}, "-"), nil
}

// NormalizeBackupCode strips separators and upper-cases user input so codes
// match regardless of how they were transcribed.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
