package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinBcryptCost is the lowest work factor the service accepts.
	MinBcryptCost = 10
	// DefaultBcryptCost is the recommended work factor for new hashes.
	DefaultBcryptCost = 12
)

// PasswordHasher hashes and verifies passwords using bcrypt. The encoded hash
// self-describes salt and cost, so verification needs no side channel.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a hasher with the supplied cost, clamped to the
// accepted minimum.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < MinBcryptCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash generates a salted bcrypt hash for the provided password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hashed), nil
}

// Verify compares the provided password against a stored hash. A mismatch is
// reported as false, never as an error; bcrypt's comparison is constant-time.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("verify password: %w", err)
	}

	return true, nil
}

// Cost returns the configured work factor.
func (h *PasswordHasher) Cost() int {
	return h.cost
}
