package security

import (
	"strings"
	"testing"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	hasher := NewPasswordHasher(MinBcryptCost)

	hash, err := hasher.Hash("Passw0rd!")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hash == "Passw0rd!" {
		t.Fatalf("hash must not equal the plaintext")
	}

	ok, err := hasher.Verify("Passw0rd!", hash)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected correct password to verify")
	}
}

func TestPasswordHasher_WrongPasswordFails(t *testing.T) {
	hasher := NewPasswordHasher(MinBcryptCost)

	hash, err := hasher.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := hasher.Verify("battery-staple", hash)
	if err != nil {
		t.Fatalf("Verify returned error on mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected wrong password to fail verification")
	}
}

func TestPasswordHasher_SaltedHashesDiffer(t *testing.T) {
	hasher := NewPasswordHasher(MinBcryptCost)

	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	if first == second {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestNewPasswordHasher_ClampsLowCost(t *testing.T) {
	hasher := NewPasswordHasher(4)
	if hasher.Cost() != DefaultBcryptCost {
		t.Fatalf("expected cost below the minimum to clamp to %d, got %d", DefaultBcryptCost, hasher.Cost())
	}

	hash, err := hasher.Hash("anything")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Fatalf("expected bcrypt-encoded hash, got %q", hash)
	}
}
