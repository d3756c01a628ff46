package htlc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SecretSize is the byte length of both the secret and its hash.
const SecretSize = 32

// Secret is the preimage whose knowledge proves entitlement to claim a lock.
type Secret [SecretSize]byte

// Hashlock is the SHA-256 digest of a Secret. Both legs of a swap carry the
// same hashlock; SHA-256 is used on every supported ledger so the coordinator
// never has to translate between digest algorithms.
type Hashlock [SecretSize]byte

// GenerateSecret returns a fresh random secret and its hashlock.
func GenerateSecret() (Secret, Hashlock, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return Secret{}, Hashlock{}, fmt.Errorf("reading random secret: %w", err)
	}
	return s, HashSecret(s), nil
}

// HashSecret computes the hashlock for a secret.
func HashSecret(s Secret) Hashlock {
	return Hashlock(sha256.Sum256(s[:]))
}

// Verify reports whether secret is the preimage of hashlock. Comparison is
// exact-byte; no normalization of any kind.
func Verify(secret Secret, hashlock Hashlock) bool {
	return HashSecret(secret) == hashlock
}

func (s Secret) Hex() string   { return hex.EncodeToString(s[:]) }
func (h Hashlock) Hex() string { return hex.EncodeToString(h[:]) }

// ParseSecret decodes a hex-encoded secret.
func ParseSecret(s string) (Secret, error) {
	var out Secret
	if err := parse32(s, out[:]); err != nil {
		return Secret{}, fmt.Errorf("invalid secret: %w", err)
	}
	return out, nil
}

// ParseHashlock decodes a hex-encoded hashlock.
func ParseHashlock(s string) (Hashlock, error) {
	var out Hashlock
	if err := parse32(s, out[:]); err != nil {
		return Hashlock{}, fmt.Errorf("invalid hashlock: %w", err)
	}
	return out, nil
}

func parse32(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != SecretSize {
		return fmt.Errorf("expected %d bytes, got %d", SecretSize, len(b))
	}
	copy(dst, b)
	return nil
}
