package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ErrCredentialMismatch indicates a secret that does not match the stored
// salt/hash pair.
var ErrCredentialMismatch = errors.New("credential mismatch")

// Default scrypt parameters. KeyLength doubles as the salt length, matching
// the derived key size.
const (
	DefaultScryptN   = 32768
	DefaultScryptR   = 8
	DefaultScryptP   = 1
	DefaultKeyLength = 32
)

// Credentials is a salt and the hash derived from a secret with that salt,
// both hex-encoded.
type Credentials struct {
	Salt      string
	TokenHash string
}

// CredentialManager derives and verifies salted scrypt hashes.
type CredentialManager struct {
	n, r, p int
	keyLen  int
}

// NewCredentialManager returns a manager with the default parameters.
func NewCredentialManager() *CredentialManager {
	return NewCredentialManagerWithParams(DefaultScryptN, DefaultScryptR, DefaultScryptP, DefaultKeyLength)
}

// NewCredentialManagerWithParams returns a manager with explicit scrypt
// parameters. Tests use cheap parameters; production should keep the
// defaults.
func NewCredentialManagerWithParams(n, r, p, keyLen int) *CredentialManager {
	return &CredentialManager{n: n, r: r, p: p, keyLen: keyLen}
}

// Derive computes the hex-encoded scrypt key for secret under the
// hex-encoded salt. The derivation is deterministic.
func (m *CredentialManager) Derive(secret, salt string) (string, error) {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("invalid salt encoding: %w", err)
	}
	key, err := scrypt.Key([]byte(secret), saltBytes, m.n, m.r, m.p, m.keyLen)
	if err != nil {
		return "", fmt.Errorf("key derivation failed: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Issue generates a fresh random salt and derives the hash for secret.
func (m *CredentialManager) Issue(secret string) (Credentials, error) {
	saltBytes := make([]byte, m.keyLen)
	if _, err := rand.Read(saltBytes); err != nil {
		return Credentials{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	salt := hex.EncodeToString(saltBytes)
	hash, err := m.Derive(secret, salt)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Salt: salt, TokenHash: hash}, nil
}

// Verify derives the hash for secret under salt and compares it to
// expected in constant time, returning ErrCredentialMismatch on
// inequality.
func (m *CredentialManager) Verify(secret, salt, expected string) error {
	derived, err := m.Derive(secret, salt)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(expected)) != 1 {
		return ErrCredentialMismatch
	}
	return nil
}
