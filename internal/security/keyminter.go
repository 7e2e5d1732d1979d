package security

import (
	"crypto/rand"
	"math/big"
)

// alphanumericAlphabet is the 62-symbol alphabet short keys and aliases
// are drawn from.
const alphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultMinLen and DefaultMaxLen bound the length drawn by Mint.
const (
	DefaultMinLen = 6
	DefaultMaxLen = 8

	// EscalatedLen is the fallback length used once MaxMintAttempts is
	// exhausted at the default length range.
	EscalatedLen = 10

	// MaxMintAttempts is the number of collision-probed attempts at the
	// default length before escalating to EscalatedLen.
	MaxMintAttempts = 10

	// MaxKeyLen bounds IsWellFormed's length check. Set to the max
	// custom-alias length (URLValidator.ValidateAlias) rather than a
	// minted key's length, since IsWellFormed also gates alias lookups.
	MaxKeyLen = 50
)

// KeyMinter generates cryptographically random short keys and validates
// alias format.
type KeyMinter struct{}

// NewKeyMinter returns a KeyMinter.
func NewKeyMinter() *KeyMinter {
	return &KeyMinter{}
}

// Mint generates a key of length drawn uniformly from [6, 8].
func (m *KeyMinter) Mint() (string, error) {
	n, err := cryptoRandInt(DefaultMaxLen - DefaultMinLen + 1)
	if err != nil {
		return "", err
	}
	return m.MintOfLength(DefaultMinLen + n)
}

// MintOfLength generates a key of the given length, each character
// chosen from the 62-symbol alphanumeric alphabet using crypto/rand.
func (m *KeyMinter) MintOfLength(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		idx, err := cryptoRandInt(len(alphanumericAlphabet))
		if err != nil {
			return "", err
		}
		b[i] = alphanumericAlphabet[idx]
	}
	return string(b), nil
}

// IsWellFormed reports whether key is a plausible minted short key or
// custom alias: non-empty, at most MaxKeyLen chars, and drawn from the
// minted alphanumeric alphabet plus the hyphen/underscore alias
// charset allows.
func (m *KeyMinter) IsWellFormed(key string) bool {
	if key == "" || len(key) > MaxKeyLen {
		return false
	}
	for _, r := range key {
		if !isAlphanumeric(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// cryptoRandInt returns a cryptographically secure random integer in [0, max).
func cryptoRandInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
