// Package cipher implements the vault's key derivation and authenticated
// encryption. Keys come from Argon2id and are split with HKDF-SHA256 into an
// encryption key and a passphrase verifier; payloads are sealed with an AEAD
// suite under a fresh random nonce per call.
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the length of every derived key in bytes.
	KeySize = 32
	// SaltSize is the length of a freshly generated salt.
	SaltSize = 16
	// minSaltSize rejects truncated salts read back from storage.
	minSaltSize = 8

	// Upper bounds on Argon2id cost. Parameters read from storage are checked
	// against these before any work is done, so the worst case for a single
	// derivation is MaxTime passes over MaxMemoryKiB of memory.
	MaxTime      = 10
	MaxMemoryKiB = 256 * 1024
	MaxThreads   = 16

	labelEncryption = "tgvault/v1/encryption"
	labelVerifier   = "tgvault/v1/verifier"
)

// ErrInvalidParams is returned when KDF parameters are outside the bounds.
var ErrInvalidParams = errors.New("invalid key derivation parameters")

// Params are the Argon2id cost parameters. They are persisted next to the
// salt so a vault always unlocks with the parameters it was created with.
type Params struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
}

// DefaultParams returns t=3, m=64 MiB, p=4.
func DefaultParams() Params {
	return Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// Validate reports ErrInvalidParams when p is outside the supported bounds.
func (p Params) Validate() error {
	switch {
	case p.Time < 1 || p.Time > MaxTime:
		return fmt.Errorf("time %d not in [1, %d]: %w", p.Time, MaxTime, ErrInvalidParams)
	case p.Threads < 1 || p.Threads > MaxThreads:
		return fmt.Errorf("threads %d not in [1, %d]: %w", p.Threads, MaxThreads, ErrInvalidParams)
	case p.MemoryKiB < 8*uint32(p.Threads) || p.MemoryKiB > MaxMemoryKiB:
		return fmt.Errorf("memory %d KiB not in [%d, %d]: %w", p.MemoryKiB, 8*uint32(p.Threads), MaxMemoryKiB, ErrInvalidParams)
	}
	return nil
}

// Keys holds the two values derived from a passphrase. Encryption seals the
// vault; Verifier is persisted and compared on unlock. Neither reveals the
// passphrase or the other key.
type Keys struct {
	Encryption []byte
	Verifier   []byte
}

// Wipe zeroes both keys.
func (k Keys) Wipe() {
	Zero(k.Encryption)
	Zero(k.Verifier)
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("rand salt: %w", err)
	}
	return salt, nil
}

// DeriveKeys stretches passphrase with Argon2id and expands the result into
// independent encryption and verifier keys.
func DeriveKeys(passphrase, salt []byte, p Params) (Keys, error) {
	if err := p.Validate(); err != nil {
		return Keys{}, err
	}
	if len(salt) < minSaltSize {
		return Keys{}, fmt.Errorf("salt of %d bytes is too short: %w", len(salt), ErrInvalidParams)
	}

	master := argon2.IDKey(passphrase, salt, p.Time, p.MemoryKiB, p.Threads, KeySize)
	defer Zero(master)

	enc, err := expand(master, salt, labelEncryption)
	if err != nil {
		return Keys{}, err
	}
	ver, err := expand(master, salt, labelVerifier)
	if err != nil {
		Zero(enc)
		return Keys{}, err
	}

	return Keys{Encryption: enc, Verifier: ver}, nil
}

func expand(master, salt []byte, label string) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(label)), out); err != nil {
		return nil, fmt.Errorf("hkdf expand %s: %w", label, err)
	}
	return out, nil
}

// VerifierMatches compares verifiers in constant time.
func VerifierMatches(stored, computed []byte) bool {
	return len(stored) == KeySize && subtle.ConstantTimeCompare(stored, computed) == 1
}
