package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrAuthenticationFailure is returned for any ciphertext that does not
// authenticate: wrong key, flipped bit, truncation, malformed framing or an
// unknown suite. Decryption never returns partial plaintext.
var ErrAuthenticationFailure = errors.New("authentication failed")

// ErrUnknownSuite is returned by ParseSuite for unsupported names.
var ErrUnknownSuite = errors.New("unknown cipher suite")

// Suite identifies an AEAD construction. The numeric value is persisted in
// the sealed framing and must never be reassigned.
type Suite uint8

const (
	SuiteAES256GCM         Suite = 1
	SuiteXChaCha20Poly1305 Suite = 2
)

// String returns the configuration name of the suite.
func (s Suite) String() string {
	switch s {
	case SuiteAES256GCM:
		return "aes-256-gcm"
	case SuiteXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return fmt.Sprintf("suite(%d)", uint8(s))
	}
}

// ParseSuite maps a configuration name to a Suite.
func ParseSuite(name string) (Suite, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "aes-256-gcm":
		return SuiteAES256GCM, nil
	case "xchacha20-poly1305":
		return SuiteXChaCha20Poly1305, nil
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownSuite)
}

func (s Suite) aead(key []byte) (stdcipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}
	switch s {
	case SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("aes.NewCipher: %w", err)
		}
		gcm, err := stdcipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("cipher.NewGCM: %w", err)
		}
		return gcm, nil
	case SuiteXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("chacha20poly1305.NewX: %w", err)
		}
		return aead, nil
	}
	return nil, fmt.Errorf("%s: %w", s, ErrUnknownSuite)
}

// Sealed is one authenticated ciphertext.
type Sealed struct {
	Suite      Suite
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// Encrypt seals plaintext under key with a fresh random nonce. aad is
// authenticated but not encrypted; the same aad must be passed to Decrypt.
func Encrypt(suite Suite, key, plaintext, aad []byte) (Sealed, error) {
	aead, err := suite.aead(key)
	if err != nil {
		return Sealed{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, fmt.Errorf("rand nonce: %w", err)
	}

	// Seal produces ciphertext || tag; split the tag off so callers see both.
	out := aead.Seal(nil, nonce, plaintext, aad)
	split := len(out) - aead.Overhead()

	return Sealed{
		Suite:      suite,
		Nonce:      nonce,
		Ciphertext: out[:split],
		Tag:        out[split:],
	}, nil
}

// Decrypt opens s with key. Every failure is reported as
// ErrAuthenticationFailure.
func Decrypt(s Sealed, key, aad []byte) ([]byte, error) {
	aead, err := s.Suite.aead(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailure, err)
	}
	if len(s.Nonce) != aead.NonceSize() || len(s.Tag) != aead.Overhead() {
		return nil, fmt.Errorf("%w: malformed nonce or tag", ErrAuthenticationFailure)
	}

	buf := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)

	plaintext, err := aead.Open(nil, s.Nonce, buf, aad)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}

// Seal is Encrypt followed by MarshalBinary.
func Seal(suite Suite, key, plaintext, aad []byte) ([]byte, error) {
	s, err := Encrypt(suite, key, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return s.MarshalBinary()
}

// Open is UnmarshalSealed followed by Decrypt.
func Open(key, data, aad []byte) ([]byte, error) {
	s, err := UnmarshalSealed(data)
	if err != nil {
		return nil, err
	}
	return Decrypt(s, key, aad)
}
