package cipher

import (
	"fmt"
)

// Sealed values are framed as
//
//	magic(2) | version(1) | suite(1) | nonce | ciphertext | tag
//
// where nonce and tag lengths are fixed by the suite.
const (
	frameVersion = 1
	headerSize   = 4
)

var frameMagic = [2]byte{'T', 'V'}

func (s Suite) sizes() (nonce, tag int, ok bool) {
	switch s {
	case SuiteAES256GCM:
		return 12, 16, true
	case SuiteXChaCha20Poly1305:
		return 24, 16, true
	}
	return 0, 0, false
}

// MarshalBinary encodes s in the framed layout.
func (s Sealed) MarshalBinary() ([]byte, error) {
	nonceSize, tagSize, ok := s.Suite.sizes()
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.Suite, ErrUnknownSuite)
	}
	if len(s.Nonce) != nonceSize || len(s.Tag) != tagSize {
		return nil, fmt.Errorf("sealed value has nonce %d and tag %d bytes, suite %s wants %d and %d",
			len(s.Nonce), len(s.Tag), s.Suite, nonceSize, tagSize)
	}

	out := make([]byte, 0, headerSize+len(s.Nonce)+len(s.Ciphertext)+len(s.Tag))
	out = append(out, frameMagic[0], frameMagic[1], frameVersion, byte(s.Suite))
	out = append(out, s.Nonce...)
	out = append(out, s.Ciphertext...)
	out = append(out, s.Tag...)
	return out, nil
}

// UnmarshalSealed parses the framed layout. Malformed input is reported as
// ErrAuthenticationFailure.
func UnmarshalSealed(data []byte) (Sealed, error) {
	if len(data) < headerSize || data[0] != frameMagic[0] || data[1] != frameMagic[1] {
		return Sealed{}, fmt.Errorf("%w: bad frame header", ErrAuthenticationFailure)
	}
	if data[2] != frameVersion {
		return Sealed{}, fmt.Errorf("%w: frame version %d", ErrAuthenticationFailure, data[2])
	}

	suite := Suite(data[3])
	nonceSize, tagSize, ok := suite.sizes()
	if !ok {
		return Sealed{}, fmt.Errorf("%w: %s", ErrAuthenticationFailure, suite)
	}

	body := data[headerSize:]
	if len(body) < nonceSize+tagSize {
		return Sealed{}, fmt.Errorf("%w: truncated frame", ErrAuthenticationFailure)
	}

	// Copy so the caller may reuse data.
	body = append([]byte(nil), body...)
	return Sealed{
		Suite:      suite,
		Nonce:      body[:nonceSize],
		Ciphertext: body[nonceSize : len(body)-tagSize],
		Tag:        body[len(body)-tagSize:],
	}, nil
}
