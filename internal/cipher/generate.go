package cipher

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"
)

const (
	MinGeneratedLength = 8
	MaxGeneratedLength = 64

	// StrongMinLength is the shortest secret Strong accepts.
	StrongMinLength = 12

	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// ErrGeneratorOptions is returned for a length out of range or when every
// character class is disabled.
var ErrGeneratorOptions = errors.New("invalid password generator options")

// GeneratorOptions selects the length and character classes of a generated
// password.
type GeneratorOptions struct {
	Length  int  `json:"length"`
	Upper   bool `json:"upper"`
	Lower   bool `json:"lower"`
	Digits  bool `json:"digits"`
	Symbols bool `json:"symbols"`
}

// DefaultGeneratorOptions returns 16 characters drawn from every class.
func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{Length: 16, Upper: true, Lower: true, Digits: true, Symbols: true}
}

func (o GeneratorOptions) classes() []string {
	var classes []string
	if o.Upper {
		classes = append(classes, upperChars)
	}
	if o.Lower {
		classes = append(classes, lowerChars)
	}
	if o.Digits {
		classes = append(classes, digitChars)
	}
	if o.Symbols {
		classes = append(classes, symbolChars)
	}
	return classes
}

// GeneratePassword returns a random password that contains at least one
// character from every enabled class.
func GeneratePassword(o GeneratorOptions) (string, error) {
	if o.Length < MinGeneratedLength || o.Length > MaxGeneratedLength {
		return "", fmt.Errorf("length %d not in [%d, %d]: %w",
			o.Length, MinGeneratedLength, MaxGeneratedLength, ErrGeneratorOptions)
	}
	classes := o.classes()
	if len(classes) == 0 {
		return "", fmt.Errorf("no character class enabled: %w", ErrGeneratorOptions)
	}
	alphabet := strings.Join(classes, "")

	out := make([]byte, 0, o.Length)
	for _, class := range classes {
		c, err := pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < o.Length {
		c, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the guaranteed characters are not always in front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("rand int: %w", err)
	}
	return int(v.Int64()), nil
}

// Strong reports whether secret has at least StrongMinLength characters and
// contains an ASCII upper-case letter, a digit and a character outside
// [A-Za-z0-9]. Lower-case letters are not required.
func Strong(secret string) bool {
	if utf8.RuneCountInString(secret) < StrongMinLength {
		return false
	}
	var upper, digit, symbol bool
	for _, r := range secret {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			// counted as neither
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	return upper && digit && symbol
}
