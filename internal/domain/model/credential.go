package model

import (
	"fmt"
	"strings"
	"time"
)

// Credential is one stored secret. Secret always holds the sealed form
// produced by the cipher package; cleartext only exists transiently while a
// secret is being revealed or re-encrypted.
type Credential struct {
	ID        string
	Service   string
	Username  string
	Secret    []byte
	Website   string
	Category  Category
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialInput carries the user-editable fields for add and update.
// Secret is cleartext here; the vault seals it before it reaches the store.
type CredentialInput struct {
	Service  string
	Username string
	Secret   string
	Website  string
	Category string
	Notes    string
}

// Normalize trims surrounding whitespace from display fields and maps the
// category onto the closed enumeration. Secret and Notes are kept verbatim.
func (in CredentialInput) Normalize() CredentialInput {
	in.Service = strings.TrimSpace(in.Service)
	in.Username = strings.TrimSpace(in.Username)
	in.Website = strings.TrimSpace(in.Website)
	in.Category = string(ParseCategory(in.Category))
	return in
}

// Validate reports ErrInvalidCredential when a required field is empty.
func (in CredentialInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Service) == "":
		return fmt.Errorf("service is required: %w", ErrInvalidCredential)
	case strings.TrimSpace(in.Username) == "":
		return fmt.Errorf("username is required: %w", ErrInvalidCredential)
	case in.Secret == "":
		return fmt.Errorf("secret is required: %w", ErrInvalidCredential)
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate the sealed secret
// held by the store.
func (c Credential) Clone() Credential {
	if c.Secret != nil {
		c.Secret = append([]byte(nil), c.Secret...)
	}
	return c
}

// ListFilter narrows a credential listing. Empty fields match everything.
type ListFilter struct {
	Category   string // "all" or "" disables category filtering
	SearchText string
}

// Revealed is the transient cleartext of one secret. MaskAfter tells the
// presentation layer how long it may keep the value on screen.
type Revealed struct {
	ID        string
	Secret    string
	MaskAfter time.Duration
}

// Stats summarises the unlocked vault for the header counters.
type Stats struct {
	Total         int
	SecurityScore int
	ByCategory    map[Category]int
}

// PlainCredential is a credential with a cleartext secret. It only exists
// while converting to or from a foreign format such as KDBX.
type PlainCredential struct {
	ID string
	CredentialInput
	CreatedAt time.Time
	UpdatedAt time.Time
}
