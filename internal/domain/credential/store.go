// Package credential holds the in-memory credential collection that backs an
// unlocked vault. A Store is not safe for concurrent use; the vault session
// serialises access and mutates clones.
package credential

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

// Store is an insertion-ordered set of credentials keyed by id. Secrets are
// held in sealed form and never interpreted here.
type Store struct {
	items []model.Credential
	index map[string]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Load builds a store from previously persisted credentials. Every record is
// validated and ids must be unique.
func Load(creds []model.Credential) (*Store, error) {
	s := &Store{
		items: make([]model.Credential, 0, len(creds)),
		index: make(map[string]int, len(creds)),
	}
	for _, c := range creds {
		if err := validateStored(c); err != nil {
			return nil, err
		}
		if _, dup := s.index[c.ID]; dup {
			return nil, fmt.Errorf("duplicate id %s: %w", c.ID, model.ErrInvalidCredential)
		}
		s.index[c.ID] = len(s.items)
		s.items = append(s.items, c.Clone())
	}
	return s, nil
}

// Len returns the number of credentials.
func (s *Store) Len() int {
	return len(s.items)
}

// Clone returns an independent deep copy.
func (s *Store) Clone() *Store {
	out := &Store{
		items: make([]model.Credential, len(s.items)),
		index: make(map[string]int, len(s.index)),
	}
	for i, c := range s.items {
		out.items[i] = c.Clone()
	}
	for id, i := range s.index {
		out.index[id] = i
	}
	return out
}

// Add validates in and appends a new credential with the given id and sealed
// secret. CreatedAt and UpdatedAt are both set to now.
func (s *Store) Add(id string, in model.CredentialInput, sealed []byte, now time.Time) (model.Credential, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return model.Credential{}, err
	}
	if _, dup := s.index[id]; dup || id == "" {
		return model.Credential{}, fmt.Errorf("id %q unavailable: %w", id, model.ErrInvalidCredential)
	}
	if len(sealed) == 0 {
		return model.Credential{}, fmt.Errorf("sealed secret is required: %w", model.ErrInvalidCredential)
	}

	c := fromInput(id, in, sealed)
	c.CreatedAt = now
	c.UpdatedAt = now

	s.index[id] = len(s.items)
	s.items = append(s.items, c)
	return c.Clone(), nil
}

// Update replaces every field of the credential except ID and CreatedAt.
// UpdatedAt always moves forward, even when the clock does not.
func (s *Store) Update(id string, in model.CredentialInput, sealed []byte, now time.Time) (model.Credential, error) {
	i, ok := s.index[id]
	if !ok {
		return model.Credential{}, fmt.Errorf("update %s: %w", id, model.ErrNotFound)
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return model.Credential{}, err
	}
	if len(sealed) == 0 {
		return model.Credential{}, fmt.Errorf("sealed secret is required: %w", model.ErrInvalidCredential)
	}

	prev := s.items[i]
	c := fromInput(id, in, sealed)
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = now
	if !c.UpdatedAt.After(prev.UpdatedAt) {
		c.UpdatedAt = prev.UpdatedAt.Add(time.Nanosecond)
	}

	s.items[i] = c
	return c.Clone(), nil
}

// Put inserts c, or replaces the record with the same id wholesale. It is
// used when restoring credentials that already carry ids and timestamps.
func (s *Store) Put(c model.Credential) (added bool, err error) {
	if err := validateStored(c); err != nil {
		return false, err
	}
	c = c.Clone()
	if i, ok := s.index[c.ID]; ok {
		s.items[i] = c
		return false, nil
	}
	s.index[c.ID] = len(s.items)
	s.items = append(s.items, c)
	return true, nil
}

// Remove deletes the credential with id.
func (s *Store) Remove(id string) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("remove %s: %w", id, model.ErrNotFound)
	}

	s.items = slices.Delete(s.items, i, i+1)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ID] = j
	}
	return nil
}

// Find returns a copy of the credential with id.
func (s *Store) Find(id string) (model.Credential, error) {
	i, ok := s.index[id]
	if !ok {
		return model.Credential{}, fmt.Errorf("find %s: %w", id, model.ErrNotFound)
	}
	return s.items[i].Clone(), nil
}

// All returns copies of every credential in insertion order.
func (s *Store) All() []model.Credential {
	out := make([]model.Credential, len(s.items))
	for i, c := range s.items {
		out[i] = c.Clone()
	}
	return out
}

// CountByCategory returns how many credentials each category holds.
// Categories with no credentials are present with a zero count.
func (s *Store) CountByCategory() map[model.Category]int {
	out := make(map[model.Category]int, len(model.Categories()))
	for _, info := range model.Categories() {
		out[info.Category] = 0
	}
	for _, c := range s.items {
		out[c.Category]++
	}
	return out
}

// List returns the credentials matching filter, sorted by service using the
// collation rules of locale. Ties are broken by id so the order is total.
// No match yields an empty, non-nil slice.
func (s *Store) List(filter model.ListFilter, locale language.Tag) []model.Credential {
	category := strings.ToLower(strings.TrimSpace(filter.Category))
	matchCategory := category != "" && category != model.CategoryAll

	// Casers and collators carry state and are built per call.
	fold := cases.Fold()
	query := fold.String(strings.TrimSpace(filter.SearchText))

	out := make([]model.Credential, 0, len(s.items))
	for _, c := range s.items {
		if matchCategory && string(c.Category) != category {
			continue
		}
		if query != "" &&
			!strings.Contains(fold.String(c.Service), query) &&
			!strings.Contains(fold.String(c.Username), query) {
			continue
		}
		out = append(out, c.Clone())
	}

	coll := collate.New(locale)
	slices.SortFunc(out, func(a, b model.Credential) int {
		if n := coll.CompareString(a.Service, b.Service); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func fromInput(id string, in model.CredentialInput, sealed []byte) model.Credential {
	return model.Credential{
		ID:       id,
		Service:  in.Service,
		Username: in.Username,
		Secret:   append([]byte(nil), sealed...),
		Website:  in.Website,
		Category: model.Category(in.Category),
		Notes:    in.Notes,
	}
}

func validateStored(c model.Credential) error {
	switch {
	case c.ID == "":
		return fmt.Errorf("id is required: %w", model.ErrInvalidCredential)
	case strings.TrimSpace(c.Service) == "":
		return fmt.Errorf("credential %s: service is required: %w", c.ID, model.ErrInvalidCredential)
	case strings.TrimSpace(c.Username) == "":
		return fmt.Errorf("credential %s: username is required: %w", c.ID, model.ErrInvalidCredential)
	case len(c.Secret) == 0:
		return fmt.Errorf("credential %s: secret is required: %w", c.ID, model.ErrInvalidCredential)
	case !c.Category.Valid():
		return fmt.Errorf("credential %s: unknown category %q: %w", c.ID, c.Category, model.ErrInvalidCredential)
	}
	return nil
}
