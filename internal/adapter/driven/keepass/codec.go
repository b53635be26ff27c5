// Package keepass converts the credential set to and from KeePass KDBX
// databases.
package keepass

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/tobischo/gokeepasslib/v3"
	w "github.com/tobischo/gokeepasslib/v3/wrappers"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ForeignCodec = (*Codec)(nil)

// ErrNotKDBX is returned by Decode for data without the KDBX signature.
var ErrNotKDBX = errors.New("not a kdbx database")

const (
	rootGroupName  = "tgvault"
	recycleBinName = "Recycle Bin"

	fieldTitle    = "Title"
	fieldUserName = "UserName"
	fieldPassword = "Password"
	fieldURL      = "URL"
	fieldNotes    = "Notes"
	fieldID       = "tgvault.id"
	fieldCategory = "tgvault.category"
)

// KDBX base signature followed by the secondary signature.
var signature = []byte{0x03, 0xd9, 0xa2, 0x9a, 0x67, 0xfb, 0x4b, 0xb5}

// Codec implements driven.ForeignCodec for KDBX. Credentials are grouped by
// category under a single root group; the vault id and category are kept in
// custom string fields so a round trip preserves them.
type Codec struct{}

// New returns a KDBX codec.
func New() *Codec {
	return &Codec{}
}

// Name returns the file extension used for exports.
func (*Codec) Name() string { return "kdbx" }

// Encode writes creds into a new database protected by passphrase.
func (*Codec) Encode(creds []model.PlainCredential, passphrase string) ([]byte, error) {
	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(passphrase)

	root := gokeepasslib.NewGroup()
	root.Name = rootGroupName

	byCategory := map[model.Category]int{}
	for _, c := range creds {
		cat := model.ParseCategory(c.Category)
		idx, ok := byCategory[cat]
		if !ok {
			g := gokeepasslib.NewGroup()
			g.Name = cat.Info().Label
			root.Groups = append(root.Groups, g)
			idx = len(root.Groups) - 1
			byCategory[cat] = idx
		}
		root.Groups[idx].Entries = append(root.Groups[idx].Entries, toEntry(c, cat))
	}

	db.Content.Root = &gokeepasslib.RootData{Groups: []gokeepasslib.Group{root}}

	if err := db.LockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("lock protected entries: %w", err)
	}

	var buf bytes.Buffer
	if err := gokeepasslib.NewEncoder(&buf).Encode(db); err != nil {
		return nil, fmt.Errorf("encode kdbx: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads every entry from a KDBX database, walking nested groups and
// skipping the recycle bin. Group names that match a category label set the
// category unless the entry carries its own.
func (*Codec) Decode(data []byte, passphrase string) ([]model.PlainCredential, error) {
	if !bytes.HasPrefix(data, signature) {
		return nil, ErrNotKDBX
	}

	db := gokeepasslib.NewDatabase()
	db.Credentials = gokeepasslib.NewPasswordCredentials(passphrase)
	if err := gokeepasslib.NewDecoder(bytes.NewReader(data)).Decode(db); err != nil {
		// Signature matched: a failed decode means the key was rejected.
		return nil, fmt.Errorf("%w: %v", driven.ErrForeignPassphrase, err)
	}
	if err := db.UnlockProtectedEntries(); err != nil {
		return nil, fmt.Errorf("unlock protected entries: %w", err)
	}

	var out []model.PlainCredential
	if db.Content != nil && db.Content.Root != nil {
		collect(&out, db.Content.Root.Groups, model.CategoryOther)
	}
	return out, nil
}

func collect(out *[]model.PlainCredential, groups []gokeepasslib.Group, inherited model.Category) {
	for _, g := range groups {
		if g.Name == recycleBinName {
			continue
		}
		cat := inherited
		if c, ok := categoryForLabel(g.Name); ok {
			cat = c
		}
		for _, e := range g.Entries {
			*out = append(*out, fromEntry(e, cat))
		}
		collect(out, g.Groups, cat)
	}
}

func categoryForLabel(label string) (model.Category, bool) {
	for _, info := range model.Categories() {
		if info.Label == label || string(info.Category) == label {
			return info.Category, true
		}
	}
	return "", false
}

func toEntry(c model.PlainCredential, cat model.Category) gokeepasslib.Entry {
	e := gokeepasslib.NewEntry()
	e.Values = append(e.Values,
		value(fieldTitle, c.Service),
		value(fieldUserName, c.Username),
		gokeepasslib.ValueData{Key: fieldPassword, Value: gokeepasslib.V{Content: c.Secret, Protected: w.NewBoolWrapper(true)}},
		value(fieldURL, c.Website),
		value(fieldNotes, c.Notes),
		value(fieldID, c.ID),
		value(fieldCategory, string(cat)),
	)
	if !c.CreatedAt.IsZero() {
		e.Times.CreationTime = timeWrapper(c.CreatedAt)
	}
	if !c.UpdatedAt.IsZero() {
		e.Times.LastModificationTime = timeWrapper(c.UpdatedAt)
	}
	return e
}

func fromEntry(e gokeepasslib.Entry, groupCategory model.Category) model.PlainCredential {
	category := string(groupCategory)
	if c := e.GetContent(fieldCategory); c != "" {
		category = c
	}

	p := model.PlainCredential{
		ID: e.GetContent(fieldID),
		CredentialInput: model.CredentialInput{
			Service:  e.GetTitle(),
			Username: e.GetContent(fieldUserName),
			Secret:   e.GetPassword(),
			Website:  e.GetContent(fieldURL),
			Category: category,
			Notes:    e.GetContent(fieldNotes),
		},
	}
	if e.Times.CreationTime != nil {
		p.CreatedAt = e.Times.CreationTime.Time.UTC()
	}
	if e.Times.LastModificationTime != nil {
		p.UpdatedAt = e.Times.LastModificationTime.Time.UTC()
	}
	return p
}

func value(key, content string) gokeepasslib.ValueData {
	return gokeepasslib.ValueData{Key: key, Value: gokeepasslib.V{Content: content}}
}

func timeWrapper(t time.Time) *w.TimeWrapper {
	tw := w.Now()
	tw.Time = t.UTC()
	return &tw
}
