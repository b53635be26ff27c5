package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/tgvault/internal/cipher"
	"github.com/ericfisherdev/tgvault/internal/domain/credential"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

const (
	exportFormat  = "tgvault-export"
	exportVersion = 1

	exportPayloadLabel = "tgvault-export/v1/payload"
)

// ImportMode selects how an imported bundle is combined with the vault.
type ImportMode string

const (
	// ImportMerge adds new ids and overwrites an existing id only when the
	// incoming record was updated more recently.
	ImportMerge ImportMode = "merge"
	// ImportReplace makes the vault contain exactly the imported set.
	ImportReplace ImportMode = "replace"
)

// ParseImportMode validates raw. Anything other than merge or replace returns
// model.ErrImportModeRequired.
func ParseImportMode(raw string) (ImportMode, error) {
	switch m := ImportMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ImportMerge, ImportReplace:
		return m, nil
	}
	return "", model.ErrImportModeRequired
}

// ImportResult counts what an import did.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// exportEnvelope is the cleartext framing of an export file. Everything a
// reader needs to derive the bundle key is here; the credentials are not.
type exportEnvelope struct {
	Format   string    `json:"format"`
	Version  int       `json:"version"`
	KDF      kdfHeader `json:"kdf"`
	Suite    string    `json:"suite"`
	Salt     []byte    `json:"salt"`
	Verifier []byte    `json:"verifier"`
	Payload  []byte    `json:"payload"`
}

// exportPayload is sealed inside the envelope. Secrets in Credentials are
// sealed a second time under the bundle key.
type exportPayload struct {
	Version     int                `json:"version"`
	ExportDate  time.Time          `json:"exportDate"`
	Count       int                `json:"count"`
	Credentials []storedCredential `json:"credentials"`
}

// ExportFileName returns the conventional file name for an export made at t.
func ExportFileName(t time.Time) string {
	return "tgvault-export-" + t.Format(time.DateOnly) + ".json"
}

// ForeignFileName returns the conventional file name for a foreign export.
func ForeignFileName(codec driven.ForeignCodec, t time.Time) string {
	return "tgvault-export-" + t.Format(time.DateOnly) + "." + codec.Name()
}

// Export seals every credential into a portable bundle protected by
// passphrase. Secrets are never written in cleartext.
func (s *VaultService) Export(ctx context.Context, passphrase string) (bundle []byte, err error) {
	defer func() { s.emitOp("export", err) }()

	if err := checkPassphrase(passphrase); err != nil {
		return nil, err
	}
	if !s.opMu.TryLock() {
		return nil, model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	sess, err := s.session()
	if err != nil {
		return nil, err
	}
	creds := sess.store.All()
	if len(creds) == 0 {
		return nil, model.ErrEmptyVault
	}

	salt, err := cipher.NewSalt()
	if err != nil {
		return nil, err
	}
	keys, err := cipher.DeriveKeys([]byte(passphrase), salt, s.cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("derive export keys: %w", err)
	}
	defer keys.Wipe()

	err = withKey(sess.key, func(key []byte) error {
		for i := range creds {
			sealed, err := resealSecret(key, keys.Encryption, s.cfg.Suite, creds[i])
			if err != nil {
				return err
			}
			creds[i].Secret = sealed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	plain, err := marshalJSON(exportPayload{
		Version:     exportVersion,
		ExportDate:  now.UTC(),
		Count:       len(creds),
		Credentials: storedList(creds),
	})
	if err != nil {
		return nil, err
	}
	defer cipher.Zero(plain)

	payload, err := cipher.Seal(s.cfg.Suite, keys.Encryption, plain, []byte(exportPayloadLabel))
	if err != nil {
		return nil, fmt.Errorf("seal export payload: %w", err)
	}

	bundle, err = json.MarshalIndent(exportEnvelope{
		Format:   exportFormat,
		Version:  exportVersion,
		KDF:      kdfHeader{Algorithm: kdfArgon2id, Params: s.cfg.Params},
		Suite:    s.cfg.Suite.String(),
		Salt:     salt,
		Verifier: keys.Verifier,
		Payload:  payload,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export envelope: %w", err)
	}

	s.touch(now)
	slog.Info("vault exported", "count", len(creds))
	return bundle, nil
}

// openBundle authenticates an export bundle with passphrase and returns its
// credentials with secrets still sealed under the bundle key, plus that key.
func openBundle(data []byte, passphrase string) ([]model.Credential, cipher.Keys, error) {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, cipher.Keys{}, fmt.Errorf("decode envelope: %v: %w", err, model.ErrBundleCorrupted)
	}
	if env.Format != exportFormat || env.Version != exportVersion {
		return nil, cipher.Keys{}, fmt.Errorf("bundle %q v%d: %w", env.Format, env.Version, model.ErrUnsupportedVersion)
	}
	if env.KDF.Algorithm != kdfArgon2id {
		return nil, cipher.Keys{}, fmt.Errorf("bundle kdf %q: %w", env.KDF.Algorithm, model.ErrUnsupportedVersion)
	}
	if _, err := cipher.ParseSuite(env.Suite); err != nil {
		return nil, cipher.Keys{}, fmt.Errorf("bundle suite: %v: %w", err, model.ErrUnsupportedVersion)
	}
	if err := env.KDF.Params.Validate(); err != nil {
		return nil, cipher.Keys{}, fmt.Errorf("bundle params: %v: %w", err, model.ErrBundleCorrupted)
	}

	keys, err := cipher.DeriveKeys([]byte(passphrase), env.Salt, env.KDF.Params)
	if err != nil {
		return nil, cipher.Keys{}, fmt.Errorf("derive bundle keys: %v: %w", err, model.ErrBundleCorrupted)
	}
	if !cipher.VerifierMatches(env.Verifier, keys.Verifier) {
		keys.Wipe()
		return nil, cipher.Keys{}, model.ErrInvalidPassphrase
	}

	creds, err := decodePayload(keys.Encryption, env.Payload)
	if err != nil {
		keys.Wipe()
		return nil, cipher.Keys{}, err
	}
	return creds, keys, nil
}

func decodePayload(key, sealed []byte) ([]model.Credential, error) {
	plain, err := cipher.Open(key, sealed, []byte(exportPayloadLabel))
	if err != nil {
		return nil, fmt.Errorf("open payload: %v: %w", err, model.ErrBundleCorrupted)
	}
	defer cipher.Zero(plain)

	var p exportPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %v: %w", err, model.ErrBundleCorrupted)
	}
	if p.Version != exportVersion {
		return nil, fmt.Errorf("payload v%d: %w", p.Version, model.ErrUnsupportedVersion)
	}
	if p.Count != len(p.Credentials) {
		return nil, fmt.Errorf("payload count %d, found %d: %w", p.Count, len(p.Credentials), model.ErrBundleCorrupted)
	}

	creds := make([]model.Credential, len(p.Credentials))
	for i, sc := range p.Credentials {
		creds[i] = fromStored(sc)
	}
	return creds, nil
}

// Import restores a bundle produced by Export. mode must be ImportMerge or
// ImportReplace; the vault is only changed after the whole bundle has been
// authenticated and validated.
func (s *VaultService) Import(ctx context.Context, data []byte, passphrase string, mode ImportMode) (res ImportResult, err error) {
	defer func() { s.emitOp("import", err) }()

	if _, err := ParseImportMode(string(mode)); err != nil {
		return ImportResult{}, err
	}
	if !s.opMu.TryLock() {
		return ImportResult{}, model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	sess, err := s.session()
	if err != nil {
		return ImportResult{}, err
	}

	incoming, bundleKeys, err := openBundle(data, passphrase)
	if err != nil {
		return ImportResult{}, err
	}
	defer bundleKeys.Wipe()

	err = withKey(sess.key, func(key []byte) error {
		for i := range incoming {
			sealed, err := resealSecret(bundleKeys.Encryption, key, sess.suite, incoming[i])
			if err != nil {
				return fmt.Errorf("%v: %w", err, model.ErrBundleCorrupted)
			}
			incoming[i].Secret = sealed
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	res, err = s.commitImport(ctx, sess, incoming, mode)
	if err != nil {
		return ImportResult{}, err
	}
	slog.Info("bundle imported", "mode", mode, "added", res.Added, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

// commitImport combines incoming, whose secrets are already sealed under the
// session key, with the current store and persists the result.
func (s *VaultService) commitImport(ctx context.Context, sess session, incoming []model.Credential, mode ImportMode) (ImportResult, error) {
	var (
		next *credential.Store
		res  ImportResult
	)

	switch mode {
	case ImportReplace:
		store, err := credential.Load(incoming)
		if err != nil {
			return ImportResult{}, fmt.Errorf("%v: %w", err, model.ErrBundleCorrupted)
		}
		next = store
		res.Added = store.Len()
	case ImportMerge:
		next = sess.store.Clone()
		for _, c := range incoming {
			existing, err := next.Find(c.ID)
			if err == nil && !c.UpdatedAt.After(existing.UpdatedAt) {
				res.Skipped++
				continue
			}
			added, err := next.Put(c)
			if err != nil {
				return ImportResult{}, fmt.Errorf("%v: %w", err, model.ErrBundleCorrupted)
			}
			if added {
				res.Added++
			} else {
				res.Updated++
			}
		}
	}

	var blob []byte
	err := withKey(sess.key, func(key []byte) error {
		var err error
		blob, err = sealStore(sess.suite, key, next.All())
		return err
	})
	if err != nil {
		return ImportResult{}, err
	}

	now := s.now()
	if err := s.blobs.SetBatch(ctx, map[string][]byte{
		driven.KeyVaultData:    blob,
		driven.KeyLastActivity: activityStamp(now),
	}); err != nil {
		return ImportResult{}, fmt.Errorf("persist import: %w", err)
	}
	s.touch(now)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.epoch == sess.epoch && s.state == model.StateUnlocked {
		s.store = next
	}
	return res, nil
}

// ExportForeign writes every credential in a third-party format such as
// KDBX, encrypted by the codec with passphrase.
func (s *VaultService) ExportForeign(ctx context.Context, codec driven.ForeignCodec, passphrase string) (data []byte, err error) {
	defer func() { s.emitOp("export_"+codec.Name(), err) }()

	if err := checkPassphrase(passphrase); err != nil {
		return nil, err
	}
	if !s.opMu.TryLock() {
		return nil, model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	sess, err := s.session()
	if err != nil {
		return nil, err
	}
	creds := sess.store.All()
	if len(creds) == 0 {
		return nil, model.ErrEmptyVault
	}

	plain := make([]model.PlainCredential, 0, len(creds))
	err = withKey(sess.key, func(key []byte) error {
		for _, c := range creds {
			secret, err := openSecret(key, c)
			if err != nil {
				return err
			}
			plain = append(plain, model.PlainCredential{
				ID: c.ID,
				CredentialInput: model.CredentialInput{
					Service:  c.Service,
					Username: c.Username,
					Secret:   string(secret),
					Website:  c.Website,
					Category: string(c.Category),
					Notes:    c.Notes,
				},
				CreatedAt: c.CreatedAt,
				UpdatedAt: c.UpdatedAt,
			})
			cipher.Zero(secret)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err = codec.Encode(plain, passphrase)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", codec.Name(), err)
	}

	s.touch(s.now())
	slog.Info("vault exported", "format", codec.Name(), "count", len(plain))
	return data, nil
}

// ImportForeign reads a third-party archive. Records without an id get a new
// one, records missing required fields are skipped, and missing timestamps
// are set to the import time.
func (s *VaultService) ImportForeign(ctx context.Context, codec driven.ForeignCodec, data []byte, passphrase string, mode ImportMode) (res ImportResult, err error) {
	defer func() { s.emitOp("import_"+codec.Name(), err) }()

	if _, err := ParseImportMode(string(mode)); err != nil {
		return ImportResult{}, err
	}
	if !s.opMu.TryLock() {
		return ImportResult{}, model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	sess, err := s.session()
	if err != nil {
		return ImportResult{}, err
	}

	plain, err := codec.Decode(data, passphrase)
	switch {
	case errors.Is(err, driven.ErrForeignPassphrase):
		return ImportResult{}, model.ErrInvalidPassphrase
	case err != nil:
		return ImportResult{}, fmt.Errorf("decode %s: %v: %w", codec.Name(), err, model.ErrBundleCorrupted)
	}

	now := s.now()
	skipped := 0
	incoming := make([]model.Credential, 0, len(plain))
	err = withKey(sess.key, func(key []byte) error {
		for _, p := range plain {
			in := p.CredentialInput.Normalize()
			if in.Validate() != nil {
				skipped++
				continue
			}
			id := p.ID
			if id == "" {
				var err error
				if id, err = s.newID(); err != nil {
					return err
				}
			}
			sealed, err := sealSecret(sess.suite, key, id, in.Secret)
			if err != nil {
				return err
			}
			c := model.Credential{
				ID:        id,
				Service:   in.Service,
				Username:  in.Username,
				Secret:    sealed,
				Website:   in.Website,
				Category:  model.Category(in.Category),
				Notes:     in.Notes,
				CreatedAt: p.CreatedAt,
				UpdatedAt: p.UpdatedAt,
			}
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}
			if c.UpdatedAt.IsZero() {
				c.UpdatedAt = c.CreatedAt
			}
			incoming = append(incoming, c)
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	res, err = s.commitImport(ctx, sess, incoming, mode)
	if err != nil {
		return ImportResult{}, err
	}
	res.Skipped += skipped
	slog.Info("foreign archive imported", "format", codec.Name(), "mode", mode,
		"added", res.Added, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}
