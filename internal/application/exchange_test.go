package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tgvault/internal/cipher"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

func TestExport_EmptyVault(t *testing.T) {
	v, _, _ := newUnlockedVault(t)

	_, err := v.Export(context.Background(), "export-pass")
	assert.ErrorIs(t, err, model.ErrEmptyVault)
}

func TestExport_WeakPassphrase(t *testing.T) {
	v, _, _ := newUnlockedVault(t)
	mustAdd(t, v, "X", "u", "p")

	_, err := v.Export(context.Background(), "12345")
	assert.ErrorIs(t, err, model.ErrWeakPassphrase)
}

func TestExport_NoCleartextSecrets(t *testing.T) {
	v, _, _ := newUnlockedVault(t)
	mustAdd(t, v, "GitHub", "octo", "hunter2-very-secret")

	bundle, err := v.Export(context.Background(), "export-pass")
	require.NoError(t, err)

	assert.False(t, bytes.Contains(bundle, []byte("hunter2-very-secret")))
	assert.False(t, bytes.Contains(bundle, []byte("GitHub")))

	var env exportEnvelope
	require.NoError(t, json.Unmarshal(bundle, &env))
	assert.Equal(t, exportFormat, env.Format)
	assert.Equal(t, exportVersion, env.Version)
	assert.Equal(t, "argon2id", env.KDF.Algorithm)
}

func TestExportImport_RoundTripIntoFreshVault(t *testing.T) {
	ctx := context.Background()
	src, _, _ := newUnlockedVault(t)
	_, err := src.Add(ctx, model.CredentialInput{
		Service: "GitHub", Username: "octo", Secret: "hunter2",
		Website: "https://github.com", Category: "work", Notes: "2FA on",
	})
	require.NoError(t, err)
	mustAdd(t, src, "Bank", "me", "1234")

	bundle, err := src.Export(ctx, "master-pass")
	require.NoError(t, err)

	dst, _, _ := newUnlockedVault(t)
	res, err := dst.Import(ctx, bundle, "master-pass", ImportReplace)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 2}, res)

	want, err := src.List(ctx, model.ListFilter{})
	require.NoError(t, err)
	got, err := dst.List(ctx, model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, len(want))

	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Service, g.Service)
		assert.Equal(t, w.Username, g.Username)
		assert.Equal(t, w.Website, g.Website)
		assert.Equal(t, w.Category, g.Category)
		assert.Equal(t, w.Notes, g.Notes)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt))
		assert.True(t, w.UpdatedAt.Equal(g.UpdatedAt))

		ws, err := src.RevealSecret(ctx, w.ID)
		require.NoError(t, err)
		gs, err := dst.RevealSecret(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, ws.Secret, gs.Secret)
	}

	// The import was persisted, not only applied in memory.
	dst.Lock()
	require.NoError(t, dst.Unlock(ctx, "master-pass"))
	persisted, err := dst.List(ctx, model.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestImport_Errors(t *testing.T) {
	ctx := context.Background()
	src, _, _ := newUnlockedVault(t)
	mustAdd(t, src, "X", "u", "p")
	bundle, err := src.Export(ctx, "export-pass")
	require.NoError(t, err)

	dst, _, _ := newUnlockedVault(t)

	_, err = dst.Import(ctx, bundle, "export-pass", "")
	assert.ErrorIs(t, err, model.ErrImportModeRequired)

	_, err = dst.Import(ctx, bundle, "wrong-pass", ImportMerge)
	assert.ErrorIs(t, err, model.ErrInvalidPassphrase)

	_, err = dst.Import(ctx, []byte("not json"), "export-pass", ImportMerge)
	assert.ErrorIs(t, err, model.ErrBundleCorrupted)

	var env exportEnvelope
	require.NoError(t, json.Unmarshal(bundle, &env))

	future := env
	future.Version = 2
	_, err = dst.Import(ctx, mustJSON(t, future), "export-pass", ImportMerge)
	assert.ErrorIs(t, err, model.ErrUnsupportedVersion)

	foreign := env
	foreign.Format = "other-manager"
	_, err = dst.Import(ctx, mustJSON(t, foreign), "export-pass", ImportMerge)
	assert.ErrorIs(t, err, model.ErrUnsupportedVersion)

	tampered := env
	tampered.Payload = append([]byte(nil), env.Payload...)
	tampered.Payload[len(tampered.Payload)-3] ^= 0x01
	_, err = dst.Import(ctx, mustJSON(t, tampered), "export-pass", ImportMerge)
	assert.ErrorIs(t, err, model.ErrBundleCorrupted)

	list, err := dst.List(ctx, model.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestImport_CountMismatch(t *testing.T) {
	ctx := context.Background()
	bundle := craftBundle(t, "export-pass", exportPayload{Version: exportVersion, Count: 3})

	v, _, _ := newUnlockedVault(t)
	_, err := v.Import(ctx, bundle, "export-pass", ImportReplace)
	assert.ErrorIs(t, err, model.ErrBundleCorrupted)
}

func TestImport_PayloadVersion(t *testing.T) {
	ctx := context.Background()
	bundle := craftBundle(t, "export-pass", exportPayload{Version: 9})

	v, _, _ := newUnlockedVault(t)
	_, err := v.Import(ctx, bundle, "export-pass", ImportReplace)
	assert.ErrorIs(t, err, model.ErrUnsupportedVersion)
}

func TestImport_Merge(t *testing.T) {
	ctx := context.Background()
	v, _, clock := newUnlockedVault(t)
	v.newID = sequentialIDs()

	older := mustAdd(t, v, "Older", "u", "old-secret")
	newer := mustAdd(t, v, "Newer", "u", "new-secret")

	bundle, err := v.Export(ctx, "export-pass")
	require.NoError(t, err)

	// After the export: one record changes locally, one is removed.
	clock.Advance(time.Hour)
	_, err = v.Update(ctx, newer, inputFor("Newer local", "u", "local-secret"))
	require.NoError(t, err)
	require.NoError(t, v.Remove(ctx, older))
	mustAdd(t, v, "Local only", "u", "p")

	res, err := v.Import(ctx, bundle, "export-pass", ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 1, Skipped: 1}, res)

	got, err := v.Find(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, "Newer local", got.Service)

	restored, err := v.RevealSecret(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, "old-secret", restored.Secret)

	list, err := v.List(ctx, model.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestImport_MergeTakesNewerIncoming(t *testing.T) {
	ctx := context.Background()
	src, blobs, clock := newUnlockedVault(t)
	id := mustAdd(t, src, "Before", "u", "p1")

	// A second session over the same data diverges, then exports.
	other, _ := newTestVault(t, blobs)
	other.now = clock.Now
	require.NoError(t, other.Unlock(ctx, "master-pass"))
	clock.Advance(time.Hour)
	_, err := other.Update(ctx, id, inputFor("After", "u", "p2"))
	require.NoError(t, err)
	bundle, err := other.Export(ctx, "export-pass")
	require.NoError(t, err)

	res, err := src.Import(ctx, bundle, "export-pass", ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Updated: 1}, res)

	got, err := src.RevealSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "p2", got.Secret)
}

func TestParseImportMode(t *testing.T) {
	m, err := ParseImportMode(" Merge ")
	require.NoError(t, err)
	assert.Equal(t, ImportMerge, m)

	_, err = ParseImportMode("overwrite")
	assert.ErrorIs(t, err, model.ErrImportModeRequired)
}

func TestExportFileName(t *testing.T) {
	ts := time.Date(2026, 2, 3, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "tgvault-export-2026-02-03.json", ExportFileName(ts))
}

// --- Foreign formats ---

// jsonCodec is a stand-in ForeignCodec that "encrypts" by requiring the
// passphrase to match a stored field.
type jsonCodec struct{}

type jsonArchive struct {
	Passphrase string                  `json:"passphrase"`
	Entries    []model.PlainCredential `json:"entries"`
}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(creds []model.PlainCredential, passphrase string) ([]byte, error) {
	return json.Marshal(jsonArchive{Passphrase: passphrase, Entries: creds})
}

func (jsonCodec) Decode(data []byte, passphrase string) ([]model.PlainCredential, error) {
	var a jsonArchive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if a.Passphrase != passphrase {
		return nil, driven.ErrForeignPassphrase
	}
	return a.Entries, nil
}

func TestForeign_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src, _, _ := newUnlockedVault(t)
	id := mustAdd(t, src, "GitHub", "octo", "hunter2")

	data, err := src.ExportForeign(ctx, jsonCodec{}, "archive-pass")
	require.NoError(t, err)

	dst, _, _ := newUnlockedVault(t)
	_, err = dst.ImportForeign(ctx, jsonCodec{}, data, "bad-pass", ImportMerge)
	assert.ErrorIs(t, err, model.ErrInvalidPassphrase)

	res, err := dst.ImportForeign(ctx, jsonCodec{}, data, "archive-pass", ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 1}, res)

	got, err := dst.RevealSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Secret)
}

func TestForeign_ImportAssignsIDsAndSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	v, _, clock := newUnlockedVault(t)
	v.newID = sequentialIDs()

	data, err := jsonCodec{}.Encode([]model.PlainCredential{
		{CredentialInput: model.CredentialInput{Service: "NoID", Username: "u", Secret: "p"}},
		{CredentialInput: model.CredentialInput{Service: "NoSecret", Username: "u"}},
	}, "archive-pass")
	require.NoError(t, err)

	res, err := v.ImportForeign(ctx, jsonCodec{}, data, "archive-pass", ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 1, Skipped: 1}, res)

	c, err := v.Find(ctx, "id-001")
	require.NoError(t, err)
	assert.Equal(t, "NoID", c.Service)
	assert.True(t, c.CreatedAt.Equal(clock.Now()))
	assert.Equal(t, model.CategoryOther, c.Category)
}

func TestForeign_ExportEmpty(t *testing.T) {
	v, _, _ := newUnlockedVault(t)

	_, err := v.ExportForeign(context.Background(), jsonCodec{}, "archive-pass")
	assert.ErrorIs(t, err, model.ErrEmptyVault)
}

type brokenCodec struct{ jsonCodec }

func (brokenCodec) Decode([]byte, string) ([]model.PlainCredential, error) {
	return nil, errors.New("not a kdbx file")
}

func TestForeign_DecodeFailureIsCorruption(t *testing.T) {
	v, _, _ := newUnlockedVault(t)

	_, err := v.ImportForeign(context.Background(), brokenCodec{}, []byte("x"), "archive-pass", ImportReplace)
	assert.ErrorIs(t, err, model.ErrBundleCorrupted)
}

// --- helpers ---

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// craftBundle seals an arbitrary payload the way Export does.
func craftBundle(t *testing.T, passphrase string, p exportPayload) []byte {
	t.Helper()
	salt, err := cipher.NewSalt()
	require.NoError(t, err)
	keys, err := cipher.DeriveKeys([]byte(passphrase), salt, testParams)
	require.NoError(t, err)

	sealed, err := cipher.Seal(cipher.SuiteAES256GCM, keys.Encryption, mustJSON(t, p), []byte(exportPayloadLabel))
	require.NoError(t, err)

	return mustJSON(t, exportEnvelope{
		Format:   exportFormat,
		Version:  exportVersion,
		KDF:      kdfHeader{Algorithm: kdfArgon2id, Params: testParams},
		Suite:    cipher.SuiteAES256GCM.String(),
		Salt:     salt,
		Verifier: keys.Verifier,
		Payload:  sealed,
	})
}
