package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestStore_SetGetDelete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, driven.KeyVaultData)
	assert.ErrorIs(t, err, driven.ErrBlobNotFound)

	require.NoError(t, s.Set(ctx, driven.KeyVaultData, []byte{0, 1, 2, 255}))
	got, err := s.Get(ctx, driven.KeyVaultData)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 255}, got)

	require.NoError(t, s.Delete(ctx, driven.KeyVaultData))
	_, err = s.Get(ctx, driven.KeyVaultData)
	assert.ErrorIs(t, err, driven.ErrBlobNotFound)

	require.NoError(t, s.Delete(ctx, driven.KeyVaultData))
}

func TestStore_SetBatchKeepsOtherKeys(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, driven.KeyVaultHeader, []byte("header")))
	require.NoError(t, s.SetBatch(ctx, map[string][]byte{
		driven.KeyVaultData:    []byte("data"),
		driven.KeyLastActivity: []byte("ts"),
	}))

	for key, want := range map[string]string{
		driven.KeyVaultHeader:  "header",
		driven.KeyVaultData:    "data",
		driven.KeyLastActivity: "ts",
	} {
		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, string(got), key)
	}
}

func TestStore_SecondOpenIsRejected(t *testing.T) {
	_, dir := openTestStore(t)

	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrStoreLocked)
}

func TestStore_ReopenAfterClose(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestStore_CorruptFile(t *testing.T) {
	s, dir := openTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, blobsFile), []byte("{not json"), 0o600))

	_, err := s.Get(context.Background(), driven.KeyVaultData)
	require.Error(t, err)
	assert.NotErrorIs(t, err, driven.ErrBlobNotFound)
}
