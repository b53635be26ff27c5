package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

func TestBlobRepo_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBlobRepo(db)
	ctx := context.Background()

	err := repo.Set(ctx, driven.KeyVaultData, []byte{0x54, 0x56, 0x00, 0xff})
	require.NoError(t, err)

	val, err := repo.Get(ctx, driven.KeyVaultData)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x54, 0x56, 0x00, 0xff}, val)
}

func TestBlobRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBlobRepo(db)

	_, err := repo.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, driven.ErrBlobNotFound)
}

func TestBlobRepo_UpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBlobRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "k", []byte("old-value")))
	require.NoError(t, repo.Set(ctx, "k", []byte("new-value")))

	val, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new-value"), val)
}

func TestBlobRepo_SetBatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBlobRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, driven.KeyVaultHeader, []byte("h0")))

	err := repo.SetBatch(ctx, map[string][]byte{
		driven.KeyVaultHeader:  []byte("h1"),
		driven.KeyVaultData:    []byte("d1"),
		driven.KeyLastActivity: []byte("2026-05-01T09:00:00Z"),
	})
	require.NoError(t, err)

	for key, want := range map[string]string{
		driven.KeyVaultHeader:  "h1",
		driven.KeyVaultData:    "d1",
		driven.KeyLastActivity: "2026-05-01T09:00:00Z",
	} {
		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, string(got), key)
	}
}

func TestBlobRepo_SetBatchCanceledWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBlobRepo(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.SetBatch(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")})
	require.Error(t, err)

	_, err = repo.Get(context.Background(), "a")
	assert.ErrorIs(t, err, driven.ErrBlobNotFound)
}

func TestBlobRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBlobRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "k", []byte("v")))
	require.NoError(t, repo.Delete(ctx, "k"))

	_, err := repo.Get(ctx, "k")
	assert.ErrorIs(t, err, driven.ErrBlobNotFound)

	require.NoError(t, repo.Delete(ctx, "k"))
}
