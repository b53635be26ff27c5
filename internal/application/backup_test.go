package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

type memBackupStore struct {
	files  map[string][]byte
	latest string
}

func (m *memBackupStore) Put(_ context.Context, name string, bundle []byte) (string, error) {
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[name] = bundle
	m.latest = name
	return "mem://" + name, nil
}

func (m *memBackupStore) Latest(_ context.Context) ([]byte, error) {
	if m.latest == "" {
		return nil, driven.ErrBackupNotFound
	}
	return m.files[m.latest], nil
}

func TestBackupService_NotConfigured(t *testing.T) {
	v, _, _ := newUnlockedVault(t)
	svc := NewBackupService(v, NewBackupStoreProvider(nil))

	assert.False(t, svc.Configured())
	_, err := svc.Backup(context.Background(), "export-pass")
	assert.ErrorIs(t, err, model.ErrBackupNotConfigured)
	_, err = svc.Restore(context.Background(), "export-pass", ImportMerge)
	assert.ErrorIs(t, err, model.ErrBackupNotConfigured)
}

func TestBackupService_Configure(t *testing.T) {
	v, _, _ := newUnlockedVault(t)
	mustAdd(t, v, "X", "u", "secret")
	svc := NewBackupService(v, NewBackupStoreProvider(nil))

	store := &memBackupStore{}
	svc.Configure(store)
	assert.True(t, svc.Configured())

	_, err := svc.Backup(context.Background(), "export-pass")
	require.NoError(t, err)
	assert.Len(t, store.files, 1)

	svc.Configure(nil)
	assert.False(t, svc.Configured())
}

func TestBackupService_BackupAndRestore(t *testing.T) {
	ctx := context.Background()
	src, _, clock := newUnlockedVault(t)
	id := mustAdd(t, src, "X", "u", "secret")

	store := &memBackupStore{}
	provider := NewBackupStoreProvider(nil)
	provider.Replace(store)

	svc := NewBackupService(src, provider)
	svc.now = clock.Now

	loc, err := svc.Backup(ctx, "export-pass")
	require.NoError(t, err)
	assert.Equal(t, "mem://tgvault-export-2026-05-01.json", loc)

	dst, _, _ := newUnlockedVault(t)
	restore := NewBackupService(dst, provider)

	_, err = restore.Restore(ctx, "export-pass", "")
	assert.ErrorIs(t, err, model.ErrImportModeRequired)

	res, err := restore.Restore(ctx, "export-pass", ImportReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	got, err := dst.RevealSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Secret)
}

func TestBackupService_RestoreMissing(t *testing.T) {
	v, _, _ := newUnlockedVault(t)
	svc := NewBackupService(v, NewBackupStoreProvider(&memBackupStore{}))

	_, err := svc.Restore(context.Background(), "export-pass", ImportMerge)
	assert.ErrorIs(t, err, driven.ErrBackupNotFound)
}
