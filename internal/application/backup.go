package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// BackupService copies export bundles to and from a remote backup store.
// Only the encrypted bundle ever leaves the process.
type BackupService struct {
	vault    *VaultService
	provider *BackupStoreProvider
	now      func() time.Time
}

// NewBackupService creates a BackupService.
func NewBackupService(vault *VaultService, provider *BackupStoreProvider) *BackupService {
	return &BackupService{
		vault:    vault,
		provider: provider,
		now:      time.Now,
	}
}

// Configured reports whether a backup store is available.
func (s *BackupService) Configured() bool {
	return s.provider.HasStore()
}

// Configure swaps the remote store used by later backups and restores.
func (s *BackupService) Configure(store driven.BackupStore) {
	s.provider.Replace(store)
	slog.Info("backup store replaced", "configured", store != nil)
}

// Backup exports the vault under passphrase and uploads the bundle. It
// returns the location reported by the store.
func (s *BackupService) Backup(ctx context.Context, passphrase string) (string, error) {
	store := s.provider.Get()
	if store == nil {
		return "", model.ErrBackupNotConfigured
	}

	bundle, err := s.vault.Export(ctx, passphrase)
	if err != nil {
		return "", err
	}

	name := ExportFileName(s.now())
	location, err := store.Put(ctx, name, bundle)
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}

	slog.Info("backup uploaded", "name", name, "bytes", len(bundle))
	return location, nil
}

// Restore downloads the latest bundle and imports it.
func (s *BackupService) Restore(ctx context.Context, passphrase string, mode ImportMode) (ImportResult, error) {
	if _, err := ParseImportMode(string(mode)); err != nil {
		return ImportResult{}, err
	}
	store := s.provider.Get()
	if store == nil {
		return ImportResult{}, model.ErrBackupNotConfigured
	}

	bundle, err := store.Latest(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("download backup: %w", err)
	}

	return s.vault.Import(ctx, bundle, passphrase, mode)
}
