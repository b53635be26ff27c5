package application

import (
	"sync"

	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// BackupStoreProvider enables runtime hot-swap of the remote backup store.
// It holds a mutex-protected reference to the current driven.BackupStore so
// a new token or gist can take effect without restarting the application.
type BackupStoreProvider struct {
	mu    sync.RWMutex
	store driven.BackupStore
}

// NewBackupStoreProvider creates a provider with the given initial store.
// store may be nil when no remote backup is configured at startup.
func NewBackupStoreProvider(store driven.BackupStore) *BackupStoreProvider {
	return &BackupStoreProvider{store: store}
}

// Get returns the current store, or nil.
func (p *BackupStoreProvider) Get() driven.BackupStore {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store
}

// Replace swaps the current store. The next caller of Get receives it.
func (p *BackupStoreProvider) Replace(store driven.BackupStore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = store
}

// HasStore returns true if a non-nil store is currently held.
func (p *BackupStoreProvider) HasStore() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.store != nil
}
