package application

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/ericfisherdev/tgvault/internal/cipher"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

var testParams = cipher.Params{Time: 1, MemoryKiB: 1024, Threads: 1}

// --- Mock implementations ---

type memBlobStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	failSet  error
	onSet    func()
	setCalls int

	// failDelete makes Delete fail for that key.
	failDelete string
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{data: make(map[string][]byte)}
}

func (m *memBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, driven.ErrBlobNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memBlobStore) Set(ctx context.Context, key string, value []byte) error {
	return m.SetBatch(ctx, map[string][]byte{key: value})
}

func (m *memBlobStore) SetBatch(_ context.Context, entries map[string][]byte) error {
	if m.onSet != nil {
		m.onSet()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failSet != nil {
		return m.failSet
	}
	for k, v := range entries {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *memBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == m.failDelete {
		return errDiskFull
	}
	delete(m.data, key)
	return nil
}

func (m *memBlobStore) snapshot() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.data)
}

func (m *memBlobStore) put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestVault(t *testing.T, blobs *memBlobStore) (*VaultService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	v := NewVaultService(blobs, NewEventBus(16), VaultConfig{
		Params: testParams,
		Locale: language.Und,
	})
	v.now = clock.Now
	require.NoError(t, v.Init(context.Background()))
	return v, clock
}

func newUnlockedVault(t *testing.T) (*VaultService, *memBlobStore, *fakeClock) {
	t.Helper()
	blobs := newMemBlobStore()
	v, clock := newTestVault(t, blobs)
	require.NoError(t, v.CreateVault(context.Background(), "master-pass"))
	return v, blobs, clock
}

var errDiskFull = errors.New("disk full")

func mustAdd(t *testing.T, v *VaultService, service, username, secret string) string {
	t.Helper()
	c, err := v.Add(context.Background(), inputFor(service, username, secret))
	require.NoError(t, err)
	return c.ID
}

func inputFor(service, username, secret string) model.CredentialInput {
	return model.CredentialInput{Service: service, Username: username, Secret: secret}
}

// counter ids keep ordering deterministic in tests that need it.
func sequentialIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("id-%03d", n), nil
	}
}
