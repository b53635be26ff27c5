// Package filestore implements the BlobStore port as a single JSON file in a
// directory owned by one process at a time.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BlobStore = (*Store)(nil)

// ErrStoreLocked is returned by Open when another process holds the directory.
var ErrStoreLocked = errors.New("store directory is locked by another process")

const (
	blobsFile = "blobs.json"
	lockFile  = ".lock"
)

// Store keeps all blobs in one file that is rewritten atomically on every
// change, so a batch is visible entirely or not at all.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.RWMutex
}

// Open takes the directory lock and returns a Store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock store directory: %w", err)
	}
	if !locked {
		return nil, ErrStoreLocked
	}

	return &Store{path: filepath.Join(dir, blobsFile), lock: lock}, nil
}

// Close releases the directory lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

func (s *Store) load() (map[string][]byte, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blobs file: %w", err)
	}

	blobs := map[string][]byte{}
	if err := json.Unmarshal(raw, &blobs); err != nil {
		return nil, fmt.Errorf("decode blobs file: %w", err)
	}
	return blobs, nil
}

func (s *Store) save(blobs map[string][]byte) error {
	raw, err := json.Marshal(blobs)
	if err != nil {
		return fmt.Errorf("encode blobs file: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write blobs file: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blobs, err := s.load()
	if err != nil {
		return nil, err
	}
	v, ok := blobs[key]
	if !ok {
		return nil, driven.ErrBlobNotFound
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetBatch(ctx, map[string][]byte{key: value})
}

// SetBatch merges entries into the file with one atomic rename.
func (s *Store) SetBatch(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, err := s.load()
	if err != nil {
		return err
	}
	for k, v := range entries {
		blobs[k] = v
	}
	return s.save(blobs)
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := blobs[key]; !ok {
		return nil
	}
	delete(blobs, key)
	return s.save(blobs)
}
