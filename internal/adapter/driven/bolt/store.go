// Package bolt implements the BlobStore port on a single bbolt file.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BlobStore = (*Store)(nil)

var blobsBucket = []byte("blobs")

// Store keeps every blob in one bucket. bbolt serializes writers, so
// SetBatch is a single read-write transaction.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the bolt file at path and ensures the bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create blobs bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the file lock held by bbolt.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(blobsBucket).Get([]byte(key))
		if v == nil {
			return driven.ErrBlobNotFound
		}
		// v is only valid for the life of the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.SetBatch(ctx, map[string][]byte{key: value})
}

// SetBatch stores every entry in one transaction.
func (s *Store) SetBatch(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(blobsBucket)
		for key, value := range entries {
			if err := b.Put([]byte(key), value); err != nil {
				return fmt.Errorf("put %q: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set blob batch: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blobsBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}
