package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BlobStore = (*BlobRepo)(nil)

// BlobRepo is the SQLite implementation of the BlobStore port interface.
// Values are stored verbatim; the vault encrypts before it writes.
type BlobRepo struct {
	db *DB
}

// NewBlobRepo creates a new BlobRepo.
func NewBlobRepo(db *DB) *BlobRepo {
	return &BlobRepo{db: db}
}

const upsertBlob = `INSERT INTO kv_blobs (key, value, updated_at)
	VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// Get returns the value stored under key, or driven.ErrBlobNotFound.
func (r *BlobRepo) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM kv_blobs WHERE key = ?`
	var value []byte
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (r *BlobRepo) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.Writer.ExecContext(ctx, upsertBlob, key, value)
	if err != nil {
		return fmt.Errorf("set blob %q: %w", key, err)
	}
	return nil
}

// SetBatch stores every entry in one transaction.
func (r *BlobRepo) SetBatch(ctx context.Context, entries map[string][]byte) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin blob batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertBlob)
	if err != nil {
		return fmt.Errorf("prepare blob batch: %w", err)
	}
	defer stmt.Close()

	for key, value := range entries {
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return fmt.Errorf("set blob %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit blob batch: %w", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *BlobRepo) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM kv_blobs WHERE key = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}
