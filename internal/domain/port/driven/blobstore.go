// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by BlobStore.Get when the key is absent.
var ErrBlobNotFound = errors.New("blob not found")

// Keys the vault reads and writes. Values are opaque to the store.
const (
	KeyVaultHeader  = "vault.header"        // salt, verifier and KDF parameters
	KeyVaultData    = "vault.data"          // sealed credential set
	KeyLastActivity = "vault.last_activity" // RFC 3339 timestamp of the last vault operation
)

// BlobStore defines the driven port for the opaque key-value persistence the
// vault sits on.
type BlobStore interface {
	// Get returns the value for key, or ErrBlobNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// SetBatch stores every entry or none of them.
	SetBatch(ctx context.Context, entries map[string][]byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
