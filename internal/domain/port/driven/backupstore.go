package driven

import (
	"context"
	"errors"
)

// ErrBackupNotFound is returned by BackupStore.Latest when no backup exists.
var ErrBackupNotFound = errors.New("backup not found")

// BackupStore defines the driven port for off-device copies of the encrypted
// export bundle. Only ciphertext ever crosses this port.
type BackupStore interface {
	// Put uploads bundle under name and returns a location the user can open.
	Put(ctx context.Context, name string, bundle []byte) (string, error)

	// Latest downloads the most recently stored bundle.
	Latest(ctx context.Context) ([]byte, error)
}
