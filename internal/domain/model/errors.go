package model

import "errors"

// Sentinel errors returned by vault operations. Callers match them with
// errors.Is; every error surfaced by the application layer wraps one of these
// or a port-level sentinel.
var (
	ErrWeakPassphrase      = errors.New("passphrase must be at least 6 characters")
	ErrInvalidPassphrase   = errors.New("invalid passphrase")
	ErrVaultLocked         = errors.New("vault is locked")
	ErrVaultCorrupted      = errors.New("vault data is corrupted")
	ErrNotFound            = errors.New("credential not found")
	ErrEmptyVault          = errors.New("vault has no credentials")
	ErrUnsupportedVersion  = errors.New("unsupported bundle version")
	ErrBundleCorrupted     = errors.New("bundle is corrupted")
	ErrOperationInProgress = errors.New("another vault operation is in progress")

	ErrVaultExists         = errors.New("vault already exists")
	ErrVaultNotInitialized = errors.New("vault has not been created")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrImportModeRequired  = errors.New("import mode must be merge or replace")
	ErrBackupNotConfigured = errors.New("remote backup is not configured")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrWeakPassphrase, "weak_passphrase"},
	{ErrInvalidPassphrase, "invalid_passphrase"},
	{ErrVaultLocked, "vault_locked"},
	{ErrVaultCorrupted, "vault_corrupted"},
	{ErrNotFound, "not_found"},
	{ErrEmptyVault, "empty_vault"},
	{ErrUnsupportedVersion, "unsupported_version"},
	{ErrBundleCorrupted, "bundle_corrupted"},
	{ErrOperationInProgress, "operation_in_progress"},
	{ErrVaultExists, "vault_exists"},
	{ErrVaultNotInitialized, "vault_not_initialized"},
	{ErrInvalidCredential, "invalid_credential"},
	{ErrImportModeRequired, "import_mode_required"},
	{ErrBackupNotConfigured, "backup_not_configured"},
}

// ErrorKind returns the stable kind string for err, "" for nil and
// "internal" for errors outside the vault's vocabulary.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// Sentinel returns the vocabulary error err wraps, or nil. Presentation
// adapters show its message instead of the wrapped detail.
func Sentinel(err error) error {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// IsTerminal reports whether err means the vault cannot be recovered by
// retrying. Only corruption qualifies; a wrong passphrase never does.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrVaultCorrupted)
}
