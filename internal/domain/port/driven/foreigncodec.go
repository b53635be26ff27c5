package driven

import (
	"errors"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

// ErrForeignPassphrase is returned by ForeignCodec.Decode when the archive
// cannot be opened with the supplied passphrase.
var ErrForeignPassphrase = errors.New("foreign archive passphrase rejected")

// ForeignCodec converts the credential set to and from a third-party
// password-manager format. Secrets cross this port in cleartext, so
// implementations must encrypt the encoded archive with the passphrase.
type ForeignCodec interface {
	// Name is the short format identifier used in file names ("kdbx").
	Name() string
	Encode(creds []model.PlainCredential, passphrase string) ([]byte, error)
	Decode(data []byte, passphrase string) ([]model.PlainCredential, error)
}
