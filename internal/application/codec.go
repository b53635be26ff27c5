package application

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/tgvault/internal/cipher"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

const (
	vaultFormat  = "tgvault"
	vaultVersion = 1
	kdfArgon2id  = "argon2id"

	// AAD for the sealed credential set. Secrets use their credential id.
	vaultDataLabel = "tgvault/v1/vault.data"
)

// kdfHeader records how keys were derived.
type kdfHeader struct {
	Algorithm string        `json:"algorithm"`
	Params    cipher.Params `json:"params"`
}

// vaultHeader is the cleartext metadata persisted under driven.KeyVaultHeader.
type vaultHeader struct {
	Format    string    `json:"format"`
	Version   int       `json:"version"`
	KDF       kdfHeader `json:"kdf"`
	Suite     string    `json:"suite"`
	Salt      []byte    `json:"salt"`
	Verifier  []byte    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}

// storedCredential is the serialized form of model.Credential. Secret is the
// framed sealed value, base64 encoded by encoding/json.
type storedCredential struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Username  string    `json:"username"`
	Secret    []byte    `json:"secret"`
	Website   string    `json:"website,omitempty"`
	Category  string    `json:"category"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type vaultData struct {
	Version     int                `json:"version"`
	Credentials []storedCredential `json:"credentials"`
}

func marshalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return raw, nil
}

func toStored(c model.Credential) storedCredential {
	return storedCredential{
		ID:        c.ID,
		Service:   c.Service,
		Username:  c.Username,
		Secret:    c.Secret,
		Website:   c.Website,
		Category:  string(c.Category),
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromStored(sc storedCredential) model.Credential {
	return model.Credential{
		ID:        sc.ID,
		Service:   sc.Service,
		Username:  sc.Username,
		Secret:    sc.Secret,
		Website:   sc.Website,
		Category:  model.Category(sc.Category),
		Notes:     sc.Notes,
		CreatedAt: sc.CreatedAt,
		UpdatedAt: sc.UpdatedAt,
	}
}

func storedList(creds []model.Credential) []storedCredential {
	out := make([]storedCredential, len(creds))
	for i, c := range creds {
		out[i] = toStored(c)
	}
	return out
}

func newHeader(suite cipher.Suite, params cipher.Params, salt, verifier []byte, now time.Time) vaultHeader {
	return vaultHeader{
		Format:    vaultFormat,
		Version:   vaultVersion,
		KDF:       kdfHeader{Algorithm: kdfArgon2id, Params: params},
		Suite:     suite.String(),
		Salt:      salt,
		Verifier:  verifier,
		CreatedAt: now,
	}
}

// parseHeader decodes and sanity-checks a persisted header. Any problem is
// reported as model.ErrVaultCorrupted.
func parseHeader(raw []byte) (vaultHeader, cipher.Suite, error) {
	var h vaultHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return vaultHeader{}, 0, fmt.Errorf("decode header: %v: %w", err, model.ErrVaultCorrupted)
	}
	if h.Format != vaultFormat || h.Version != vaultVersion || h.KDF.Algorithm != kdfArgon2id {
		return vaultHeader{}, 0, fmt.Errorf("header %s v%d %s: %w", h.Format, h.Version, h.KDF.Algorithm, model.ErrVaultCorrupted)
	}
	if err := h.KDF.Params.Validate(); err != nil {
		return vaultHeader{}, 0, fmt.Errorf("header params: %v: %w", err, model.ErrVaultCorrupted)
	}
	suite, err := cipher.ParseSuite(h.Suite)
	if err != nil {
		return vaultHeader{}, 0, fmt.Errorf("header suite: %v: %w", err, model.ErrVaultCorrupted)
	}
	return h, suite, nil
}

// sealStore serializes every credential and seals the result as one blob.
func sealStore(suite cipher.Suite, key []byte, creds []model.Credential) ([]byte, error) {
	plain, err := json.Marshal(vaultData{Version: vaultVersion, Credentials: storedList(creds)})
	if err != nil {
		return nil, fmt.Errorf("encode vault data: %w", err)
	}
	defer cipher.Zero(plain)

	blob, err := cipher.Seal(suite, key, plain, []byte(vaultDataLabel))
	if err != nil {
		return nil, fmt.Errorf("seal vault data: %w", err)
	}
	return blob, nil
}

// openStore reverses sealStore. Authentication and decoding failures are
// reported as model.ErrVaultCorrupted.
func openStore(key, blob []byte) ([]model.Credential, error) {
	plain, err := cipher.Open(key, blob, []byte(vaultDataLabel))
	if err != nil {
		return nil, fmt.Errorf("open vault data: %v: %w", err, model.ErrVaultCorrupted)
	}
	defer cipher.Zero(plain)

	var data vaultData
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("decode vault data: %v: %w", err, model.ErrVaultCorrupted)
	}
	if data.Version != vaultVersion {
		return nil, fmt.Errorf("vault data version %d: %w", data.Version, model.ErrVaultCorrupted)
	}

	creds := make([]model.Credential, len(data.Credentials))
	for i, sc := range data.Credentials {
		creds[i] = fromStored(sc)
	}
	return creds, nil
}
