// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/ericfisherdev/tgvault/internal/cipher"
	"github.com/ericfisherdev/tgvault/internal/domain/credential"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// MinPassphraseLength is the shortest master or export passphrase accepted,
// counted in characters.
const MinPassphraseLength = 6

// DefaultRevealWindow is how long a revealed secret may stay on screen.
const DefaultRevealWindow = 10 * time.Second

// VaultConfig tunes a VaultService. Zero values select defaults.
type VaultConfig struct {
	Params       cipher.Params
	Suite        cipher.Suite
	Locale       language.Tag
	RevealWindow time.Duration
}

// VaultService is the vault session state machine. It owns the credential
// store and the session key, and is the only writer of the persisted blobs.
//
// Operations that derive keys or persist run one at a time; a second such
// operation fails with model.ErrOperationInProgress. Reads work on the last
// committed snapshot and never wait for key derivation. Lock takes effect
// immediately, even while another operation is running.
type VaultService struct {
	blobs  driven.BlobStore
	events *EventBus
	cfg    VaultConfig

	now   func() time.Time
	newID func() (string, error)

	opMu sync.Mutex

	stateMu sync.RWMutex
	state   model.SessionState
	key     *memguard.Enclave
	suite   cipher.Suite
	store   *credential.Store
	epoch   uint64

	lastActivity atomic.Int64
}

// NewVaultService creates a VaultService. Call Init before use so the session
// knows whether a vault already exists.
func NewVaultService(blobs driven.BlobStore, events *EventBus, cfg VaultConfig) *VaultService {
	if cfg.Params == (cipher.Params{}) {
		cfg.Params = cipher.DefaultParams()
	}
	if cfg.Suite == 0 {
		cfg.Suite = cipher.SuiteAES256GCM
	}
	if cfg.RevealWindow <= 0 {
		cfg.RevealWindow = DefaultRevealWindow
	}

	return &VaultService{
		blobs:  blobs,
		events: events,
		cfg:    cfg,
		now:    time.Now,
		newID:  newCredentialID,
		state:  model.StateUninitialized,
	}
}

func newCredentialID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

// Init inspects the blob store and moves the session to Locked when a vault
// exists, or leaves it Uninitialized otherwise.
func (s *VaultService) Init(ctx context.Context) error {
	_, err := s.blobs.Get(ctx, driven.KeyVaultHeader)
	switch {
	case errors.Is(err, driven.ErrBlobNotFound):
		s.setState(model.StateUninitialized)
		return nil
	case err != nil:
		return fmt.Errorf("read vault header: %w", err)
	}

	s.setState(model.StateLocked)

	if raw, err := s.blobs.Get(ctx, driven.KeyLastActivity); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, string(raw)); err == nil {
			s.lastActivity.Store(t.UnixNano())
			slog.Info("vault found", "last_activity", t)
		}
	}
	return nil
}

func (s *VaultService) setState(state model.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

// State returns the current session state.
func (s *VaultService) State() model.SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Epoch increases on every lock and unlock. Session tokens bound to an epoch
// become invalid when the vault locks.
func (s *VaultService) Epoch() uint64 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.epoch
}

// LastActivity returns the time of the last vault operation.
func (s *VaultService) LastActivity() time.Time {
	n := s.lastActivity.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *VaultService) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// RevealWindow returns the configured display window for revealed secrets.
func (s *VaultService) RevealWindow() time.Duration {
	return s.cfg.RevealWindow
}

// CreateVault initializes a new vault protected by passphrase and leaves the
// session unlocked with an empty store.
func (s *VaultService) CreateVault(ctx context.Context, passphrase string) (err error) {
	defer func() { s.emitOp("create_vault", err) }()

	if err := checkPassphrase(passphrase); err != nil {
		return err
	}
	if !s.opMu.TryLock() {
		return model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	_, err = s.blobs.Get(ctx, driven.KeyVaultHeader)
	switch {
	case err == nil:
		return model.ErrVaultExists
	case !errors.Is(err, driven.ErrBlobNotFound):
		return fmt.Errorf("read vault header: %w", err)
	}

	epoch := s.Epoch()

	salt, err := cipher.NewSalt()
	if err != nil {
		return err
	}
	keys, err := cipher.DeriveKeys([]byte(passphrase), salt, s.cfg.Params)
	if err != nil {
		return fmt.Errorf("derive keys: %w", err)
	}
	defer keys.Wipe()

	now := s.now()
	header := newHeader(s.cfg.Suite, s.cfg.Params, salt, keys.Verifier, now)
	rawHeader, err := marshalJSON(header)
	if err != nil {
		return err
	}

	store := credential.NewStore()
	blob, err := sealStore(s.cfg.Suite, keys.Encryption, store.All())
	if err != nil {
		return err
	}

	if err := s.blobs.SetBatch(ctx, map[string][]byte{
		driven.KeyVaultHeader:  rawHeader,
		driven.KeyVaultData:    blob,
		driven.KeyLastActivity: activityStamp(now),
	}); err != nil {
		return fmt.Errorf("persist new vault: %w", err)
	}
	s.touch(now)

	if !s.unlockIfEpoch(epoch, keys.Encryption, s.cfg.Suite, store) {
		slog.Info("vault created but locked while creating")
		return nil
	}
	slog.Info("vault created", "suite", s.cfg.Suite.String())
	return nil
}

// Unlock verifies passphrase against the stored verifier and loads the
// credential set. A wrong passphrase returns model.ErrInvalidPassphrase; an
// unreadable vault returns model.ErrVaultCorrupted.
func (s *VaultService) Unlock(ctx context.Context, passphrase string) (err error) {
	defer func() { s.emitOp("unlock", err) }()

	if !s.opMu.TryLock() {
		return model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	rawHeader, err := s.blobs.Get(ctx, driven.KeyVaultHeader)
	switch {
	case errors.Is(err, driven.ErrBlobNotFound):
		return model.ErrVaultNotInitialized
	case err != nil:
		return fmt.Errorf("read vault header: %w", err)
	}
	header, suite, err := parseHeader(rawHeader)
	if err != nil {
		return err
	}

	epoch := s.Epoch()

	keys, err := cipher.DeriveKeys([]byte(passphrase), header.Salt, header.KDF.Params)
	if err != nil {
		return fmt.Errorf("derive keys: %v: %w", err, model.ErrVaultCorrupted)
	}
	defer keys.Wipe()

	if !cipher.VerifierMatches(header.Verifier, keys.Verifier) {
		return model.ErrInvalidPassphrase
	}

	if s.State() == model.StateUnlocked {
		s.touch(s.now())
		return nil
	}

	blob, err := s.blobs.Get(ctx, driven.KeyVaultData)
	switch {
	case errors.Is(err, driven.ErrBlobNotFound):
		return fmt.Errorf("vault data missing: %w", model.ErrVaultCorrupted)
	case err != nil:
		return fmt.Errorf("read vault data: %w", err)
	}
	creds, err := openStore(keys.Encryption, blob)
	if err != nil {
		return err
	}
	store, err := credential.Load(creds)
	if err != nil {
		return fmt.Errorf("load credentials: %v: %w", err, model.ErrVaultCorrupted)
	}

	if !s.unlockIfEpoch(epoch, keys.Encryption, suite, store) {
		return model.ErrVaultLocked
	}

	now := s.now()
	s.touch(now)
	if err := s.blobs.Set(ctx, driven.KeyLastActivity, activityStamp(now)); err != nil {
		slog.Warn("failed to persist last activity", "error", err)
	}

	slog.Info("vault unlocked", "credentials", store.Len())
	return nil
}

// unlockIfEpoch installs the session unless a Lock happened since epoch was
// read. key is copied into an enclave; the caller still owns the slice.
func (s *VaultService) unlockIfEpoch(epoch uint64, key []byte, suite cipher.Suite, store *credential.Store) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.epoch != epoch {
		s.state = model.StateLocked
		return false
	}
	s.key = memguard.NewEnclave(append([]byte(nil), key...))
	s.suite = suite
	s.store = store
	s.state = model.StateUnlocked
	s.epoch++

	s.events.Publish(model.Event{Type: model.EventUnlocked, State: model.StateUnlocked, At: s.now()})
	return true
}

// Lock discards the session key and the in-memory credentials. It always
// succeeds and is idempotent.
func (s *VaultService) Lock() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	// Bump even when already locked so in-flight unlocks are abandoned.
	s.epoch++
	if s.state != model.StateUnlocked {
		return
	}
	s.key = nil
	s.store = nil
	s.state = model.StateLocked

	s.events.Publish(model.Event{Type: model.EventLocked, State: model.StateLocked, Haptic: model.HapticWarning, At: s.now()})
	slog.Info("vault locked")
}

// Reset destroys the vault: the session is locked and every persisted blob
// is deleted, leaving the session Uninitialized so CreateVault can start over.
// It is the recovery path for a corrupted vault or a lost passphrase and
// needs no passphrase. Resetting when no vault exists succeeds.
func (s *VaultService) Reset(ctx context.Context) (err error) {
	defer func() { s.emitOp("reset", err) }()

	if !s.opMu.TryLock() {
		return model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	s.Lock()

	// The header goes last: while it exists the vault still reads as present,
	// so a failed reset can be retried.
	for _, key := range []string{driven.KeyLastActivity, driven.KeyVaultData, driven.KeyVaultHeader} {
		if err := s.blobs.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	s.setState(model.StateUninitialized)
	s.lastActivity.Store(0)

	slog.Warn("vault reset")
	return nil
}

// session is a consistent view of the unlocked state.
type session struct {
	epoch uint64
	key   *memguard.Enclave
	suite cipher.Suite
	store *credential.Store
}

func (s *VaultService) session() (session, error) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.state != model.StateUnlocked {
		return session{}, model.ErrVaultLocked
	}
	return session{epoch: s.epoch, key: s.key, suite: s.suite, store: s.store}, nil
}

// withKey opens the session key for the duration of fn.
func withKey(enclave *memguard.Enclave, fn func(key []byte) error) error {
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("open session key: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// mutate runs fn against a clone of the store, persists the result and only
// then makes it visible. If the vault was locked meanwhile the persisted
// change stands but the in-memory state stays locked.
func (s *VaultService) mutate(ctx context.Context, fn func(next *credential.Store, key []byte, suite cipher.Suite) error) error {
	if !s.opMu.TryLock() {
		return model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	sess, err := s.session()
	if err != nil {
		return err
	}

	next := sess.store.Clone()
	var blob []byte
	err = withKey(sess.key, func(key []byte) error {
		if err := fn(next, key, sess.suite); err != nil {
			return err
		}
		var err error
		blob, err = sealStore(sess.suite, key, next.All())
		return err
	})
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.blobs.SetBatch(ctx, map[string][]byte{
		driven.KeyVaultData:    blob,
		driven.KeyLastActivity: activityStamp(now),
	}); err != nil {
		return fmt.Errorf("persist vault: %w", err)
	}
	s.touch(now)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.epoch == sess.epoch && s.state == model.StateUnlocked {
		s.store = next
	}
	return nil
}

// Add stores a new credential and returns it with its assigned id.
func (s *VaultService) Add(ctx context.Context, in model.CredentialInput) (created model.Credential, err error) {
	defer func() { s.emitOp("add", err) }()

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return model.Credential{}, err
	}
	id, err := s.newID()
	if err != nil {
		return model.Credential{}, err
	}

	err = s.mutate(ctx, func(next *credential.Store, key []byte, suite cipher.Suite) error {
		sealed, err := sealSecret(suite, key, id, in.Secret)
		if err != nil {
			return err
		}
		created, err = next.Add(id, in, sealed, s.now())
		return err
	})
	if err != nil {
		return model.Credential{}, err
	}

	slog.Info("credential added", "id", id, "category", created.Category)
	return created, nil
}

// Update replaces every field of credential id except its id and creation
// time.
func (s *VaultService) Update(ctx context.Context, id string, in model.CredentialInput) (updated model.Credential, err error) {
	defer func() { s.emitOp("update", err) }()

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return model.Credential{}, err
	}

	err = s.mutate(ctx, func(next *credential.Store, key []byte, suite cipher.Suite) error {
		if _, err := next.Find(id); err != nil {
			return err
		}
		sealed, err := sealSecret(suite, key, id, in.Secret)
		if err != nil {
			return err
		}
		updated, err = next.Update(id, in, sealed, s.now())
		return err
	})
	if err != nil {
		return model.Credential{}, err
	}

	slog.Info("credential updated", "id", id)
	return updated, nil
}

// Remove deletes credential id.
func (s *VaultService) Remove(ctx context.Context, id string) (err error) {
	defer func() { s.emitOp("remove", err) }()

	err = s.mutate(ctx, func(next *credential.Store, _ []byte, _ cipher.Suite) error {
		return next.Remove(id)
	})
	if err != nil {
		return err
	}

	slog.Info("credential removed", "id", id)
	return nil
}

// Find returns credential id. The secret stays sealed.
func (s *VaultService) Find(_ context.Context, id string) (model.Credential, error) {
	sess, err := s.session()
	if err != nil {
		return model.Credential{}, err
	}
	s.touch(s.now())
	return sess.store.Find(id)
}

// List returns the credentials matching filter in display order.
func (s *VaultService) List(_ context.Context, filter model.ListFilter) ([]model.Credential, error) {
	sess, err := s.session()
	if err != nil {
		return nil, err
	}
	s.touch(s.now())
	return sess.store.List(filter, s.cfg.Locale), nil
}

// RevealSecret decrypts one secret for transient display. The caller must
// mask it again after Revealed.MaskAfter.
func (s *VaultService) RevealSecret(_ context.Context, id string) (model.Revealed, error) {
	sess, err := s.session()
	if err != nil {
		return model.Revealed{}, err
	}
	c, err := sess.store.Find(id)
	if err != nil {
		return model.Revealed{}, err
	}

	var secret string
	err = withKey(sess.key, func(key []byte) error {
		plain, err := openSecret(key, c)
		if err != nil {
			return err
		}
		secret = string(plain)
		cipher.Zero(plain)
		return nil
	})
	if err != nil {
		return model.Revealed{}, err
	}

	s.touch(s.now())
	slog.Info("secret revealed", "id", id)
	return model.Revealed{ID: id, Secret: secret, MaskAfter: s.cfg.RevealWindow}, nil
}

// SecurityScore returns the percentage of strong secrets, rounded half up,
// or 0 for an empty vault.
func (s *VaultService) SecurityScore(ctx context.Context) (int, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.SecurityScore, nil
}

// Stats returns counters for the unlocked vault.
func (s *VaultService) Stats(_ context.Context) (model.Stats, error) {
	sess, err := s.session()
	if err != nil {
		return model.Stats{}, err
	}

	creds := sess.store.All()
	strong := 0
	err = withKey(sess.key, func(key []byte) error {
		for _, c := range creds {
			plain, err := openSecret(key, c)
			if err != nil {
				return err
			}
			if cipher.Strong(string(plain)) {
				strong++
			}
			cipher.Zero(plain)
		}
		return nil
	})
	if err != nil {
		return model.Stats{}, err
	}

	s.touch(s.now())
	return model.Stats{
		Total:         len(creds),
		SecurityScore: percent(strong, len(creds)),
		ByCategory:    sess.store.CountByCategory(),
	}, nil
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return (200*part + total) / (2 * total)
}

// ChangePassphrase re-keys the vault. Every secret is re-sealed under the new
// key and header and data are persisted together.
func (s *VaultService) ChangePassphrase(ctx context.Context, current, next string) (err error) {
	defer func() { s.emitOp("change_passphrase", err) }()

	if err := checkPassphrase(next); err != nil {
		return err
	}
	if !s.opMu.TryLock() {
		return model.ErrOperationInProgress
	}
	defer s.opMu.Unlock()

	sess, err := s.session()
	if err != nil {
		return err
	}

	rawHeader, err := s.blobs.Get(ctx, driven.KeyVaultHeader)
	if err != nil {
		return fmt.Errorf("read vault header: %w", err)
	}
	header, _, err := parseHeader(rawHeader)
	if err != nil {
		return err
	}

	old, err := cipher.DeriveKeys([]byte(current), header.Salt, header.KDF.Params)
	if err != nil {
		return fmt.Errorf("derive keys: %w", err)
	}
	defer old.Wipe()
	if !cipher.VerifierMatches(header.Verifier, old.Verifier) {
		return model.ErrInvalidPassphrase
	}

	salt, err := cipher.NewSalt()
	if err != nil {
		return err
	}
	fresh, err := cipher.DeriveKeys([]byte(next), salt, s.cfg.Params)
	if err != nil {
		return fmt.Errorf("derive keys: %w", err)
	}
	defer fresh.Wipe()

	rekeyed := credential.NewStore()
	err = withKey(sess.key, func(key []byte) error {
		for _, c := range sess.store.All() {
			sealed, err := resealSecret(key, fresh.Encryption, s.cfg.Suite, c)
			if err != nil {
				return err
			}
			c.Secret = sealed
			if _, err := rekeyed.Put(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	blob, err := sealStore(s.cfg.Suite, fresh.Encryption, rekeyed.All())
	if err != nil {
		return err
	}
	now := s.now()
	newHdr := newHeader(s.cfg.Suite, s.cfg.Params, salt, fresh.Verifier, header.CreatedAt)
	rawNew, err := marshalJSON(newHdr)
	if err != nil {
		return err
	}

	if err := s.blobs.SetBatch(ctx, map[string][]byte{
		driven.KeyVaultHeader:  rawNew,
		driven.KeyVaultData:    blob,
		driven.KeyLastActivity: activityStamp(now),
	}); err != nil {
		return fmt.Errorf("persist rekeyed vault: %w", err)
	}
	s.touch(now)

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.epoch == sess.epoch && s.state == model.StateUnlocked {
		s.key = memguard.NewEnclave(append([]byte(nil), fresh.Encryption...))
		s.suite = s.cfg.Suite
		s.store = rekeyed
	}

	slog.Info("vault passphrase changed")
	return nil
}

func (s *VaultService) emitOp(op string, err error) {
	e := model.Event{
		Type:   model.EventOperation,
		State:  s.State(),
		Op:     op,
		Kind:   model.ErrorKind(err),
		Haptic: model.HapticSuccess,
		At:     s.now(),
	}
	switch {
	case err == nil:
	case errors.Is(err, model.ErrOperationInProgress), errors.Is(err, model.ErrInvalidPassphrase):
		e.Haptic = model.HapticWarning
	default:
		e.Haptic = model.HapticError
	}
	s.events.Publish(e)
}

func checkPassphrase(p string) error {
	if utf8.RuneCountInString(p) < MinPassphraseLength {
		return model.ErrWeakPassphrase
	}
	return nil
}

func activityStamp(t time.Time) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano))
}

// sealSecret binds the secret to its credential id through the AAD so sealed
// values cannot be moved between records.
func sealSecret(suite cipher.Suite, key []byte, id, secret string) ([]byte, error) {
	plain := []byte(secret)
	defer cipher.Zero(plain)
	sealed, err := cipher.Seal(suite, key, plain, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("seal secret %s: %w", id, err)
	}
	return sealed, nil
}

func openSecret(key []byte, c model.Credential) ([]byte, error) {
	plain, err := cipher.Open(key, c.Secret, []byte(c.ID))
	if err != nil {
		return nil, fmt.Errorf("open secret %s: %v: %w", c.ID, err, model.ErrVaultCorrupted)
	}
	return plain, nil
}

func resealSecret(from, to []byte, suite cipher.Suite, c model.Credential) ([]byte, error) {
	plain, err := openSecret(from, c)
	if err != nil {
		return nil, err
	}
	defer cipher.Zero(plain)
	sealed, err := cipher.Seal(suite, to, plain, []byte(c.ID))
	if err != nil {
		return nil, fmt.Errorf("seal secret %s: %w", c.ID, err)
	}
	return sealed, nil
}
