// Package httphandler is the JSON API the Telegram Mini App talks to.
package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/tgvault/internal/application"
	"github.com/ericfisherdev/tgvault/internal/cipher"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
	"github.com/ericfisherdev/tgvault/internal/domain/port/driven"
)

// maxBodyBytes caps request bodies; import bundles are the largest.
const maxBodyBytes = 8 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	vault  *application.VaultService
	backup *application.BackupService
	codecs map[string]driven.ForeignCodec
	tokens *TokenIssuer
	logger *slog.Logger
	now    func() time.Time

	newBackupStore BackupStoreFactory
}

// BackupStoreFactory builds a remote backup store from user-supplied
// credentials.
type BackupStoreFactory func(token, gistID string) driven.BackupStore

// SetBackupStoreFactory enables PUT /api/v1/backup/config.
func (h *Handler) SetBackupStoreFactory(f BackupStoreFactory) {
	h.newBackupStore = f
}

// NewHandler creates a Handler. backup may be nil; codecs lists the foreign
// formats offered next to the native bundle.
func NewHandler(
	vault *application.VaultService,
	backup *application.BackupService,
	tokens *TokenIssuer,
	logger *slog.Logger,
	codecs ...driven.ForeignCodec,
) *Handler {
	byName := make(map[string]driven.ForeignCodec, len(codecs))
	for _, c := range codecs {
		byName[c.Name()] = c
	}
	return &Handler{
		vault:  vault,
		backup: backup,
		codecs: byName,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterAPIRoutes registers all JSON API routes on the provided mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/categories", h.ListCategories)
	mux.HandleFunc("POST /api/v1/generate", h.Generate)

	mux.HandleFunc("GET /api/v1/vault", h.GetState)
	mux.HandleFunc("POST /api/v1/vault", h.CreateVault)
	mux.HandleFunc("DELETE /api/v1/vault", h.ResetVault)
	mux.HandleFunc("POST /api/v1/vault/unlock", h.Unlock)
	mux.HandleFunc("POST /api/v1/vault/lock", h.Lock)
	mux.HandleFunc("POST /api/v1/vault/passphrase", h.requireSession(h.ChangePassphrase))

	mux.HandleFunc("GET /api/v1/credentials", h.requireSession(h.ListCredentials))
	mux.HandleFunc("POST /api/v1/credentials", h.requireSession(h.AddCredential))
	mux.HandleFunc("GET /api/v1/credentials/{id}", h.requireSession(h.GetCredential))
	mux.HandleFunc("PUT /api/v1/credentials/{id}", h.requireSession(h.UpdateCredential))
	mux.HandleFunc("DELETE /api/v1/credentials/{id}", h.requireSession(h.RemoveCredential))
	mux.HandleFunc("POST /api/v1/credentials/{id}/reveal", h.requireSession(h.RevealSecret))
	mux.HandleFunc("GET /api/v1/stats", h.requireSession(h.Stats))

	mux.HandleFunc("POST /api/v1/export", h.requireSession(h.Export))
	mux.HandleFunc("POST /api/v1/import", h.requireSession(h.Import))
	mux.HandleFunc("GET /api/v1/backup", h.requireSession(h.BackupStatus))
	mux.HandleFunc("PUT /api/v1/backup/config", h.requireSession(h.ConfigureBackup))
	mux.HandleFunc("POST /api/v1/backup", h.requireSession(h.Backup))
	mux.HandleFunc("POST /api/v1/restore", h.requireSession(h.Restore))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return false
	}
	return true
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		State:  string(h.vault.State()),
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

// ListCategories returns the closed category enumeration with display data.
func (h *Handler) ListCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toCategoryResponses(model.Categories()))
}

// Generate returns a random password. An empty body selects the defaults.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	opts := cipher.DefaultGeneratorOptions()
	if r.ContentLength != 0 && !decodeBody(w, r, &opts) {
		return
	}

	password, err := cipher.GeneratePassword(opts)
	if errors.Is(err, cipher.ErrGeneratorOptions) {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	if err != nil {
		h.logger.Error("failed to generate password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", "internal")
		return
	}

	writeJSON(w, http.StatusOK, toGenerateResponse(password))
}

// GetState reports whether the vault exists and is unlocked.
func (h *Handler) GetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StateResponse{
		State:          string(h.vault.State()),
		RevealWindowMS: h.vault.RevealWindow().Milliseconds(),
	})
}

// CreateVault creates the vault and returns a session token.
func (h *Handler) CreateVault(w http.ResponseWriter, r *http.Request) {
	var req PassphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.vault.CreateVault(r.Context(), req.Passphrase); err != nil {
		h.writeVaultError(w, err)
		return
	}
	h.writeToken(w, http.StatusCreated)
}

// Unlock verifies the passphrase and returns a session token.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req PassphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.vault.Unlock(r.Context(), req.Passphrase); err != nil {
		h.writeVaultError(w, err)
		return
	}
	h.writeToken(w, http.StatusOK)
}

func (h *Handler) writeToken(w http.ResponseWriter, status int) {
	token, exp, err := h.tokens.Issue()
	if err != nil {
		h.logger.Error("failed to issue session token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", "internal")
		return
	}
	writeJSON(w, status, TokenResponse{
		Token:     token,
		ExpiresAt: exp.UTC().Format(time.RFC3339),
		State:     string(h.vault.State()),
	})
}

// Lock discards the session key. Any token is accepted, even a stale one,
// but the request must carry a header that forces a CORS preflight.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	if !crossOriginSafe(r) {
		writeError(w, http.StatusForbidden, "missing Authorization or X-CSRF-Token header", "csrf_required")
		return
	}
	h.vault.Lock()
	w.WriteHeader(http.StatusNoContent)
}

// ResetVault deletes the vault so a new one can be created. No passphrase is
// asked for; the body must carry ResetConfirmation, and an unlocked vault
// additionally needs a valid session token.
func (h *Handler) ResetVault(w http.ResponseWriter, r *http.Request) {
	if h.vault.State() == model.StateUnlocked {
		if err := h.tokens.Authorize(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
	}
	var req ResetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Confirm != ResetConfirmation {
		writeError(w, http.StatusBadRequest, "confirm must be "+strconv.Quote(ResetConfirmation), "confirmation_required")
		return
	}
	if err := h.vault.Reset(r.Context()); err != nil {
		h.writeVaultError(w, err)
		return
	}
	h.logger.Warn("vault reset over http", "remote", r.RemoteAddr)
	h.GetState(w, r)
}

// ChangePassphrase re-keys the vault. Outstanding tokens stay valid.
func (h *Handler) ChangePassphrase(w http.ResponseWriter, r *http.Request) {
	var req ChangePassphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.vault.ChangePassphrase(r.Context(), req.Current, req.Next); err != nil {
		h.writeVaultError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCredentials returns credentials filtered by ?category= and ?q=.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	filter := model.ListFilter{
		Category:   r.URL.Query().Get("category"),
		SearchText: r.URL.Query().Get("q"),
	}
	creds, err := h.vault.List(r.Context(), filter)
	if err != nil {
		h.writeVaultError(w, err)
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddCredential stores a new credential.
func (h *Handler) AddCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := h.vault.Add(r.Context(), req.input())
	if err != nil {
		h.writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCredentialResponse(created))
}

// GetCredential returns one credential without its secret.
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	c, err := h.vault.Find(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(c))
}

// UpdateCredential replaces the editable fields of a credential.
func (h *Handler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := h.vault.Update(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		h.writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(updated))
}

// RemoveCredential deletes a credential.
func (h *Handler) RemoveCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.vault.Remove(r.Context(), r.PathValue("id")); err != nil {
		h.writeVaultError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevealSecret returns a cleartext secret and its display window.
func (h *Handler) RevealSecret(w http.ResponseWriter, r *http.Request) {
	rev, err := h.vault.RevealSecret(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RevealResponse{
		ID:          rev.ID,
		Secret:      rev.Secret,
		MaskAfterMS: rev.MaskAfter.Milliseconds(),
	})
}

// Stats returns the header counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.vault.Stats(r.Context())
	if err != nil {
		h.writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

// Export streams an encrypted bundle as a file download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		data        []byte
		name        string
		contentType string
		err         error
	)
	switch format := strings.ToLower(req.Format); format {
	case "", "tgvault":
		data, err = h.vault.Export(r.Context(), req.Passphrase)
		name, contentType = application.ExportFileName(h.now()), "application/json"
	default:
		codec, ok := h.codecs[format]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown export format", "bad_request")
			return
		}
		data, err = h.vault.ExportForeign(r.Context(), codec, req.Passphrase)
		name, contentType = application.ForeignFileName(codec, h.now()), "application/octet-stream"
	}
	if err != nil {
		h.writeVaultError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import reads a bundle or foreign archive into the vault.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	mode := application.ImportMode(req.Mode)
	var (
		res application.ImportResult
		err error
	)
	switch format := strings.ToLower(req.Format); format {
	case "", "tgvault":
		res, err = h.vault.Import(r.Context(), req.Data, req.Passphrase, mode)
	default:
		codec, ok := h.codecs[format]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown import format", "bad_request")
			return
		}
		res, err = h.vault.ImportForeign(r.Context(), codec, req.Data, req.Passphrase, mode)
	}
	if err != nil {
		h.writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Backup uploads an encrypted bundle to the configured remote store.
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		h.writeVaultError(w, model.ErrBackupNotConfigured)
		return
	}
	var req BackupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	location, err := h.backup.Backup(r.Context(), req.Passphrase)
	if err != nil {
		h.writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BackupResponse{Location: location})
}

// BackupStatus reports whether remote backup is available.
func (h *Handler) BackupStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BackupStatusResponse{
		Configured: h.backup != nil && h.backup.Configured(),
	})
}

// ConfigureBackup installs a new remote backup store from the request
// credentials. The token is handed to the store and never echoed back.
func (h *Handler) ConfigureBackup(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil || h.newBackupStore == nil {
		h.writeVaultError(w, model.ErrBackupNotConfigured)
		return
	}
	var req BackupConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required", "bad_request")
		return
	}

	h.backup.Configure(h.newBackupStore(req.Token, strings.TrimSpace(req.GistID)))
	h.logger.Info("backup store configured", "gist_id", req.GistID)
	w.WriteHeader(http.StatusNoContent)
}

// Restore imports the latest remote backup.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		h.writeVaultError(w, model.ErrBackupNotConfigured)
		return
	}
	var req BackupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.backup.Restore(r.Context(), req.Passphrase, application.ImportMode(req.Mode))
	if errors.Is(err, driven.ErrBackupNotFound) {
		writeError(w, http.StatusNotFound, "no backup found", "backup_not_found")
		return
	}
	if err != nil {
		h.writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
