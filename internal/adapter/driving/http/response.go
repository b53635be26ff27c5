package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/tgvault/internal/cipher"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","kind":"internal"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// writeVaultError maps a vault error onto a status code and a toast-ready
// body. Errors outside the vault vocabulary are logged and hidden.
func (h *Handler) writeVaultError(w http.ResponseWriter, err error) {
	sentinel := model.Sentinel(err)
	if sentinel == nil {
		h.logger.Error("vault operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", "internal")
		return
	}
	if model.IsTerminal(err) {
		h.logger.Error("vault is corrupted", "error", err)
	}

	writeJSON(w, statusForError(sentinel), errorResponse{
		Error:    sentinel.Error(),
		Kind:     model.ErrorKind(sentinel),
		Terminal: model.IsTerminal(sentinel),
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, model.ErrWeakPassphrase),
		errors.Is(err, model.ErrInvalidCredential),
		errors.Is(err, model.ErrImportModeRequired),
		errors.Is(err, model.ErrUnsupportedVersion),
		errors.Is(err, model.ErrBundleCorrupted):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidPassphrase),
		errors.Is(err, model.ErrVaultLocked):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrVaultExists),
		errors.Is(err, model.ErrVaultNotInitialized),
		errors.Is(err, model.ErrOperationInProgress),
		errors.Is(err, model.ErrEmptyVault):
		return http.StatusConflict
	case errors.Is(err, model.ErrBackupNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the standard error response body. Kind is stable and
// drives the Mini App's toast and haptic feedback.
type errorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	Terminal bool   `json:"terminal,omitempty"`
}

// StateResponse describes the vault session.
type StateResponse struct {
	State          string `json:"state"`
	RevealWindowMS int64  `json:"reveal_window_ms"`
}

// PassphraseRequest is the JSON body for create and unlock.
type PassphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

// ResetConfirmation must be sent verbatim to reset the vault.
const ResetConfirmation = "delete all credentials"

// ResetRequest is the JSON body for DELETE /api/v1/vault.
type ResetRequest struct {
	Confirm string `json:"confirm"`
}

// ChangePassphraseRequest is the JSON body for the passphrase change endpoint.
type ChangePassphraseRequest struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

// TokenResponse is returned after a successful create or unlock.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	State     string `json:"state"`
}

// CredentialRequest is the JSON body for add and update.
type CredentialRequest struct {
	Service  string `json:"service"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
	Website  string `json:"website"`
	Category string `json:"category"`
	Notes    string `json:"notes"`
}

func (r CredentialRequest) input() model.CredentialInput {
	return model.CredentialInput{
		Service:  r.Service,
		Username: r.Username,
		Secret:   r.Secret,
		Website:  r.Website,
		Category: r.Category,
		Notes:    r.Notes,
	}
}

// CredentialResponse is the JSON representation of a credential. The secret
// is never included; it is fetched through the reveal endpoint.
type CredentialResponse struct {
	ID        string `json:"id"`
	Service   string `json:"service"`
	Username  string `json:"username"`
	Website   string `json:"website"`
	Category  string `json:"category"`
	Icon      string `json:"icon"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// RevealResponse carries one cleartext secret and how long it may be shown.
type RevealResponse struct {
	ID          string `json:"id"`
	Secret      string `json:"secret"`
	MaskAfterMS int64  `json:"mask_after_ms"`
}

// StatsResponse is the JSON representation of the header counters.
type StatsResponse struct {
	Total         int            `json:"total"`
	SecurityScore int            `json:"security_score"`
	ByCategory    map[string]int `json:"by_category"`
}

// CategoryResponse describes one category for the Mini App's filter chips.
type CategoryResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// GenerateResponse is a generated password with its strength verdict.
type GenerateResponse struct {
	Password string `json:"password"`
	Strong   bool   `json:"strong"`
}

// ExportRequest is the JSON body for the export endpoint. Format is
// "tgvault" (default) or the name of a foreign codec such as "kdbx".
type ExportRequest struct {
	Passphrase string `json:"passphrase"`
	Format     string `json:"format"`
}

// ImportRequest is the JSON body for the import endpoint. Data is the file
// content, base64 encoded by encoding/json.
type ImportRequest struct {
	Passphrase string `json:"passphrase"`
	Mode       string `json:"mode"`
	Format     string `json:"format"`
	Data       []byte `json:"data"`
}

// BackupRequest is the JSON body for backup and restore.
type BackupRequest struct {
	Passphrase string `json:"passphrase"`
	Mode       string `json:"mode,omitempty"`
}

// BackupConfigRequest carries the credentials for the remote backup store.
type BackupConfigRequest struct {
	Token  string `json:"token"`
	GistID string `json:"gist_id,omitempty"`
}

// BackupStatusResponse reports whether remote backup is available.
type BackupStatusResponse struct {
	Configured bool `json:"configured"`
}

// BackupResponse reports where a backup was stored.
type BackupResponse struct {
	Location string `json:"location"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Time   string `json:"time"`
}

// toCredentialResponse converts a domain Credential to its JSON representation.
func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{
		ID:        c.ID,
		Service:   c.Service,
		Username:  c.Username,
		Website:   c.Website,
		Category:  string(c.Category),
		Icon:      c.Category.Info().Icon,
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toStatsResponse(s model.Stats) StatsResponse {
	by := make(map[string]int, len(s.ByCategory))
	for c, n := range s.ByCategory {
		by[string(c)] = n
	}
	return StatsResponse{Total: s.Total, SecurityScore: s.SecurityScore, ByCategory: by}
}

func toCategoryResponses(infos []model.CategoryInfo) []CategoryResponse {
	resp := make([]CategoryResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, CategoryResponse{ID: string(info.Category), Label: info.Label, Icon: info.Icon})
	}
	return resp
}

func toGenerateResponse(password string) GenerateResponse {
	return GenerateResponse{Password: password, Strong: cipher.Strong(password)}
}
