// Package web implements the HTML shell the Mini App boots into, using templ
// components.
package web

//go:generate go tool templ generate

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/tgvault/internal/application"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

// Authorizer checks the session token of a request.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	vault  *application.VaultService
	auth   Authorizer
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(vault *application.VaultService, auth Authorizer, logger *slog.Logger) *Handler {
	return &Handler{vault: vault, auth: auth, logger: logger}
}

// Shell renders the page the Mini App loads first.
func (h *Handler) Shell(w http.ResponseWriter, r *http.Request) {
	token, err := issueCSRF(w, r)
	if err != nil {
		h.logger.Error("failed to issue csrf token", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	data := toShellViewModel(h.vault.State(), h.vault.RevealWindow(), token)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := Layout(data.Title, Shell(data)).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render shell", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// Notes renders the markdown notes of one credential as an HTML fragment.
func (h *Handler) Notes(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Authorize(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	c, err := h.vault.Find(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case errors.Is(err, model.ErrVaultLocked):
		http.Error(w, "vault is locked", http.StatusUnauthorized)
		return
	default:
		h.logger.Error("failed to load credential notes", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := Notes(toNotesViewModel(c)).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render notes", "id", c.ID, "error", err)
	}
}

// Lock handles the shell's lock form and redirects back to the shell.
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	if !checkCSRF(r) {
		http.Error(w, "invalid csrf token", http.StatusForbidden)
		return
	}

	h.vault.Lock()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
