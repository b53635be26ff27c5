package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// The shell uses a double-submit token: a cookie set on GET / and the same
// value echoed back in the lock form or in the X-CSRF-Token header that
// static/csrf.js adds to fetch calls.
const (
	csrfCookieName = "tgvault_csrf"
	csrfFormField  = "csrf_token"
	csrfHeader     = "X-CSRF-Token"
	csrfTokenBytes = 32
	csrfCookieTTL  = 12 * time.Hour
)

// issueCSRF returns the token already carried by the request, or mints a new
// one and sets it as a cookie.
func issueCSRF(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	raw := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfCookieTTL / time.Second),
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
	return token, nil
}

// checkCSRF reports whether the submitted token equals the cookie token.
func checkCSRF(r *http.Request) bool {
	c, err := r.Cookie(csrfCookieName)
	if err != nil || c.Value == "" {
		return false
	}

	submitted := r.Header.Get(csrfHeader)
	if submitted == "" {
		submitted = r.PostFormValue(csrfFormField)
	}
	if submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(c.Value)) == 1
}
