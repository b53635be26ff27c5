package httphandler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/cors"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

// DefaultAllowedOrigin is the Telegram web client that hosts the Mini App.
const DefaultAllowedOrigin = "https://web.telegram.org"

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// Hijack exposes the underlying connection for websocket upgrades.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// ApplyMiddleware wraps the mux with recovery, logging and CORS. Recovery is
// innermost so panics are caught before logging.
func ApplyMiddleware(h http.Handler, logger *slog.Logger, allowedOrigins []string) http.Handler {
	wrapped := recoveryMiddleware(logger, h)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = corsMiddleware(allowedOrigins)(wrapped)
	return wrapped
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{DefaultAllowedOrigin}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	})
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
// The query string is left out because the websocket token travels there.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error", "internal")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// crossOriginSafe reports whether r carries a header a browser only sends
// cross-origin after a CORS preflight. Endpoints that act without a session
// token use it to refuse simple cross-site form posts.
func crossOriginSafe(r *http.Request) bool {
	return r.Header.Get("Authorization") != "" || r.Header.Get("X-CSRF-Token") != ""
}

// requireSession rejects requests without a token for the current unlock.
func (h *Handler) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.tokens.Authorize(r); err != nil {
			if errors.Is(err, model.ErrVaultLocked) {
				h.writeVaultError(w, model.ErrVaultLocked)
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next(w, r)
	}
}
