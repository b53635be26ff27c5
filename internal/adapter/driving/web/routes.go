package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

// staticMaxAge is the Cache-Control max-age for embedded assets. Telegram
// reopens the Mini App often, so the stylesheet and script are worth caching.
const staticMaxAge = "public, max-age=3600"

// RegisterRoutes registers the shell page, the notes fragment, the lock form
// target and the embedded assets.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("web: static assets missing: " + err.Error())
	}
	mux.Handle("GET /static/", cacheAssets(http.StripPrefix("/static/", http.FileServerFS(assets))))

	mux.HandleFunc("GET /{$}", h.Shell)
	mux.HandleFunc("GET /app/credentials/{id}/notes", h.Notes)
	mux.HandleFunc("POST /app/lock", h.Lock)
}

func cacheAssets(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", staticMaxAge)
		next.ServeHTTP(w, r)
	})
}
