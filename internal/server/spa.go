package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/ashita-ai/menusync/internal/model"
)

// spaHandler serves the frontend directory and falls back to index.html for
// client-side routing. API routes are registered on the mux before the
// catch-all so they take priority.
type spaHandler struct {
	fs     http.FileSystem
	static http.Handler
}

// newSPAHandler creates an http.Handler that serves the given filesystem as an SPA.
// Files under assets/ receive immutable cache headers. index.html is served
// with no-cache so clients always fetch the latest version.
func newSPAHandler(fsys fs.FS) http.Handler {
	httpFS := http.FS(fsys)
	return &spaHandler{
		fs:     httpFS,
		static: http.FileServer(httpFS),
	}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clean the path to prevent directory traversal.
	urlPath := path.Clean(r.URL.Path)
	if urlPath == "." {
		urlPath = "/"
	}

	// API paths that reach the SPA handler were not matched by any route.
	if isAPIPath(urlPath) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "endpoint not found")
		return
	}

	if urlPath != "/" {
		f, err := h.fs.Open(urlPath)
		if err == nil {
			stat, statErr := f.Stat()
			_ = f.Close()
			if statErr == nil && !stat.IsDir() {
				setCacheHeaders(w, urlPath)
				h.static.ServeHTTP(w, r)
				return
			}
		}
	}

	// File not found: serve index.html for client-side routing.
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.static.ServeHTTP(w, r2)
}

// isAPIPath reports whether p belongs to the JSON API. Requests to these
// paths that reach the SPA handler are genuine 404s.
func isAPIPath(p string) bool {
	switch p {
	case "/state", "/ws", "/order", "/wallet-adjust", "/task-complete", "/healthz", "/health":
		return true
	}
	return strings.HasPrefix(p, "/api/")
}

// setCacheHeaders sets cache-control headers based on the file path.
// Bundlers emit hashed filenames under assets/, so those can be cached
// aggressively. Everything else gets standard caching.
func setCacheHeaders(w http.ResponseWriter, urlPath string) {
	if strings.HasPrefix(urlPath, "/assets/") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
}
