package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleFile serves one output artifact by name. Directory listings and
// anything that is not a single .lua file name are refused.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.opts.FilesDir == "" || !strings.HasSuffix(name, ".lua") ||
		name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, filepath.Join(s.opts.FilesDir, name))
}
