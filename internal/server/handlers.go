package server

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/sitesmith/internal/version"
)

func (s *Server) staticHandler() http.Handler {
	root := http.Dir(s.opts.Root)
	files := http.FileServer(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Browsers must always see the latest build.
		w.Header().Set("Cache-Control", "no-store")

		name := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") {
			name = path.Join(name, "index.html")
		}

		switch path.Ext(name) {
		case ".html", ".htm":
			if s.serveHTML(w, r, root, name) {
				return
			}
		}

		files.ServeHTTP(w, r)
	})
}

// serveHTML writes the page with the reload client injected. It returns
// false when name is not a regular file, leaving the request to the file
// server.
func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, root http.FileSystem, name string) bool {
	f, err := root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return true
		}
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	doc, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "Failed to read page", http.StatusInternalServerError)
		return true
	}

	injected, err := InjectScript(doc, ReloadScriptPath)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Serving page without reload client", "page", name)
		injected = doc
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return true
	}
	if _, err := w.Write(injected); err != nil {
		s.logger.Debug(r.Context(), "Failed to write page", "page", name, "error", err.Error())
	}
	return true
}

func (s *Server) handleReloadScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.WriteString(w, reloadScript); err != nil {
		s.logger.Debug(r.Context(), "Failed to write reload script", "error", err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Results()); err != nil {
			s.logger.Warn(r.Context(), err, "Failed to encode status response")
		}
		return
	}

	templ.Handler(statusPage(s.Results(), s.hub.ClientCount())).ServeHTTP(w, r)
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	failed := 0
	for _, res := range s.Results() {
		if res.Status == "failed" {
			failed++
		}
	}

	status := "healthy"
	if failed > 0 {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":       status,
		"timestamp":    time.Now().UTC(),
		"version":      version.GetShortVersion(),
		"root":         s.opts.Root,
		"clients":      s.hub.ClientCount(),
		"failed_tasks": failed,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
