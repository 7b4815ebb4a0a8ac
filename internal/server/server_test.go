package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInjectScript(t *testing.T) {
	out, err := InjectScript([]byte(`<html><body><p>hi</p></body></html>`), ReloadScriptPath)
	require.NoError(t, err)

	doc := string(out)
	assert.Contains(t, doc, `<p>hi</p><script src="/__sitesmith/reload.js"></script></body>`)
}

func TestInjectScriptFragment(t *testing.T) {
	out, err := InjectScript([]byte(`<h1>Title</h1>`), "/r.js")
	require.NoError(t, err)
	assert.Contains(t, string(out), `<h1>Title</h1><script src="/r.js"></script></body>`)
}

func TestStaticServesPagesWithReloadClient(t *testing.T) {
	root := writeSite(t, map[string]string{
		"index.html":      "<html><body>home</body></html>",
		"about.html":      "<html><body>about</body></html>",
		"css/style.css":   "body{color:red}",
		"blog/index.html": "<html><body>blog</body></html>",
	})
	s := New(Options{Addr: "localhost:0", Root: root}, nil)
	h := s.Handler()

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home")
	assert.Contains(t, rec.Body.String(), ReloadScriptPath)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = get(t, h, "/about.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ReloadScriptPath)

	rec = get(t, h, "/blog/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "blog")

	rec = get(t, h, "/css/style.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{color:red}", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/missing.html").Code)
}

func TestStaticStaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "build")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.html"), []byte("secret"), 0o644))

	s := New(Options{Addr: "localhost:0", Root: root}, nil)

	// The mux cleans the path and redirects; the target is inside the root.
	rec := get(t, s.Handler(), "/../secret.html")
	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	location := rec.Header().Get("Location")
	assert.Equal(t, "/secret.html", location)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), location).Code)

	// Unclean paths that reach the file handler directly are still confined.
	rec = get(t, s.staticHandler(), "/../secret.html")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestReloadScriptRoute(t *testing.T) {
	s := New(Options{Addr: "localhost:0", Root: t.TempDir()}, nil)

	rec := get(t, s.Handler(), ReloadScriptPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), WebSocketPath)
	assert.Contains(t, rec.Body.String(), "css_update")
}

func TestStatusPage(t *testing.T) {
	s := New(Options{Addr: "localhost:0", Root: t.TempDir()}, nil)
	s.RecordResult(TaskResult{Task: "styles", Status: "succeeded", Outputs: 2})
	s.RecordResult(TaskResult{Task: "markup", Status: "failed", Error: "<bad> template"})

	rec := get(t, s.Handler(), StatusPath)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "styles")
	assert.Contains(t, body, "&lt;bad&gt; template")
	assert.NotContains(t, body, "<bad>")
	assert.Less(t, strings.Index(body, "markup"), strings.Index(body, "styles"))

	rec = get(t, s.Handler(), StatusPath, "Accept", "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []TaskResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "markup", results[0].Task)
	assert.False(t, results[0].Finished.IsZero())
}

func TestRecordResultKeepsLatest(t *testing.T) {
	s := New(Options{Addr: "localhost:0", Root: t.TempDir()}, nil)
	s.RecordResult(TaskResult{Task: "styles", Status: "failed", Error: "boom"})
	s.RecordResult(TaskResult{Task: "styles", Status: "succeeded"})

	results := s.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "succeeded", results[0].Status)
	assert.Empty(t, results[0].Error)
}

func TestHealth(t *testing.T) {
	s := New(Options{Addr: "localhost:0", Root: t.TempDir()}, nil)

	rec := get(t, s.Handler(), HealthPath)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])

	s.RecordResult(TaskResult{Task: "markup", Status: "failed"})
	rec = get(t, s.Handler(), HealthPath)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health["status"])
	assert.EqualValues(t, 1, health["failed_tasks"])
}

func TestStartAndShutdownOnCancel(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": "<html><body>up</body></html>"})
	s := New(Options{Addr: "127.0.0.1:0", Root: root}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(s.URL() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "up")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestLocalOrigins(t *testing.T) {
	assert.Equal(t, []string{"localhost:3000", "127.0.0.1:3000"}, localOrigins("localhost:3000"))
	assert.Equal(t, []string{"localhost:8080", "127.0.0.1:8080", "0.0.0.0:8080"}, localOrigins("0.0.0.0:8080"))
	assert.Nil(t, localOrigins("nonsense"))
}
