// Package server is the development HTTP server. It serves the development
// output tree, injects the reload client into HTML pages and exposes the
// reload socket, a status page and a health check.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/sitesmith/internal/logging"
	"github.com/conneroisu/sitesmith/internal/websocket"
)

// Options configures a development server.
type Options struct {
	// Addr is the listen address, host:port. Port 0 picks a free port.
	Addr string
	// Root is the directory served at "/".
	Root string
	// Open starts the system browser once the server listens.
	Open bool
}

// Server serves a development output tree with live reload.
type Server struct {
	opts   Options
	hub    *websocket.Hub
	logger logging.Logger

	httpServer  *http.Server
	listener    net.Listener
	serverMutex sync.RWMutex
	ready       chan struct{}

	results      map[string]TaskResult
	resultsMutex sync.RWMutex

	shutdownOnce sync.Once
}

// New creates a server. Nothing listens until Start.
func New(opts Options, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	logger = logger.WithComponent("server")

	return &Server{
		opts:    opts,
		hub:     websocket.NewHub(websocket.AllowedHosts(localOrigins(opts.Addr)), logger),
		logger:  logger,
		ready:   make(chan struct{}),
		results: make(map[string]TaskResult),
	}
}

// localOrigins lists the host:port pairs a browser on this machine may use.
func localOrigins(addr string) []string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil
	}
	origins := []string{
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
	}
	if host != "" && host != "localhost" && host != "127.0.0.1" {
		origins = append(origins, net.JoinHostPort(host, port))
	}
	return origins
}

// Hub returns the reload hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Notify sends msg to every connected browser.
func (s *Server) Notify(msg websocket.UpdateMessage) {
	s.hub.Broadcast(msg)
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, s.hub.HandleWebSocket)
	mux.HandleFunc(ReloadScriptPath, s.handleReloadScript)
	mux.HandleFunc(StatusPath, s.handleStatus)
	mux.HandleFunc(HealthPath, s.handleHealth)
	mux.Handle("/", s.staticHandler())

	return s.logRequests(mux)
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// URL returns the base URL the server listens on. It is empty before Ready.
func (s *Server) URL() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}

	addr := s.listener.Addr().String()
	host, port, err := net.SplitHostPort(addr)
	if err == nil && (host == "::" || host == "0.0.0.0" || host == "") {
		addr = net.JoinHostPort("localhost", port)
	}
	return "http://" + addr
}

// Start listens and serves until ctx is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}

	s.serverMutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()
	close(s.ready)

	url := s.URL()
	s.logger.Info(ctx, "Serving development build", "url", url, "root", s.opts.Root)

	if s.opts.Open {
		go s.openBrowser(ctx, url)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown closes reload connections and stops the HTTP server. It is safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		if err := s.hub.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, err, "Reload hub shutdown failed")
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *Server) openBrowser(ctx context.Context, url string) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		s.logger.Warn(ctx, nil, "Refusing to open non-http URL", "url", url)
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", logging.SanitizeForLog(r.URL.Path),
			"duration", time.Since(start))
	})
}
