package viewer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
)

// HTTPServer defines the surface the Viewer uses to expose its routes
type HTTPServer interface {
	// RegisterHandler registers a handler for a specific route pattern
	RegisterHandler(pattern string, handler http.HandlerFunc)
}

// Server is a loopback HTTP server with an explicitly owned listener. The
// listener is bound exactly once per running period; a bind failure surfaces
// core.ErrPortUnavailable instead of silently picking another port. Port 0
// opts into auto-selection.
type Server struct {
	host string
	port int
	log  logger.Logger

	mu       sync.Mutex
	mux      *http.ServeMux
	srv      *http.Server
	listener net.Listener
}

// NewServer creates a server bound to host:port once started. Handlers can be
// registered at any time before or after Start.
func NewServer(host string, port int, log logger.Logger) *Server {
	if host == "" {
		host = "127.0.0.1"
	}
	return &Server{
		host: host,
		port: port,
		log:  log,
		mux:  http.NewServeMux(),
	}
}

// RegisterHandler registers a handler for a specific route pattern
func (s *Server) RegisterHandler(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Start binds the listening socket and serves in the background. Calling
// Start while the server is already running is a no-op, so repeated show
// requests reuse the existing listener.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrPortUnavailable, err)
	}

	s.listener = listener
	s.srv = &http.Server{Handler: s.mux}

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("viewer server stopped unexpectedly")
		}
	}(s.srv)

	s.log.Infof("viewer available at http://%s", listener.Addr())
	return nil
}

// Running reports whether the listener is currently bound.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Addr returns the bound address (host:port), or "" when not running. With
// auto-selection this is the only way to learn the effective port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the base URL of the running server, or "" when not running.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

// Shutdown gracefully stops the server and releases the listener. The server
// can be started again afterwards; registered handlers are kept.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down viewer server: %w", err)
	}
	return nil
}
