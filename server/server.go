package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hupe1980/agentruntime"
	"github.com/hupe1980/agentruntime/logging"
)

// Options configures the HTTP server.
type Options struct {
	// Addr is the TCP address to listen on. Defaults to ":8080".
	Addr string

	// ReadTimeout bounds request reading.
	ReadTimeout time.Duration

	// WriteTimeout bounds response writing. The default is generous because
	// streamed turns hold the connection open until the final event.
	WriteTimeout time.Duration

	// Logger receives structured request events. Defaults to no-op.
	Logger logging.Logger
}

// Server exposes a Runtime over HTTP: session management, memory ingestion
// and search, and batch (/run) and streaming (/run_sse) turn execution.
type Server struct {
	runtime *agentruntime.Runtime
	logger  logging.Logger

	mux        *http.ServeMux
	httpServer *http.Server
}

// New builds a Server around the given runtime with optional overrides.
func New(rt *agentruntime.Runtime, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		runtime: rt,
		logger:  opts.Logger,
		mux:     http.NewServeMux(),
	}

	s.routes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.mux,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /apps/{app}/users/{user}/sessions/{session}", s.handleCreateSession)
	s.mux.HandleFunc("GET /apps/{app}/users/{user}/sessions/{session}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /apps/{app}/users/{user}/sessions/{session}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /apps/{app}/users/{user}/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /apps/{app}/users/{user}/sessions/{session}/memory", s.handleAddSessionToMemory)
	s.mux.HandleFunc("GET /apps/{app}/users/{user}/memory/search", s.handleSearchMemory)
	s.mux.HandleFunc("POST /run", s.handleRun)
	s.mux.HandleFunc("POST /run_sse", s.handleRunSSE)
}

// Handler returns the route handler, e.g. for tests or custom listeners.
func (s *Server) Handler() http.Handler { return s.mux }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Serve listens on the configured address and blocks until Shutdown is
// called or the listener fails. A clean shutdown returns nil.
func (s *Server) Serve() error {
	s.logger.Info("server.listen", "addr", s.httpServer.Addr, "app", s.runtime.AppName())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
