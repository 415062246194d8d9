// Package web provides the HTTP host for the report pipeline: a small JSON
// API that starts batch runs on the worker pool and streams their progress
// events to the caller.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ruptura/internal/category"
	"ruptura/internal/report"
	"ruptura/internal/worker"
)

// Server is the HTTP host for report runs.
type Server struct {
	runner  *report.Runner
	pool    *worker.Pool
	creds   category.Credentials
	scanExt string

	router *chi.Mux
	server *http.Server

	mu   sync.RWMutex
	runs map[string]*runState
}

// runState accumulates one run's ordered events for status queries and for
// late-joining SSE subscribers.
type runState struct {
	mu      sync.RWMutex
	kind    report.Kind
	started time.Time
	events  []report.Event
	done    bool
	failed  bool
	errMsg  string
}

func (rs *runState) append(ev report.Event) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	switch ev.Type {
	case report.EventDone:
		rs.done = true
	case report.EventFailed:
		rs.done = true
		rs.failed = true
		rs.errMsg = ev.Message
	}
	rs.events = append(rs.events, ev)
}

func (rs *runState) snapshot() (events []report.Event, done, failed bool, errMsg string) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.events, rs.done, rs.failed, rs.errMsg
}

// NewServer creates a Server hosting runs through the given runner and pool.
// creds gate the product flow; scanExt selects store files in directory
// scans.
func NewServer(runner *report.Runner, pool *worker.Pool, creds category.Credentials, scanExt string) *Server {
	s := &Server{
		runner:  runner,
		pool:    pool,
		creds:   creds,
		scanExt: scanExt,
		router:  chi.NewRouter(),
		runs:    make(map[string]*runState),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/reports", s.handleStartReport)
		r.Get("/runs/{runID}", s.handleRunStatus)
		r.Get("/runs/{runID}/events", s.handleRunEvents)
	})
}

// Start begins listening on addr. Blocks until the server stops.
func (s *Server) Start(addr string, readTimeout, writeTimeout, idleTimeout time.Duration) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, draining active report runs first.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.pool.WaitForDrain(ctx); err != nil {
		return err
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) getRun(id string) (*runState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.runs[id]
	return rs, ok
}

func (s *Server) putRun(id string, rs *runState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = rs
}
