// Package server exposes the reminder engine over HTTP.
//
// Routes:
//
//	POST /api/v1/events                     deliver a system event
//	GET  /api/v1/reminders                  list reminders (?status=)
//	POST /api/v1/reminders                  create a reminder
//	GET  /api/v1/reminders/{id}             fetch one reminder
//	GET  /api/v1/reminders/{id}/firings     firing history
//	POST /api/v1/reminders/{id}/reactivate  re-arm a FIRED reminder
//	GET  /api/v1/health                     database liveness
//	GET  /metrics                           Prometheus exposition
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/ir"
)

// Store is the reminder persistence the API reads and writes.
// store.Store implements it.
type Store interface {
	CreateReminder(ctx context.Context, r ir.Reminder) error
	GetReminder(ctx context.Context, id string) (ir.Reminder, error)
	ListReminders(ctx context.Context, status ir.Status) ([]ir.Reminder, error)
	SaveReminder(ctx context.Context, r ir.Reminder) error
	ListFirings(ctx context.Context, reminderID string) ([]ir.Firing, error)
	Ping(ctx context.Context) error
}

// Config for the server.
type Config struct {
	Addr       string
	Store      Store
	Dispatcher *engine.Dispatcher
	Controller *engine.Controller
	Logger     *slog.Logger
	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// IDs names reminders created without an id. Default: UUIDv7.
	IDs engine.IDGenerator
	// Now stamps created_at. Default: wall clock in epoch millis.
	Now func() int64
}

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	store      Store
	dispatcher *engine.Dispatcher
	ctrl       *engine.Controller
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
	ids        engine.IDGenerator
	now        func() int64
}

// New creates a server; call ListenAndServe to start it.
func New(cfg Config) *Server {
	s := &Server{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		ctrl:       cfg.Controller,
		logger:     cfg.Logger,
		gatherer:   cfg.Gatherer,
		ids:        cfg.IDs,
		now:        cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.ids == nil {
		s.ids = engine.UUIDv7Generator{}
	}
	if s.now == nil {
		s.now = func() int64 { return time.Now().UnixMilli() }
	}
	if s.ctrl == nil {
		s.ctrl = engine.NewController(engine.WithLogger(s.logger))
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/events", s.handleEvent)

		r.Get("/reminders", s.handleListReminders)
		r.Post("/reminders", s.handleCreateReminder)
		r.Get("/reminders/{id}", s.handleGetReminder)
		r.Get("/reminders/{id}/firings", s.handleListFirings)
		r.Post("/reminders/{id}/reactivate", s.handleReactivate)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router = r
}

// ListenAndServe serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
