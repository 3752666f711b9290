// Package server exposes the sample subsystem over HTTP: classification,
// pitch lookups and background preload jobs with SSE progress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dygy/strudel-samples/internal/pipeline"
)

// Config holds server configuration
type Config struct {
	Port   int
	Logger *slog.Logger
}

// Server is the HTTP server
type Server struct {
	config    Config
	router    *chi.Mux
	logger    *slog.Logger
	preloader *pipeline.Preloader
	jobs      *JobManager

	// jobs outlive the request that started them
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a new server around a process-scoped preloader
func New(cfg Config, preloader *pipeline.Preloader) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		preloader: preloader,
		jobs:      NewJobManager(preloader),
		baseCtx:   ctx,
		cancel:    cancel,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))

	r.Get("/health", s.handleHealth)
	r.Get("/banks", s.handleBanks)
	r.Get("/classify/{name}", s.handleClassify)
	r.Get("/pitch/{bank}/{note}", s.handlePitch)

	r.Post("/preload", s.handlePreload)
	r.Post("/samples", s.handleSamples)
	r.Get("/status/{id}", s.handleStatus)
	r.Get("/jobs/{id}", s.handleJob)
}

// Run starts the server and blocks until SIGINT/SIGTERM
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // Long for SSE
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		s.logger.Info("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", slog.Any("error", err))
		}
		s.cancel()
		close(done)
	}()

	s.logger.Info("server starting", slog.Int("port", s.config.Port), slog.String("root", s.preloader.Cache().Root()))
	fmt.Printf("\n  strudel-samples API running at: http://localhost:%d\n\n", s.config.Port)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	return nil
}

// Close cancels running jobs
func (s *Server) Close() {
	s.cancel()
}
