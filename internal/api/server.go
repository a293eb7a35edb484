package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/ripq/internal/engine"
	"github.com/seantiz/ripq/internal/store"
)

const (
	shutdownTimeout     = 10 * time.Second
	readHeaderTimeout   = 10 * time.Second
	defaultWriteTimeout = 2 * time.Minute
	defaultMaxBodyBytes = 50 << 20
)

// Options holds the HTTP-facing settings.
type Options struct {
	// MasterKey is the bearer credential for submissions. Empty rejects all.
	MasterKey string

	// MaxBodyBytes caps the submission body.
	MaxBodyBytes int64

	// WriteTimeout bounds each response except log streams.
	WriteTimeout time.Duration

	// FilesDir is the directory output artifacts are served from.
	FilesDir string
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router  *chi.Mux
	engine  *engine.Engine
	history store.Store
	opts    Options
	logger  *slog.Logger
	addr    string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, eng *engine.Engine, history store.Store, opts Options, logger *slog.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	srv := &Server{
		router:  chi.NewRouter(),
		engine:  eng,
		history: history,
		opts:    opts,
		logger:  logger,
		addr:    addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.With(s.requireMasterKey).Post("/obfuscate", s.handleObfuscate)

	s.router.Get("/status", s.handleGlobalStatus)
	s.router.Get("/status/{id}", s.handleJobStatus)
	s.router.Get("/status/{id}/logs", s.handleStreamLogs)

	s.router.Get("/features", s.handleFeatures)
	s.router.Get("/type", s.handleType)

	// The archive lists public ids, which are the only credential for a
	// job's status and result URL.
	s.router.Group(func(r chi.Router) {
		r.Use(s.requireMasterKey)
		r.Get("/stats", s.handleGetStats)
		r.Get("/history", s.handleListHistory)
		r.Get("/history/{id}", s.handleGetHistory)
	})

	s.router.Get(engine.ResultPathPrefix+"{name}", s.handleFile)
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx).Error())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
