package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/metabib/pdf-markup/internal/config"
	"github.com/metabib/pdf-markup/internal/document"
	"github.com/metabib/pdf-markup/internal/extract"
	"github.com/metabib/pdf-markup/internal/fields"
	"github.com/metabib/pdf-markup/internal/template"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server is the HTTP surface of the markup service.
type Server struct {
	cfg       *config.Config
	docs      *document.Service
	extractor extract.Extractor
	engine    *template.Engine
	registry  *fields.Registry
	logger    *slog.Logger

	httpServer *http.Server
}

// Config carries the collaborators of a Server. Engine may be nil when
// template learning is disabled; the template routes are then not
// mounted.
type Config struct {
	Config    *config.Config
	Documents *document.Service
	Extractor extract.Extractor
	Engine    *template.Engine
	Registry  *fields.Registry
	Logger    *slog.Logger
}

// New creates the HTTP server.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Config == nil:
		return nil, fmt.Errorf("config is required")
	case cfg.Documents == nil:
		return nil, fmt.Errorf("document service is required")
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("field registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg.Config,
		docs:      cfg.Documents,
		extractor: cfg.Extractor,
		engine:    cfg.Engine,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Config.Address(),
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Router builds the route tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/pdf/*", s.handleServePDF)

	r.Route("/api", func(r chi.Router) {
		r.Get("/pdf-files", s.handlePDFFiles)
		r.Post("/pdf-info", s.handlePDFInfo)
		r.Get("/fields", s.handleFields)
		r.Post("/pdf-extract-text", s.handleExtractText)
		r.Post("/pdf-save-coordinates", s.handleSaveCoordinates)

		if s.engine != nil {
			r.Route("/bbox-templates", func(r chi.Router) {
				r.Get("/suggestions", s.handleTemplateSuggestions)
				r.Post("/save", s.handleTemplateSave)
				r.Post("/reset-field", s.handleTemplateResetField)
				r.Post("/delete", s.handleTemplateDelete)
				r.Get("/list", s.handleTemplateList)
				r.Post("/apply", s.handleTemplateApply)
			})
		}
	})

	return r
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}

// logRequests logs each request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
