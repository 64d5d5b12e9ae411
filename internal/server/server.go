// Package server exposes the translation service over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/haowjy/luminote-go/internal/config"
	"github.com/haowjy/luminote-go/internal/extract"
	"github.com/haowjy/luminote-go/internal/service"
	"github.com/haowjy/luminote-go/internal/version"
)

// Server is the Luminote HTTP server.
type Server struct {
	httpServer *http.Server
	svc        *service.Service
	extractor  *extract.Extractor
	logger     *slog.Logger
	version    string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by handlers and middleware.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithExtractor sets the page extractor behind /extract. By default one is
// built from the config, without a document cache.
func WithExtractor(e *extract.Extractor) Option {
	return func(s *Server) {
		s.extractor = e
	}
}

// WithVersion overrides the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New constructs a Server from the given config.
func New(cfg *config.Config, svc *service.Service, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		logger:  slog.Default(),
		version: version.Get().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extractor == nil {
		s.extractor = extract.New(
			extract.WithTimeout(cfg.Extract.Timeout.Duration),
			extract.WithUserAgent(cfg.Extract.UserAgent),
			extract.WithLogger(s.logger),
		)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix(cfg.APIPrefix).Subrouter()
	api.HandleFunc("/translate", s.handleTranslate).Methods(http.MethodPost)
	api.HandleFunc("/translate/stream", s.handleTranslateStream).Methods(http.MethodPost)
	api.HandleFunc("/config/validate", s.handleValidateConfig).Methods(http.MethodPost)
	api.HandleFunc("/extract", s.handleExtract).Methods(http.MethodPost)

	api.HandleFunc("/templates", s.handleListTemplates).Methods(http.MethodGet)
	api.HandleFunc("/templates", s.handleCreateTemplate).Methods(http.MethodPost)
	api.HandleFunc("/templates/render", s.handleRenderTemplate).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}", s.handleGetTemplate).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}", s.handleDeleteTemplate).Methods(http.MethodDelete)

	if svc.Versions() != nil {
		api.HandleFunc("/versions", s.handleListVersions).Methods(http.MethodGet)
		api.HandleFunc("/versions/{id}", s.handleGetVersion).Methods(http.MethodGet)
	}

	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	var handler http.Handler = router
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout.Duration,
		WriteTimeout:      cfg.WriteTimeout.Duration,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
