// Package server provides the HTTP API for the dossier service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/atifdosyasi/dossier/internal/auth"
	"github.com/atifdosyasi/dossier/internal/catalog"
	"github.com/atifdosyasi/dossier/internal/config"
	"github.com/atifdosyasi/dossier/internal/generate"
	"github.com/atifdosyasi/dossier/internal/session"
	"github.com/atifdosyasi/dossier/internal/upload"
	"github.com/atifdosyasi/dossier/internal/workspace"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server is the HTTP server for the dossier API.
type Server struct {
	ws           *workspace.Resolver
	sessions     *session.Store
	intake       *upload.Intake
	orchestrator *generate.Orchestrator
	catalog      *catalog.Catalog
	users        *auth.Store
	config       *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	ws *workspace.Resolver,
	sessions *session.Store,
	intake *upload.Intake,
	orchestrator *generate.Orchestrator,
	cat *catalog.Catalog,
	users *auth.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		ws:           ws,
		sessions:     sessions,
		intake:       intake,
		orchestrator: orchestrator,
		catalog:      cat,
		users:        users,
		config:       cfg,
		logger:       logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Generation runs can take minutes on large dossiers; the engine has
	// its own tighter timeout.
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Get("/api/session-get", s.handleSessionGet)
	r.Get("/api/session-data", s.handleSessionData)
	r.Post("/api/session-save", s.handleSessionSave)
	r.Post("/api/extract-doi", s.handleExtractDOI)
	r.Post("/api/check-pdf", s.handleCheckPDF)
	r.Post("/api/upload-cover", s.handleUploadCover)
	r.Post("/api/generate", s.handleGenerate)
	r.Get("/api/documents", s.handleDocuments)
	r.Post("/api/delete-document", s.handleDeleteDocument)
	r.Post("/api/clear", s.handleClear)
	r.Get("/api/download", s.handleDownload)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
