// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clayworth/gapless/internal/api"
	"github.com/clayworth/gapless/internal/config"
	"github.com/clayworth/gapless/internal/db"
	"github.com/clayworth/gapless/internal/logger"
	"github.com/clayworth/gapless/internal/middleware"
	"github.com/clayworth/gapless/internal/playback"
	"github.com/clayworth/gapless/internal/player"
	"github.com/clayworth/gapless/internal/resolver"
	"github.com/clayworth/gapless/internal/signer"
	"github.com/clayworth/gapless/internal/store"
)

// Server represents the HTTP server
type Server struct {
	config        *config.Config
	db            *db.DB
	repos         *db.Repositories
	catalog       *store.Service
	signerService *signer.Service
	sessions      *player.Manager
	router        *gin.Engine
	server        *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, database *db.DB) *Server {
	repos := db.NewRepositories(database)
	catalog := store.NewService(database, repos)

	resolverBase := cfg.Resolver.BaseURL
	var signerService *signer.Service
	if cfg.Resolver.Embedded {
		selfBase := fmt.Sprintf("http://%s:%d", selfHost(cfg.Server.Host), cfg.Server.Port)
		signerService = signer.New(cfg.Resolver.SigningSecret, selfBase, cfg.Resolver.URLTTL)
		resolverBase = selfBase
	}

	resolverCfg := resolver.Config{
		BaseURL:            resolverBase,
		APIKey:             cfg.Resolver.APIKey,
		RequestTimeout:     cfg.Resolver.RequestTimeout,
		BatchSize:          cfg.Resolver.BatchSize,
		ExpirySafetyMargin: cfg.Resolver.ExpirySafetyMargin,
	}
	resolverFactory := func(bookID uuid.UUID, chunkCount int) playback.URLResolver {
		return resolver.New(resolverCfg, bookID, chunkCount)
	}

	// Signed URLs carry the chunk duration, so the server-side playback
	// clock paces itself without touching the media bytes.
	handleFactory := func() playback.Handle {
		return playback.NewClockHandle(signer.DurationFromURL, cfg.Playback.TickInterval)
	}

	playbackCfg := playback.Config{
		TransitionThreshold:  cfg.Playback.TransitionThreshold,
		PrefetchWindow:       cfg.Playback.PrefetchWindow,
		InitialResolveWindow: cfg.Playback.InitialResolveWindow,
	}
	sessions := player.NewManager(catalog, resolverFactory, handleFactory, playbackCfg)

	return &Server{
		config:        cfg,
		db:            database,
		repos:         repos,
		catalog:       catalog,
		signerService: signerService,
		sessions:      sessions,
	}
}

// selfHost rewrites wildcard bind addresses into something the in-process
// resolver client can dial.
func selfHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	// Set Gin mode based on log level
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	// Middleware stack
	s.router.Use(middleware.RequestLogger())
	s.router.Use(gin.Recovery())
	s.router.Use(cors.Default())

	apiGroup := s.router.Group("/api")

	api.SetupHealthRoutes(apiGroup, s.db)
	api.SetupBookRoutes(apiGroup, s.catalog)
	api.SetupPlayerRoutes(apiGroup, s.sessions)

	if s.signerService != nil {
		signer.SetupResolveRoutes(s.router, s.signerService, s.catalog)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.setupRouter()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Bool("embedded_signer", s.signerService != nil).
		Msg("Starting HTTP server")

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	// Close all listening sessions before the listener goes away
	if s.sessions != nil {
		s.sessions.Stop()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	logger.Log.Info().Msg("Server stopped")
	return nil
}
