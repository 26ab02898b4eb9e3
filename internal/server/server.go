// Package server provides the HTTP server and routing for Chartwatch.
package server

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/config"
	"github.com/aristath/chartwatch/internal/database"
	"github.com/aristath/chartwatch/internal/events"
	"github.com/aristath/chartwatch/internal/modules/analysis"
	analysishandlers "github.com/aristath/chartwatch/internal/modules/analysis/handlers"
	"github.com/aristath/chartwatch/internal/modules/audit"
	audithandlers "github.com/aristath/chartwatch/internal/modules/audit/handlers"
	"github.com/aristath/chartwatch/internal/modules/journal"
	journalhandlers "github.com/aristath/chartwatch/internal/modules/journal/handlers"
	"github.com/aristath/chartwatch/internal/modules/prices"
	"github.com/aristath/chartwatch/internal/modules/rules"
	ruleshandlers "github.com/aristath/chartwatch/internal/modules/rules/handlers"
	"github.com/aristath/chartwatch/internal/modules/stats"
	statshandlers "github.com/aristath/chartwatch/internal/modules/stats/handlers"
	"github.com/aristath/chartwatch/internal/reliability"
	"github.com/aristath/chartwatch/pkg/embedded"
)

// Config holds server configuration
type Config struct {
	Log              zerolog.Logger
	Config           *config.Config
	DB               *database.DB
	EventManager     *events.Manager
	AnalysisService  *analysis.Service
	Auditor          *audit.Auditor
	TradeRepo        *journal.TradeRepository
	PriceRepo        *prices.Repository
	RuleStore        *rules.Store
	EvolutionService *rules.EvolutionService
	StatsService     *stats.Service
	BackupService    *reliability.BackupService
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	systemHandlers *SystemHandlers
	deps           Config
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	_ = mime.AddExtensionType(".js", "application/javascript")
	_ = mime.AddExtensionType(".css", "text/css")

	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.Config,
		cfg.DB,
		cfg.TradeRepo,
		cfg.PriceRepo,
		cfg.RuleStore,
		cfg.EventManager,
		cfg.BackupService,
	)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		systemHandlers: systemHandlers,
		deps:           cfg,
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check (before SPA routing)
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Long-lived event feeds, registered first
		eventsStreamHandler := NewEventsStreamHandler(s.deps.EventManager, s.log)
		r.Get("/events/stream", eventsStreamHandler.ServeHTTP)

		eventsSocketHandler := NewEventsSocketHandler(s.deps.EventManager, s.log)
		r.Get("/events/ws", eventsSocketHandler.ServeHTTP)

		// System routes
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Post("/reset", s.systemHandlers.HandleReset)
			r.Post("/backup", s.systemHandlers.HandleTriggerBackup)
			r.Get("/backups", s.systemHandlers.HandleListBackups)
		})

		// Analysis module (chart upload and scan)
		analysisHandler := analysishandlers.NewAnalysisHandlers(s.deps.AnalysisService, s.log)
		analysisHandler.RegisterRoutes(r)

		// Journal module (trade log)
		journalHandler := journalhandlers.NewJournalHandlers(s.deps.TradeRepo, s.log)
		journalHandler.RegisterRoutes(r)

		// Audit module (manual price audit)
		auditHandler := audithandlers.NewAuditHandlers(s.deps.Auditor, s.deps.PriceRepo, s.log)
		auditHandler.RegisterRoutes(r)

		// Rules module (rule stats and evolution)
		ruleHandler := ruleshandlers.NewRuleHandlers(s.deps.RuleStore, s.deps.EvolutionService, s.log)
		ruleHandler.RegisterRoutes(r)

		// Stats module (performance summary, scatter, latest price)
		statsHandler := statshandlers.NewStatsHandlers(s.deps.StatsService, s.deps.PriceRepo, s.log)
		statsHandler.RegisterRoutes(r)
	})

	// Serve the dashboard from the embedded filesystem
	frontendFS, err := fs.Sub(embedded.Files, "frontend")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create frontend filesystem from embedded files")
		return
	}

	fileServer := http.FileServer(http.FS(frontendFS))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	s.router.Get("/", s.handleDashboard(frontendFS))
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api") || strings.HasPrefix(r.URL.Path, "/health") {
			http.NotFound(w, r)
			return
		}
		s.handleDashboard(frontendFS)(w, r)
	})
}

// handleHealth responds to health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleDashboard serves the dashboard HTML from the embedded filesystem
func (s *Server) handleDashboard(frontendFS fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		indexFile, err := frontendFS.Open("index.html")
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to open embedded index.html")
			http.Error(w, "Frontend not available", http.StatusInternalServerError)
			return
		}
		defer indexFile.Close()

		data, err := io.ReadAll(indexFile)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to read embedded index.html")
			http.Error(w, "Frontend not available", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(data); err != nil {
			s.log.Error().Err(err).Msg("Failed to write index.html response")
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
