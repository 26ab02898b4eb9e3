// Package main is the entry point for Chartwatch, a chart-analysis journal.
// Uploaded chart images are analyzed by a multimodal model against the
// best-performing trading rule, verdicts are logged to SQLite, and an audit
// pass closes pending trades against later observed prices.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/chartwatch/internal/clients/gemini"
	"github.com/aristath/chartwatch/internal/config"
	"github.com/aristath/chartwatch/internal/database"
	"github.com/aristath/chartwatch/internal/events"
	"github.com/aristath/chartwatch/internal/modules/analysis"
	"github.com/aristath/chartwatch/internal/modules/audit"
	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/prices"
	"github.com/aristath/chartwatch/internal/modules/rules"
	"github.com/aristath/chartwatch/internal/modules/stats"
	"github.com/aristath/chartwatch/internal/reliability"
	"github.com/aristath/chartwatch/internal/scheduler"
	"github.com/aristath/chartwatch/internal/server"
	"github.com/aristath/chartwatch/pkg/logger"
)

// Audit re-check cadence. Frequent enough that pending trades close soon
// after a price lands, cheap enough to run unconditionally.
const auditSchedule = "0 */15 * * * *"

func main() {
	// Load configuration first so the log level is configurable
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Chartwatch")

	// Database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Shared services
	eventManager := events.NewManager(log)
	geminiClient := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, log)

	tradeRepo := journal.NewTradeRepository(db.Conn(), log)
	priceRepo := prices.NewRepository(db.Conn(), log)
	ruleStore := rules.NewStore(cfg.RuleConfig, log)

	auditor := audit.New(tradeRepo, ruleStore, geminiClient, eventManager, log)
	analysisService := analysis.NewService(geminiClient, tradeRepo, priceRepo, ruleStore, auditor, eventManager, log)
	evolutionService := rules.NewEvolutionService(ruleStore, geminiClient, eventManager, log)
	statsService := stats.NewService(ruleStore, tradeRepo, log)

	// Backup service, with or without a cloud target
	var storage *reliability.S3Client
	if cfg.Backup.Enabled() {
		storage, err = reliability.NewS3Client(cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage")
		}
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Cloud backups enabled")
	} else {
		log.Info().Msg("Cloud backups disabled, archives kept locally")
	}
	backupService := reliability.NewBackupService(
		db, tradeRepo, ruleStore, storage, eventManager,
		cfg.DataDir, cfg.Backup.KeepLast, log,
	)

	// Background jobs
	auditJob := audit.NewJob(auditor, priceRepo, log)
	sched := scheduler.New(log)
	if err := sched.AddJob(auditSchedule, auditJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register audit job")
	}
	if err := sched.AddJob(cfg.Backup.Schedule, reliability.NewBackupJob(backupService, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register backup job")
	}
	sched.Start()
	defer sched.Stop()

	// Catch up on trades left pending across a restart
	if err := sched.RunNow(auditJob); err != nil {
		log.Warn().Err(err).Msg("Startup audit failed")
	}

	// HTTP server
	srv := server.New(server.Config{
		Log:              log,
		Config:           cfg,
		DB:               db,
		EventManager:     eventManager,
		AnalysisService:  analysisService,
		Auditor:          auditor,
		TradeRepo:        tradeRepo,
		PriceRepo:        priceRepo,
		RuleStore:        ruleStore,
		EvolutionService: evolutionService,
		StatsService:     statsService,
		BackupService:    backupService,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
