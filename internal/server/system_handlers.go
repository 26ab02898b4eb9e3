package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/chartwatch/internal/config"
	"github.com/aristath/chartwatch/internal/database"
	"github.com/aristath/chartwatch/internal/events"
	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/prices"
	"github.com/aristath/chartwatch/internal/modules/rules"
	"github.com/aristath/chartwatch/internal/reliability"
)

// SystemHandlers handles system status, reset and backup operations
type SystemHandlers struct {
	log          zerolog.Logger
	cfg          *config.Config
	db           *database.DB
	trades       *journal.TradeRepository
	priceRepo    *prices.Repository
	ruleStore    *rules.Store
	eventManager *events.Manager
	backup       *reliability.BackupService
	startedAt    time.Time
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(
	log zerolog.Logger,
	cfg *config.Config,
	db *database.DB,
	trades *journal.TradeRepository,
	priceRepo *prices.Repository,
	ruleStore *rules.Store,
	eventManager *events.Manager,
	backup *reliability.BackupService,
) *SystemHandlers {
	return &SystemHandlers{
		log:          log.With().Str("component", "system_handlers").Logger(),
		cfg:          cfg,
		db:           db,
		trades:       trades,
		priceRepo:    priceRepo,
		ruleStore:    ruleStore,
		eventManager: eventManager,
		backup:       backup,
		startedAt:    time.Now(),
	}
}

// SystemStatusResponse is the payload for GET /api/system/status
type SystemStatusResponse struct {
	Status         string         `json:"status"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	CPUPercent     float64        `json:"cpu_percent"`
	MemoryPercent  float64        `json:"memory_percent"`
	Goroutines     int            `json:"goroutines"`
	Trades         map[string]int `json:"trades"`
	BackupsEnabled bool           `json:"backups_enabled"`
	LastChecked    string         `json:"last_checked"`
}

// HandleSystemStatus returns process and journal status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()

	tradeCounts, err := h.trades.CountByOutcome()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to count trades for status")
		tradeCounts = map[string]int{}
	}
	if pending, ok := tradeCounts[""]; ok {
		delete(tradeCounts, "")
		tradeCounts["pending"] = pending
	}

	response := SystemStatusResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:     cpuPercent,
		MemoryPercent:  memPercent,
		Goroutines:     runtime.NumGoroutine(),
		Trades:         tradeCounts,
		BackupsEnabled: h.cfg.Backup.Enabled(),
		LastChecked:    time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// DatabaseStatsResponse is the payload for GET /api/system/database/stats
type DatabaseStatsResponse struct {
	DatabasePath   string  `json:"database_path"`
	DatabaseSizeMB float64 `json:"database_size_mb"`
	RuleConfigPath string  `json:"rule_config_path"`
	RuleConfigSize int64   `json:"rule_config_bytes"`
	LastChecked    string  `json:"last_checked"`
}

// HandleDatabaseStats returns on-disk sizes of the journal and rule config
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		DatabasePath:   h.cfg.DatabasePath,
		RuleConfigPath: h.cfg.RuleConfig,
		LastChecked:    time.Now().Format(time.RFC3339),
	}

	if info, err := os.Stat(h.cfg.DatabasePath); err == nil {
		response.DatabaseSizeMB = float64(info.Size()) / 1024 / 1024
	}
	if info, err := os.Stat(h.cfg.RuleConfig); err == nil {
		response.RuleConfigSize = info.Size()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleReset wipes the journal, price history and rule statistics
func (h *SystemHandlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.log.Warn().Msg("System reset requested")

	if err := h.trades.Reset(); err != nil {
		h.log.Error().Err(err).Msg("Failed to reset trade journal")
		http.Error(w, "Failed to reset trade journal", http.StatusInternalServerError)
		return
	}

	if err := h.priceRepo.Reset(); err != nil {
		h.log.Error().Err(err).Msg("Failed to reset price history")
		http.Error(w, "Failed to reset price history", http.StatusInternalServerError)
		return
	}

	if err := h.ruleStore.Reset(); err != nil {
		h.log.Error().Err(err).Msg("Failed to reset rule config")
		http.Error(w, "Failed to reset rule config", http.StatusInternalServerError)
		return
	}

	h.eventManager.Emit(events.SystemReset, "system", map[string]interface{}{
		"reset_at": time.Now().Format(time.RFC3339),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Journal, price history and rule statistics reset to defaults",
	})
}

// HandleTriggerBackup runs a backup immediately
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	h.log.Info().Msg("Manual backup requested")

	result, err := h.backup.CreateBackup(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		http.Error(w, "Backup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"backup":  result,
	})
}

// HandleListBackups lists remotely stored backup archives
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backup.ListBackups(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a short sampling interval so the status endpoint stays fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
