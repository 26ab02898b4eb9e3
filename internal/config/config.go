// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the database, rule config and backups (always absolute)
	DatabasePath string // SQLite journal database (derived from DataDir)
	RuleConfig   string // Rule statistics JSON document (derived from DataDir)
	Port         int
	DevMode      bool
	LogLevel     string

	// Gemini multimodal endpoint
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// Optional S3-compatible backup target (disabled when bucket is empty)
	Backup BackupConfig
}

// BackupConfig holds settings for the S3-compatible backup target
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for R2/MinIO style targets; empty = AWS S3
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string // Cron spec for the nightly backup job
	KeepLast        int    // Number of remote backups to retain
}

// Enabled reports whether cloud backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != "" && b.AccessKeyID != "" && b.SecretAccessKey != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CHARTWATCH_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		DatabasePath: filepath.Join(absDataDir, "chartwatch.db"),
		RuleConfig:   filepath.Join(absDataDir, "chartwatch_rules.json"),
		Port:         getEnvAsInt("CHARTWATCH_PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 2 * * *"),
			KeepLast:        getEnvAsInt("BACKUP_KEEP_LAST", 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	// Note: Gemini API key optional at startup - scan and evolve requests
	// fail with a clear error when the key is missing.
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
