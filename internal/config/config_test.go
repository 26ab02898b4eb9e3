package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CHARTWATCH_DATA_DIR", dataDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "chartwatch.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(dataDir, "chartwatch_rules.json"), cfg.RuleConfig)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta", cfg.GeminiBaseURL)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, "0 0 2 * * *", cfg.Backup.Schedule)
	assert.Equal(t, 7, cfg.Backup.KeepLast)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHARTWATCH_DATA_DIR", t.TempDir())
	t.Setenv("CHARTWATCH_PORT", "9090")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GEMINI_API_KEY", "k-123")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "k-123", cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-2.5-pro", cfg.GeminiModel)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("CHARTWATCH_DATA_DIR", t.TempDir())
	t.Setenv("CHARTWATCH_PORT", "70000")

	_, err := Load()
	assert.ErrorContains(t, err, "invalid port")
}

func TestBackupConfig_Enabled(t *testing.T) {
	cfg := BackupConfig{}
	assert.False(t, cfg.Enabled())

	cfg.Bucket = "backups"
	assert.False(t, cfg.Enabled())

	cfg.AccessKeyID = "key"
	cfg.SecretAccessKey = "secret"
	assert.True(t, cfg.Enabled())
}
