package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/chartwatch/internal/database"
	"github.com/aristath/chartwatch/internal/events"
	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/rules"
)

func TestBackupService_LocalBackup(t *testing.T) {
	dataDir := t.TempDir()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := database.New(filepath.Join(dataDir, "chartwatch.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	trades := journal.NewTradeRepository(db.Conn(), log)
	_, err = trades.Create(journal.Trade{
		Verdict:     journal.VerdictBuy,
		VerdictText: "setup",
		RuleApplied: "Avoid chasing vertical moves.",
		EntryPrice:  100,
		TargetPrice: 110,
		StopPrice:   95,
		Confidence:  70,
	})
	require.NoError(t, err)

	ruleStore := rules.NewStore(filepath.Join(dataDir, "rules.json"), log)
	require.NoError(t, ruleStore.Save(rules.DefaultDocument()))

	// No cloud storage configured: archive stays under dataDir/backups
	service := NewBackupService(db, trades, ruleStore, nil, events.NewManager(log), dataDir, 7, log)

	result, err := service.CreateBackup(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Archive, "chartwatch-backup-"))
	assert.False(t, result.Uploaded)
	assert.Equal(t, 1, result.TradeCount)
	assert.Greater(t, result.SizeBytes, int64(0))

	archivePath := filepath.Join(dataDir, "backups", result.Archive)
	info, err := os.Stat(archivePath)
	require.NoError(t, err)
	assert.Equal(t, result.SizeBytes, info.Size())

	// Archive contains the snapshot, the database copy and metadata
	names := readArchiveNames(t, archivePath)
	assert.ElementsMatch(t, []string{"snapshot.msgpack", "chartwatch.db", "backup-metadata.json"}, names)

	// Staging dir is cleaned up
	_, err = os.Stat(filepath.Join(dataDir, "backup-staging"))
	assert.True(t, os.IsNotExist(err))
}

func TestBackupService_SnapshotSurvivesRoundtrip(t *testing.T) {
	dataDir := t.TempDir()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := database.New(filepath.Join(dataDir, "chartwatch.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	trades := journal.NewTradeRepository(db.Conn(), log)
	_, err = trades.Create(journal.Trade{
		ChartID:     "chart-9",
		Verdict:     journal.VerdictSell,
		VerdictText: "double top",
		RuleApplied: "Check RSI for 70+ levels.",
		EntryPrice:  55,
		TargetPrice: 50,
		StopPrice:   57,
		Confidence:  65,
	})
	require.NoError(t, err)

	ruleStore := rules.NewStore(filepath.Join(dataDir, "rules.json"), log)
	service := NewBackupService(db, trades, ruleStore, nil, events.NewManager(log), dataDir, 7, log)

	result, err := service.CreateBackup(context.Background())
	require.NoError(t, err)

	archivePath := filepath.Join(dataDir, "backups", result.Archive)
	data := readArchiveFile(t, archivePath, "snapshot.msgpack")

	snapshot, err := DecodeSnapshot(data)
	require.NoError(t, err)
	require.Len(t, snapshot.Trades, 1)
	assert.Equal(t, "chart-9", snapshot.Trades[0].ChartID)
	assert.Contains(t, snapshot.RuleDoc.RuleStats, "Check RSI for 70+ levels.")
}

func readArchiveNames(t *testing.T, path string) []string {
	t.Helper()

	var names []string
	forEachArchiveEntry(t, path, func(header *tar.Header, r io.Reader) {
		names = append(names, header.Name)
	})
	return names
}

func readArchiveFile(t *testing.T, path, name string) []byte {
	t.Helper()

	var data []byte
	forEachArchiveEntry(t, path, func(header *tar.Header, r io.Reader) {
		if header.Name == name {
			content, err := io.ReadAll(r)
			require.NoError(t, err)
			data = content
		}
	})
	require.NotNil(t, data, "archive entry %s not found", name)
	return data
}

func forEachArchiveEntry(t *testing.T, path string, fn func(*tar.Header, io.Reader)) {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	gz, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		fn(header, tr)
	}
}
