package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/database"
	"github.com/aristath/chartwatch/internal/events"
	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/rules"
)

const (
	backupPrefix     = "chartwatch-backup-"
	snapshotFilename = "snapshot.msgpack"
	databaseFilename = "chartwatch.db"
	metadataFilename = "backup-metadata.json"

	// History window captured in the snapshot. Large enough to cover
	// the full journal of any realistic single-user installation.
	snapshotTradeLimit = 100000
)

// BackupService creates tar.gz archives of the database, journal snapshot
// and rule configuration, and ships them to object storage.
type BackupService struct {
	db           *database.DB
	trades       *journal.TradeRepository
	ruleStore    *rules.Store
	storage      *S3Client
	eventManager *events.Manager
	dataDir      string
	keepLast     int
	log          zerolog.Logger
}

// BackupMetadata describes the contents of one backup archive
type BackupMetadata struct {
	Timestamp  time.Time      `json:"timestamp"`
	Version    string         `json:"version"`
	TradeCount int            `json:"trade_count"`
	Files      []FileMetadata `json:"files"`
}

// FileMetadata describes a single file inside the archive
type FileMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupResult summarizes a completed backup run
type BackupResult struct {
	Archive    string        `json:"archive"`
	SizeBytes  int64         `json:"size_bytes"`
	TradeCount int           `json:"trade_count"`
	Uploaded   bool          `json:"uploaded"`
	Pruned     int           `json:"pruned"`
	Duration   time.Duration `json:"-"`
}

// NewBackupService creates a new backup service. storage may be nil, in
// which case archives are only written locally under dataDir/backups.
func NewBackupService(
	db *database.DB,
	trades *journal.TradeRepository,
	ruleStore *rules.Store,
	storage *S3Client,
	eventManager *events.Manager,
	dataDir string,
	keepLast int,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		db:           db,
		trades:       trades,
		ruleStore:    ruleStore,
		storage:      storage,
		eventManager: eventManager,
		dataDir:      dataDir,
		keepLast:     keepLast,
		log:          log.With().Str("service", "backup").Logger(),
	}
}

// CreateBackup builds a backup archive and uploads it when storage is configured
func (s *BackupService) CreateBackup(ctx context.Context) (*BackupResult, error) {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	trades, err := s.trades.GetHistory(snapshotTradeLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal for snapshot: %w", err)
	}

	doc, err := s.ruleStore.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load rule config for snapshot: %w", err)
	}

	snapshot := BuildSnapshot(trades, *doc)
	snapshotData, err := snapshot.Encode()
	if err != nil {
		return nil, err
	}

	snapshotPath := filepath.Join(stagingDir, snapshotFilename)
	if err := os.WriteFile(snapshotPath, snapshotData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}

	dbCopyPath := filepath.Join(stagingDir, databaseFilename)
	if err := s.copyDatabase(dbCopyPath); err != nil {
		return nil, err
	}

	metadata := BackupMetadata{
		Timestamp:  time.Now().UTC(),
		Version:    "1.0.0",
		TradeCount: len(trades),
	}
	for _, filename := range []string{snapshotFilename, databaseFilename} {
		fileMeta, err := s.describeFile(stagingDir, filename)
		if err != nil {
			return nil, err
		}
		metadata.Files = append(metadata.Files, fileMeta)
	}

	metadataPath := filepath.Join(stagingDir, metadataFilename)
	if err := s.writeMetadata(metadataPath, metadata); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := backupPrefix + timestamp + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)

	files := []string{snapshotFilename, databaseFilename, metadataFilename}
	if err := s.createArchive(archivePath, stagingDir, files); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	result := &BackupResult{
		Archive:    archiveName,
		SizeBytes:  archiveInfo.Size(),
		TradeCount: len(trades),
	}

	if s.storage != nil {
		archiveFile, err := os.Open(archivePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		defer archiveFile.Close()

		if err := s.storage.Upload(ctx, archiveName, archiveFile); err != nil {
			return nil, err
		}
		result.Uploaded = true

		pruned, err := s.pruneOldBackups(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("Backup pruning failed")
		} else {
			result.Pruned = pruned
		}
	} else {
		if err := s.keepLocalCopy(archivePath, archiveName); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(startTime)
	s.log.Info().
		Str("archive", archiveName).
		Int64("size_bytes", result.SizeBytes).
		Int("trades", result.TradeCount).
		Bool("uploaded", result.Uploaded).
		Dur("duration_ms", result.Duration).
		Msg("Backup completed")

	s.eventManager.Emit(events.BackupFinished, "reliability", map[string]interface{}{
		"archive":     archiveName,
		"size_bytes":  result.SizeBytes,
		"trade_count": result.TradeCount,
		"uploaded":    result.Uploaded,
	})

	return result, nil
}

// ListBackups returns the archives currently stored remotely
func (s *BackupService) ListBackups(ctx context.Context) ([]RemoteBackup, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("backup storage not configured")
	}
	return s.storage.List(ctx, backupPrefix)
}

// copyDatabase takes a consistent copy of the live database.
// VACUUM INTO works while WAL writers are active.
func (s *BackupService) copyDatabase(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}
	return nil
}

// pruneOldBackups deletes remote archives beyond the retention count
func (s *BackupService) pruneOldBackups(ctx context.Context) (int, error) {
	if s.keepLast <= 0 {
		return 0, nil
	}

	backups, err := s.storage.List(ctx, backupPrefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i, backup := range backups {
		if i < s.keepLast {
			continue
		}
		if err := s.storage.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("key", backup.Key).Msg("Deleted old backup")
		deleted++
	}

	return deleted, nil
}

// keepLocalCopy moves the archive out of the staging dir before cleanup
func (s *BackupService) keepLocalCopy(archivePath, archiveName string) error {
	localDir := filepath.Join(s.dataDir, "backups")
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return fmt.Errorf("failed to create local backup directory: %w", err)
	}
	if err := os.Rename(archivePath, filepath.Join(localDir, archiveName)); err != nil {
		return fmt.Errorf("failed to store local backup: %w", err)
	}
	return nil
}

func (s *BackupService) describeFile(dir, filename string) (FileMetadata, error) {
	path := filepath.Join(dir, filename)

	info, err := os.Stat(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("failed to stat %s: %w", filename, err)
	}

	checksum, err := s.calculateChecksum(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("failed to calculate checksum for %s: %w", filename, err)
	}

	return FileMetadata{
		Filename:  filename,
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}, nil
}

// calculateChecksum calculates SHA256 checksum of a file
func (s *BackupService) calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeMetadata writes backup metadata to a JSON file
func (s *BackupService) writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive creates a tar.gz archive of the specified files
func (s *BackupService) createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		filePath := filepath.Join(sourceDir, filename)
		if err := s.addFileToArchive(tarWriter, filePath, filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}

	return nil
}

// addFileToArchive adds a single file to a tar archive
func (s *BackupService) addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	if _, err := io.Copy(tarWriter, file); err != nil {
		return err
	}

	return nil
}
