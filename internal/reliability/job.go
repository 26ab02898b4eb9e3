package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BackupJob runs the backup service on a schedule
type BackupJob struct {
	service *BackupService
	log     zerolog.Logger
}

// NewBackupJob creates a new scheduled backup job
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	_, err := j.service.CreateBackup(ctx)
	return err
}
