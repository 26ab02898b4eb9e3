package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/modules/prices"
)

// Job re-runs the audit pass against the most recent recorded price.
// Scheduled via cron so trades opened before a restart still get
// reconciled without waiting for the next scan.
type Job struct {
	auditor *Auditor
	prices  *prices.Repository
	log     zerolog.Logger
}

// NewJob creates a new scheduled audit job
func NewJob(auditor *Auditor, priceRepo *prices.Repository, log zerolog.Logger) *Job {
	return &Job{
		auditor: auditor,
		prices:  priceRepo,
		log:     log.With().Str("job", "audit").Logger(),
	}
}

// Name returns the job name
func (j *Job) Name() string {
	return "audit"
}

// Run executes the audit job
func (j *Job) Run() error {
	latest, err := j.prices.Latest()
	if err != nil {
		return err
	}
	if latest == nil {
		j.log.Debug().Msg("No recorded prices yet, skipping audit")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err = j.auditor.Run(ctx, latest.Price)
	return err
}
