// Package prices records every observed price so the audit cron job and
// the dashboard RSI annotation have a local history to work from.
package prices

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Source tags where an observation came from
const (
	SourceScan   = "scan"   // extracted from a chart by the model
	SourceManual = "manual" // entered through the audit endpoint
)

// Observation is one recorded price point
type Observation struct {
	ID         int64     `json:"id"`
	ObservedAt time.Time `json:"observed_at"`
	Price      float64   `json:"price"`
	Source     string    `json:"source"`
}

// Repository handles price_history database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new price history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// Record appends a price observation
func (r *Repository) Record(price float64, source string) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive")
	}

	_, err := r.db.Exec(
		"INSERT INTO price_history (observed_at, price, source) VALUES (?, ?, ?)",
		time.Now().Unix(), price, source,
	)
	if err != nil {
		return fmt.Errorf("failed to record price: %w", err)
	}

	r.log.Debug().Float64("price", price).Str("source", source).Msg("Price recorded")
	return nil
}

// Latest returns the most recent observation, nil when the history is empty
func (r *Repository) Latest() (*Observation, error) {
	row := r.db.QueryRow(`
		SELECT id, observed_at, price, source
		FROM price_history
		ORDER BY id DESC
		LIMIT 1
	`)

	var obs Observation
	var observedAt int64
	err := row.Scan(&obs.ID, &observedAt, &obs.Price, &obs.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price: %w", err)
	}

	obs.ObservedAt = time.Unix(observedAt, 0).UTC()
	return &obs, nil
}

// RecentCloses returns up to limit recent prices in chronological order,
// shaped for indicator calculations.
func (r *Repository) RecentCloses(limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT price FROM (
			SELECT id, price FROM price_history ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent prices: %w", err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var price float64
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		closes = append(closes, price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return closes, nil
}

// Reset deletes the price history
func (r *Repository) Reset() error {
	if _, err := r.db.Exec("DELETE FROM price_history"); err != nil {
		return fmt.Errorf("failed to reset price history: %w", err)
	}
	return nil
}
