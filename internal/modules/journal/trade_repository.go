// Package journal provides the trade log: every chart verdict is appended
// here as a pending trade and closed at most once by the audit pass.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// tradeLogColumns is the list of columns for the trade_log table.
// Used to avoid SELECT * which can break when schema changes.
// Column order must match the scan helpers below.
const tradeLogColumns = `id, created_at, chart_id, verdict, verdict_text, outcome, rule_applied, entry_price, target_price, stop_price, confidence, reflection_text`

// TradeRepository handles trade_log database operations
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "journal").Logger(),
	}
}

// Create inserts a new pending trade record and returns its id
func (r *TradeRepository) Create(trade Trade) (int64, error) {
	if err := trade.Validate(); err != nil {
		return 0, fmt.Errorf("failed to create trade: %w", err)
	}

	createdAt := trade.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO trade_log
		(created_at, chart_id, verdict, verdict_text, rule_applied,
		 entry_price, target_price, stop_price, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Exec(query,
		createdAt.Unix(),
		nullString(trade.ChartID),
		string(trade.Verdict),
		trade.VerdictText,
		trade.RuleApplied,
		trade.EntryPrice,
		trade.TargetPrice,
		trade.StopPrice,
		trade.Confidence,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create trade: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get trade id: %w", err)
	}

	r.log.Info().
		Int64("id", id).
		Str("verdict", string(trade.Verdict)).
		Str("rule", trade.RuleApplied).
		Float64("entry", trade.EntryPrice).
		Msg("Trade created")

	return id, nil
}

// GetByID retrieves a single trade, nil when not found
func (r *TradeRepository) GetByID(id int64) (*Trade, error) {
	row := r.db.QueryRow("SELECT "+tradeLogColumns+" FROM trade_log WHERE id = ?", id)
	trade, err := scanTradeRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &trade, nil
}

// GetPending retrieves all trades not yet closed by an audit, oldest first
func (r *TradeRepository) GetPending() ([]Trade, error) {
	query := `
		SELECT ` + tradeLogColumns + ` FROM trade_log
		WHERE outcome IS NULL
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// GetHistory retrieves the journal, most recent first
func (r *TradeRepository) GetHistory(limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + tradeLogColumns + ` FROM trade_log
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade history: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// Close marks a pending trade with its audited outcome. The WHERE clause
// requires the row to still be pending, so a trade can only be closed once;
// the second close reports no rows affected.
func (r *TradeRepository) Close(id int64, outcome Outcome) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE trade_log SET outcome = ? WHERE id = ? AND outcome IS NULL",
		string(outcome), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to close trade: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read close result: %w", err)
	}

	if affected > 0 {
		r.log.Info().Int64("id", id).Str("outcome", string(outcome)).Msg("Trade closed")
	}
	return affected > 0, nil
}

// SetReflection stores the AI loss-reflection text for a trade
func (r *TradeRepository) SetReflection(id int64, reflection string) error {
	_, err := r.db.Exec("UPDATE trade_log SET reflection_text = ? WHERE id = ?", reflection, id)
	if err != nil {
		return fmt.Errorf("failed to set reflection: %w", err)
	}
	return nil
}

// CountByOutcome returns totals per outcome: pending counts under ""
func (r *TradeRepository) CountByOutcome() (map[string]int, error) {
	rows, err := r.db.Query("SELECT COALESCE(outcome, ''), COUNT(*) FROM trade_log GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("failed to count trades: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

// Reset deletes the entire journal
func (r *TradeRepository) Reset() error {
	if _, err := r.db.Exec("DELETE FROM trade_log"); err != nil {
		return fmt.Errorf("failed to reset trade log: %w", err)
	}
	r.log.Warn().Msg("Trade log reset")
	return nil
}

// Helper methods

func collectTrades(rows *sql.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		trade, err := scanTradeRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s rowScanner) (Trade, error) {
	var trade Trade
	var createdAt int64
	var chartID, outcome, reflection sql.NullString

	err := s.Scan(
		&trade.ID,
		&createdAt,
		&chartID,
		&trade.Verdict,
		&trade.VerdictText,
		&outcome,
		&trade.RuleApplied,
		&trade.EntryPrice,
		&trade.TargetPrice,
		&trade.StopPrice,
		&trade.Confidence,
		&reflection,
	)
	if err != nil {
		return trade, err
	}

	trade.CreatedAt = time.Unix(createdAt, 0).UTC()
	if chartID.Valid {
		trade.ChartID = chartID.String
	}
	if outcome.Valid {
		o := Outcome(outcome.String)
		trade.Outcome = &o
	}
	if reflection.Valid {
		trade.ReflectionText = &reflection.String
	}

	return trade, nil
}

func scanTradeRow(row *sql.Row) (Trade, error)    { return scanTrade(row) }
func scanTradeRows(rows *sql.Rows) (Trade, error) { return scanTrade(rows) }

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
