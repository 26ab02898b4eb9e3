package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aristath/chartwatch/internal/events"
	"github.com/aristath/chartwatch/internal/modules/audit"
	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/prices"
	"github.com/aristath/chartwatch/internal/modules/rules"
)

type stubGenerator struct{}

func (s *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "reflection", nil
}

func (s *stubGenerator) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return "", nil
}

type auditFixture struct {
	router    chi.Router
	trades    *journal.TradeRepository
	priceRepo *prices.Repository
}

func setupHandlers(t *testing.T) *auditFixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE trade_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			chart_id TEXT,
			verdict TEXT NOT NULL,
			verdict_text TEXT NOT NULL,
			outcome TEXT,
			rule_applied TEXT NOT NULL,
			entry_price REAL NOT NULL,
			target_price REAL NOT NULL,
			stop_price REAL NOT NULL,
			confidence INTEGER NOT NULL DEFAULT 0,
			reflection_text TEXT
		);
		CREATE TABLE price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			observed_at INTEGER NOT NULL,
			price REAL NOT NULL,
			source TEXT NOT NULL
		);
	`)
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	trades := journal.NewTradeRepository(db, log)
	priceRepo := prices.NewRepository(db, log)
	ruleStore := rules.NewStore(filepath.Join(t.TempDir(), "rules.json"), log)
	auditor := audit.New(trades, ruleStore, &stubGenerator{}, events.NewManager(log), log)

	router := chi.NewRouter()
	NewAuditHandlers(auditor, priceRepo, log).RegisterRoutes(router)

	return &auditFixture{router: router, trades: trades, priceRepo: priceRepo}
}

func TestHandleAudit_ClosesPendingTrade(t *testing.T) {
	f := setupHandlers(t)

	_, err := f.trades.Create(journal.Trade{
		Verdict:     journal.VerdictBuy,
		VerdictText: "breakout",
		RuleApplied: "Avoid chasing vertical moves.",
		EntryPrice:  100,
		TargetPrice: 110,
		StopPrice:   95,
		Confidence:  70,
	})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]float64{"price": 112})
	req := httptest.NewRequest("POST", "/audit", bytes.NewReader(body))
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result audit.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, 1, result.Audited)
	assert.Equal(t, 1, result.Wins)
	assert.Equal(t, 0, result.Losses)
	assert.Equal(t, 0, result.StillOpen)

	// The manual price is recorded for the cron re-check
	latest, err := f.priceRepo.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 112.0, latest.Price)
	assert.Equal(t, prices.SourceManual, latest.Source)
}

func TestHandleAudit_RejectsBadInput(t *testing.T) {
	f := setupHandlers(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"zero price", `{"price": 0}`},
		{"negative price", `{"price": -5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/audit", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()

			f.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
