package analysis

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

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

type stubGenerator struct {
	imageReply  string
	imageErr    error
	textReply   string
	imagePrompt string
	imageMime   string
}

func (s *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return s.textReply, nil
}

func (s *stubGenerator) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	s.imagePrompt = prompt
	s.imageMime = mimeType
	return s.imageReply, s.imageErr
}

type scanFixture struct {
	service   *Service
	trades    *journal.TradeRepository
	priceRepo *prices.Repository
	ruleStore *rules.Store
	generator *stubGenerator
}

func setupService(t *testing.T) *scanFixture {
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
	generator := &stubGenerator{
		imageReply: `{"verdict": "BUY", "price": 104.5, "target": 112.0, "stop": 99.0, "confidence": 85, "logic": "ascending triangle"}`,
		textReply:  "reflection",
	}
	eventManager := events.NewManager(log)
	auditor := audit.New(trades, ruleStore, generator, eventManager, log)

	return &scanFixture{
		service:   NewService(generator, trades, priceRepo, ruleStore, auditor, eventManager, log),
		trades:    trades,
		priceRepo: priceRepo,
		ruleStore: ruleStore,
		generator: generator,
	}
}

func TestScanChart_HappyPath(t *testing.T) {
	f := setupService(t)

	result, err := f.service.ScanChart(context.Background(), testChartPNG(t))
	require.NoError(t, err)

	assert.NotEmpty(t, result.ChartID)
	assert.Equal(t, "BUY", result.Verdict.Verdict)
	assert.Equal(t, 104.5, result.Verdict.Price)
	assert.Equal(t, 85, result.Verdict.Confidence)
	assert.Equal(t, "image/png", f.generator.imageMime)

	// The trade landed in the journal, pending
	trade, err := f.trades.GetByID(result.TradeID)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.True(t, trade.Pending())
	assert.Equal(t, "ascending triangle", trade.VerdictText)
	assert.Equal(t, result.RuleApplied, trade.RuleApplied)

	// The extracted price was recorded
	latest, err := f.priceRepo.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 104.5, latest.Price)
	assert.Equal(t, prices.SourceScan, latest.Source)
}

func TestScanChart_AuditsBeforeInsert(t *testing.T) {
	f := setupService(t)

	// Pending trade whose target is below the next scan's price
	oldID, err := f.trades.Create(journal.Trade{
		Verdict:     journal.VerdictBuy,
		VerdictText: "prior verdict",
		RuleApplied: "Avoid chasing vertical moves.",
		EntryPrice:  98,
		TargetPrice: 103,
		StopPrice:   94,
		Confidence:  60,
	})
	require.NoError(t, err)

	result, err := f.service.ScanChart(context.Background(), testChartPNG(t))
	require.NoError(t, err)

	// The prior trade closed as a win at 104.5
	require.NotNil(t, result.Audit)
	assert.Equal(t, 1, result.Audit.Wins)

	old, err := f.trades.GetByID(oldID)
	require.NoError(t, err)
	require.NotNil(t, old.Outcome)
	assert.Equal(t, journal.OutcomeWin, *old.Outcome)

	// The scan's own trade stays pending even though 104.5 >= its stop range
	fresh, err := f.trades.GetByID(result.TradeID)
	require.NoError(t, err)
	assert.True(t, fresh.Pending())
}

func TestScanChart_EscalatesAfterLosses(t *testing.T) {
	f := setupService(t)

	doc := rules.DefaultDocument()
	doc.RecordLoss("Avoid chasing vertical moves.", 4.0)
	require.NoError(t, f.ruleStore.Save(doc))

	_, err := f.service.ScanChart(context.Background(), testChartPNG(t))
	require.NoError(t, err)

	assert.Contains(t, f.generator.imagePrompt, "ultra-deep")
	assert.Contains(t, f.generator.imagePrompt, "Return ONLY JSON")
}

func TestScanChart_UsesBestRuleInPrompt(t *testing.T) {
	f := setupService(t)

	doc := rules.DefaultDocument()
	doc.RecordWin("Check RSI for 70+ levels.")
	doc.RecordLoss("Avoid chasing vertical moves.", 1.0)
	require.NoError(t, f.ruleStore.Save(doc))

	result, err := f.service.ScanChart(context.Background(), testChartPNG(t))
	require.NoError(t, err)

	assert.Equal(t, "Check RSI for 70+ levels.", result.RuleApplied)
	assert.Contains(t, f.generator.imagePrompt, "Rule: Check RSI for 70+ levels.")
}

func TestScanChart_ModelFailure(t *testing.T) {
	f := setupService(t)
	f.generator.imageErr = fmt.Errorf("rate limited")

	_, err := f.service.ScanChart(context.Background(), testChartPNG(t))
	assert.ErrorContains(t, err, "chart analysis call failed")

	history, err := f.trades.GetHistory(10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestScanChart_InvalidVerdictDirection(t *testing.T) {
	f := setupService(t)
	f.generator.imageReply = `{"verdict": "HOLD", "price": 100, "target": 110, "stop": 95, "confidence": 50, "logic": "x"}`

	_, err := f.service.ScanChart(context.Background(), testChartPNG(t))
	assert.ErrorContains(t, err, "invalid verdict")
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr string
	}{
		{
			name:  "bare json",
			reply: `{"verdict": "SELL", "price": 50.1, "target": 45.0, "stop": 52.0, "confidence": 70, "logic": "double top"}`,
		},
		{
			name:  "fenced json",
			reply: "```json\n{\"verdict\": \"BUY\", \"price\": 10, \"target\": 12, \"stop\": 9, \"confidence\": 60, \"logic\": \"x\"}\n```",
		},
		{
			name:  "json wrapped in prose",
			reply: "Here is my analysis:\n{\"verdict\": \"BUY\", \"price\": 10, \"target\": 12, \"stop\": 9, \"confidence\": 60, \"logic\": \"x\"}\nGood luck!",
		},
		{
			name:    "missing price",
			reply:   `{"verdict": "BUY", "target": 12, "stop": 9, "confidence": 60, "logic": "x"}`,
			wantErr: "missing current price",
		},
		{
			name:    "missing stop",
			reply:   `{"verdict": "BUY", "price": 10, "target": 12, "confidence": 60, "logic": "x"}`,
			wantErr: "missing target or stop",
		},
		{
			name:    "not json at all",
			reply:   "I cannot analyze this chart.",
			wantErr: "malformed model reply",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := ParseVerdict(tt.reply)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, verdict.Price)
		})
	}
}
