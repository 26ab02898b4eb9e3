// Package analysis runs the chart scan pipeline: preprocess the uploaded
// image, ask the multimodal model for a verdict under the current best rule,
// audit pending trades with the freshly extracted price, then append the new
// verdict to the journal as a pending trade.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/clients/gemini"
	"github.com/aristath/chartwatch/internal/events"
	"github.com/aristath/chartwatch/internal/modules/audit"
	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/prices"
	"github.com/aristath/chartwatch/internal/modules/rules"
)

// Verdict is the JSON object the model is instructed to return
type Verdict struct {
	Verdict    string  `json:"verdict"`
	Price      float64 `json:"price"`
	Target     float64 `json:"target"`
	Stop       float64 `json:"stop"`
	Confidence int     `json:"confidence"`
	Logic      string  `json:"logic"`
}

// ScanResult is the outcome of analysing one chart
type ScanResult struct {
	ChartID     string        `json:"chart_id"`
	TradeID     int64         `json:"trade_id"`
	RuleApplied string        `json:"rule_applied"`
	Verdict     Verdict       `json:"verdict"`
	Audit       *audit.Result `json:"audit,omitempty"`
}

// Service orchestrates the scan pipeline
type Service struct {
	generator    gemini.Generator
	trades       *journal.TradeRepository
	priceRepo    *prices.Repository
	ruleStore    *rules.Store
	auditor      *audit.Auditor
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewService creates a new analysis service
func NewService(
	generator gemini.Generator,
	trades *journal.TradeRepository,
	priceRepo *prices.Repository,
	ruleStore *rules.Store,
	auditor *audit.Auditor,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		generator:    generator,
		trades:       trades,
		priceRepo:    priceRepo,
		ruleStore:    ruleStore,
		auditor:      auditor,
		eventManager: eventManager,
		log:          log.With().Str("service", "analysis").Logger(),
	}
}

// ScanChart analyses one uploaded chart image end to end.
// The audit with the extracted price runs BEFORE the new trade is inserted,
// so a scan can never close the trade it just opened.
func (s *Service) ScanChart(ctx context.Context, imageData []byte) (*ScanResult, error) {
	doc, err := s.ruleStore.Load()
	if err != nil {
		return nil, err
	}

	bestRule := doc.BestRule()
	if bestRule == "" {
		return nil, fmt.Errorf("no rules configured")
	}

	processed, mimeType, err := EnhanceContrast(imageData)
	if err != nil {
		return nil, err
	}

	prompt := buildScanPrompt(bestRule, doc.TotalLosses)

	reply, err := s.generator.AnalyzeImage(ctx, prompt, processed, mimeType)
	if err != nil {
		return nil, fmt.Errorf("chart analysis call failed: %w", err)
	}

	verdict, err := ParseVerdict(reply)
	if err != nil {
		return nil, err
	}

	// Reconcile everything already pending against the chart's current price
	auditResult, err := s.auditor.Run(ctx, verdict.Price)
	if err != nil {
		return nil, err
	}

	side, err := journal.VerdictFromString(verdict.Verdict)
	if err != nil {
		return nil, fmt.Errorf("model returned %w", err)
	}

	chartID := uuid.New().String()
	tradeID, err := s.trades.Create(journal.Trade{
		ChartID:     chartID,
		Verdict:     side,
		VerdictText: verdict.Logic,
		RuleApplied: bestRule,
		EntryPrice:  verdict.Price,
		TargetPrice: verdict.Target,
		StopPrice:   verdict.Stop,
		Confidence:  verdict.Confidence,
	})
	if err != nil {
		return nil, err
	}

	if err := s.priceRepo.Record(verdict.Price, prices.SourceScan); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record scan price")
	}

	s.eventManager.Emit(events.TradeAnalyzed, "analysis", map[string]interface{}{
		"trade_id": tradeID,
		"chart_id": chartID,
		"verdict":  verdict.Verdict,
		"price":    verdict.Price,
		"rule":     bestRule,
	})

	return &ScanResult{
		ChartID:     chartID,
		TradeID:     tradeID,
		RuleApplied: bestRule,
		Verdict:     *verdict,
		Audit:       auditResult,
	}, nil
}

// buildScanPrompt assembles the analysis prompt. When losses have been
// recorded the model is told to escalate effort, mirroring the analyst's
// original high-alert behavior.
func buildScanPrompt(bestRule string, totalLosses float64) string {
	effort := "Perform standard analysis."
	if totalLosses > 0 {
		effort = "Perform an ultra-deep technical scan. A financial loss was recently recorded."
	}

	return fmt.Sprintf(`%s
Rule: %s. Extract CURRENT PRICE and analyze.
Return ONLY JSON:
{"verdict": "BUY/SELL", "price": float, "target": float, "stop": float, "confidence": int, "logic": "str"}`,
		effort, bestRule)
}

// ParseVerdict decodes the model reply into a Verdict with best-effort
// cleanup of markdown fences and surrounding prose.
func ParseVerdict(reply string) (*Verdict, error) {
	cleaned := gemini.StripCodeFences(reply)

	var verdict Verdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return nil, fmt.Errorf("malformed model reply: %w", err)
	}

	if verdict.Price <= 0 {
		return nil, fmt.Errorf("model reply missing current price")
	}
	if verdict.Target <= 0 || verdict.Stop <= 0 {
		return nil, fmt.Errorf("model reply missing target or stop")
	}

	return &verdict, nil
}
