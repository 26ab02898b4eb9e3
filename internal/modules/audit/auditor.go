// Package audit reconciles pending trades against newly observed prices.
// A price at or above a trade's target closes it as a win, at or below its
// stop as a loss; anything strictly between leaves the trade pending.
package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/clients/gemini"
	"github.com/aristath/chartwatch/internal/events"
	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/rules"
)

// Result summarizes one audit pass
type Result struct {
	Price       float64 `json:"price"`
	Audited     int     `json:"audited"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	StillOpen   int     `json:"still_open"`
	TotalLosses float64 `json:"total_losses"`
}

// Auditor closes pending trades against observed prices and keeps the
// per-rule win/loss counters in step with the journal.
type Auditor struct {
	trades       *journal.TradeRepository
	ruleStore    *rules.Store
	generator    gemini.Generator
	eventManager *events.Manager
	log          zerolog.Logger
}

// New creates a new auditor
func New(
	trades *journal.TradeRepository,
	ruleStore *rules.Store,
	generator gemini.Generator,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Auditor {
	return &Auditor{
		trades:       trades,
		ruleStore:    ruleStore,
		generator:    generator,
		eventManager: eventManager,
		log:          log.With().Str("service", "audit").Logger(),
	}
}

// Run audits every pending trade against the given price. Counters are
// incremented exactly once per trade: journal.Close refuses already-closed
// rows, and a rule stat only moves when the close actually happened.
// The rule document is saved only when something changed.
func (a *Auditor) Run(ctx context.Context, price float64) (*Result, error) {
	if price <= 0 {
		return nil, fmt.Errorf("audit price must be positive")
	}

	pending, err := a.trades.GetPending()
	if err != nil {
		return nil, err
	}

	result := &Result{Price: price, Audited: len(pending)}

	// Reflections are generated after the update so the slow model call
	// never runs while the rule document is locked.
	var stopped []*journal.Trade

	doc, err := a.ruleStore.Update(func(doc *rules.Document) (bool, error) {
		changed := false
		for i := range pending {
			trade := &pending[i]

			switch {
			case price >= trade.TargetPrice:
				closed, err := a.trades.Close(trade.ID, journal.OutcomeWin)
				if err != nil {
					return changed, err
				}
				if !closed {
					continue
				}
				doc.RecordWin(trade.RuleApplied)
				changed = true
				result.Wins++
				a.emitClosed(trade, journal.OutcomeWin, price)

			case price <= trade.StopPrice:
				closed, err := a.trades.Close(trade.ID, journal.OutcomeLoss)
				if err != nil {
					return changed, err
				}
				if !closed {
					continue
				}
				doc.RecordLoss(trade.RuleApplied, trade.EntryPrice-trade.StopPrice)
				changed = true
				result.Losses++
				a.emitClosed(trade, journal.OutcomeLoss, price)
				stopped = append(stopped, trade)

			default:
				result.StillOpen++
			}
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	result.TotalLosses = doc.TotalLosses

	for _, trade := range stopped {
		a.reflect(ctx, trade)
	}

	a.log.Info().
		Float64("price", price).
		Int("audited", result.Audited).
		Int("wins", result.Wins).
		Int("losses", result.Losses).
		Int("still_open", result.StillOpen).
		Msg("Audit pass completed")

	if result.Wins > 0 || result.Losses > 0 {
		a.eventManager.Emit(events.AuditCompleted, "audit", map[string]interface{}{
			"price":  price,
			"wins":   result.Wins,
			"losses": result.Losses,
		})
	}

	return result, nil
}

func (a *Auditor) emitClosed(trade *journal.Trade, outcome journal.Outcome, price float64) {
	a.eventManager.Emit(events.TradeClosed, "audit", map[string]interface{}{
		"trade_id": trade.ID,
		"outcome":  string(outcome),
		"rule":     trade.RuleApplied,
		"price":    price,
	})
}

// reflect asks the model to diagnose a stopped-out rule and stores the
// reply on the trade. A failed call is logged and swallowed: the loss is
// already recorded and the reflection is advisory.
func (a *Auditor) reflect(ctx context.Context, trade *journal.Trade) {
	prompt := fmt.Sprintf(
		"CRITICAL: Financial loss occurred. Rule %q failed on a trade entered at %.4f with stop %.4f. Diagnose the leak now.",
		trade.RuleApplied, trade.EntryPrice, trade.StopPrice,
	)

	reply, err := a.generator.GenerateText(ctx, prompt)
	if err != nil {
		a.log.Warn().Err(err).Int64("trade_id", trade.ID).Msg("Loss reflection call failed")
		return
	}

	if err := a.trades.SetReflection(trade.ID, reply); err != nil {
		a.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("Failed to store reflection")
	}
}
