// Package stats aggregates rule performance for the dashboard: win rates
// with confidence bounds, journal totals and the confidence/outcome scatter.
package stats

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/rules"
)

// RulePerformance is one rule's aggregated record
type RulePerformance struct {
	Rule     string  `json:"rule"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	WinRate  float64 `json:"win_rate"`  // plain wins/(wins+losses), 0 when unproven
	RateLow  float64 `json:"rate_low"`  // Wilson interval lower bound
	RateHigh float64 `json:"rate_high"` // Wilson interval upper bound
	Best     bool    `json:"best"`
}

// Summary is the dashboard sidebar payload
type Summary struct {
	TotalLosses float64           `json:"total_losses"`
	Pending     int               `json:"pending"`
	Wins        int               `json:"wins"`
	Losses      int               `json:"losses"`
	Rules       []RulePerformance `json:"rules"`
}

// ScatterPoint plots one closed trade: model confidence against outcome
type ScatterPoint struct {
	TradeID    int64   `json:"trade_id"`
	Confidence int     `json:"confidence"`
	Win        bool    `json:"win"`
	Entry      float64 `json:"entry_price"`
}

// Service computes rule statistics
type Service struct {
	ruleStore *rules.Store
	trades    *journal.TradeRepository
	log       zerolog.Logger
}

// NewService creates a new stats service
func NewService(ruleStore *rules.Store, trades *journal.TradeRepository, log zerolog.Logger) *Service {
	return &Service{
		ruleStore: ruleStore,
		trades:    trades,
		log:       log.With().Str("service", "stats").Logger(),
	}
}

// Summary aggregates rule counters and journal totals
func (s *Service) Summary() (*Summary, error) {
	doc, err := s.ruleStore.Load()
	if err != nil {
		return nil, err
	}

	counts, err := s.trades.CountByOutcome()
	if err != nil {
		return nil, err
	}

	best := doc.BestRule()
	summary := &Summary{
		TotalLosses: doc.TotalLosses,
		Pending:     counts[""],
		Wins:        counts[string(journal.OutcomeWin)],
		Losses:      counts[string(journal.OutcomeLoss)],
	}

	for rule, st := range doc.RuleStats {
		perf := RulePerformance{
			Rule:   rule,
			Wins:   st.Wins,
			Losses: st.Losses,
			Best:   rule == best,
		}
		if n := st.Wins + st.Losses; n > 0 {
			perf.WinRate = float64(st.Wins) / float64(n)
		}
		perf.RateLow, perf.RateHigh = wilsonInterval(st.Wins, st.Wins+st.Losses)
		summary.Rules = append(summary.Rules, perf)
	}

	// Stable ordering for the table: best rate first, then alphabetical
	sortRules(summary.Rules)

	return summary, nil
}

// Scatter builds the confidence/outcome series from closed trades
func (s *Service) Scatter(limit int) ([]ScatterPoint, error) {
	trades, err := s.trades.GetHistory(limit)
	if err != nil {
		return nil, err
	}

	points := make([]ScatterPoint, 0, len(trades))
	for _, t := range trades {
		if t.Outcome == nil {
			continue
		}
		points = append(points, ScatterPoint{
			TradeID:    t.ID,
			Confidence: t.Confidence,
			Win:        *t.Outcome == journal.OutcomeWin,
			Entry:      t.EntryPrice,
		})
	}

	return points, nil
}

// wilsonInterval returns the 95% Wilson score interval for wins out of n.
// An empty record spans the whole [0,1] range, which reads honestly on the
// dashboard: an unproven rule is exactly that.
func wilsonInterval(wins, n int) (low, high float64) {
	if n == 0 {
		return 0, 1
	}

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.975)
	p := float64(wins) / float64(n)
	nf := float64(n)

	denom := 1 + z*z/nf
	center := (p + z*z/(2*nf)) / denom
	margin := z * math.Sqrt(p*(1-p)/nf+z*z/(4*nf*nf)) / denom

	low = center - margin
	high = center + margin
	if low < 0 {
		low = 0
	}
	if high > 1 {
		high = 1
	}
	return low, high
}

func sortRules(perfs []RulePerformance) {
	sort.Slice(perfs, func(i, j int) bool {
		if perfs[i].WinRate != perfs[j].WinRate {
			return perfs[i].WinRate > perfs[j].WinRate
		}
		return perfs[i].Rule < perfs[j].Rule
	})
}
