package rules

// Stats holds the win/loss counters for one rule
type Stats struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

// Document is the flat rule-statistics configuration persisted as JSON.
// It is read and written wholesale; the audit pass and the evolution
// action are the only writers.
type Document struct {
	Version     float64          `json:"version"`
	TotalLosses float64          `json:"total_losses"`
	RuleStats   map[string]Stats `json:"rule_stats"`
}

// DefaultDocument returns the documented default rule set used when the
// configuration file is missing.
func DefaultDocument() *Document {
	return &Document{
		Version:     2.0,
		TotalLosses: 0.0,
		RuleStats: map[string]Stats{
			"Avoid chasing vertical moves.": {},
			"Check RSI for 70+ levels.":     {},
		},
	}
}

// laplaceWinRate is the smoothed win rate used for rule ranking.
// The +1/+1 smoothing keeps unproven rules competitive with a 0-0 record.
func laplaceWinRate(s Stats) float64 {
	return float64(s.Wins+1) / float64(s.Wins+s.Losses+1)
}

// BestRule returns the rule with the highest smoothed win rate.
// Ties resolve to the lexicographically smallest rule so selection is stable.
func (d *Document) BestRule() string {
	best := ""
	bestRate := -1.0
	for rule, stats := range d.RuleStats {
		rate := laplaceWinRate(stats)
		if rate > bestRate || (rate == bestRate && rule < best) {
			best = rule
			bestRate = rate
		}
	}
	return best
}

// WorstRule returns the rule with the lowest smoothed win rate,
// the candidate for evolution. Ties resolve like BestRule.
func (d *Document) WorstRule() string {
	worst := ""
	worstRate := 2.0
	for rule, stats := range d.RuleStats {
		rate := laplaceWinRate(stats)
		if rate < worstRate || (rate == worstRate && rule < worst) {
			worst = rule
			worstRate = rate
		}
	}
	return worst
}

// RecordWin increments the win counter for a rule.
// Unknown rules (evolved away between scan and audit) get a fresh entry.
func (d *Document) RecordWin(rule string) {
	s := d.RuleStats[rule]
	s.Wins++
	d.RuleStats[rule] = s
}

// RecordLoss increments the loss counter for a rule and charges the
// financial impact of the stopped-out trade to the running total.
func (d *Document) RecordLoss(rule string, impact float64) {
	s := d.RuleStats[rule]
	s.Losses++
	d.RuleStats[rule] = s
	if impact < 0 {
		impact = -impact
	}
	d.TotalLosses += impact
}

// ReplaceRule swaps oldRule for newRule with zeroed counters
func (d *Document) ReplaceRule(oldRule, newRule string) {
	delete(d.RuleStats, oldRule)
	d.RuleStats[newRule] = Stats{}
}
