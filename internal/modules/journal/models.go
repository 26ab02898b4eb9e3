package journal

import (
	"fmt"
	"strings"
	"time"
)

// Verdict represents the model's trade direction call (BUY or SELL)
type Verdict string

const (
	VerdictBuy  Verdict = "BUY"
	VerdictSell Verdict = "SELL"
)

// IsValid checks if the verdict is valid
func (v Verdict) IsValid() bool {
	return v == VerdictBuy || v == VerdictSell
}

// VerdictFromString creates a Verdict from string (case-insensitive)
func VerdictFromString(value string) (Verdict, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY":
		return VerdictBuy, nil
	case "SELL":
		return VerdictSell, nil
	default:
		return "", fmt.Errorf("invalid verdict: %q", value)
	}
}

// Outcome represents the audited result of a trade.
// A trade with no outcome is pending.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// Trade represents one analysed chart verdict in the journal.
// Created pending on each scan; closed at most once by the audit pass.
type Trade struct {
	ID             int64      `json:"id"`
	CreatedAt      time.Time  `json:"created_at"`
	ChartID        string     `json:"chart_id,omitempty"`
	Verdict        Verdict    `json:"verdict"`
	VerdictText    string     `json:"verdict_text"`
	Outcome        *Outcome   `json:"outcome,omitempty"`
	RuleApplied    string     `json:"rule_applied"`
	EntryPrice     float64    `json:"entry_price"`
	TargetPrice    float64    `json:"target_price"`
	StopPrice      float64    `json:"stop_price"`
	Confidence     int        `json:"confidence"`
	ReflectionText *string    `json:"reflection_text,omitempty"`
}

// Pending reports whether the trade has not been closed by an audit yet
func (t *Trade) Pending() bool {
	return t.Outcome == nil
}

// Validate validates trade data before insertion
func (t *Trade) Validate() error {
	if !t.Verdict.IsValid() {
		return fmt.Errorf("invalid verdict: %q", t.Verdict)
	}
	if strings.TrimSpace(t.RuleApplied) == "" {
		return fmt.Errorf("rule applied cannot be empty")
	}
	if t.EntryPrice <= 0 {
		return fmt.Errorf("entry price must be positive")
	}
	if t.TargetPrice <= 0 {
		return fmt.Errorf("target price must be positive")
	}
	if t.StopPrice <= 0 {
		return fmt.Errorf("stop price must be positive")
	}
	if t.Confidence < 0 || t.Confidence > 100 {
		return fmt.Errorf("confidence must be within 0-100")
	}
	return nil
}
