package prices

import (
	"github.com/markcheno/go-talib"
)

// DefaultRSIPeriod matches the rule set's "RSI for 70+ levels" heuristic
const DefaultRSIPeriod = 14

// CalculateRSI calculates the Relative Strength Index over recorded closes.
//
// RSI Formula:
//   RSI = 100 - (100 / (1 + RS))
//   where RS = Average Gain / Average Loss over N periods
//
// Returns nil when there is not enough history for the period.
func CalculateRSI(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}

	rsi := talib.Rsi(closes, period)
	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
