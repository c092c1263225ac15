// Bar-level integrity checks. Bad data ruins live decisions the same way it
// ruins backtests, so every inbound bar is validated before it touches a
// buffer.
package data

import (
	"fmt"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// IntegrityError describes a bar that failed validation.
type IntegrityError struct {
	Symbol string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("bar integrity: %s: %s", e.Symbol, e.Reason)
}

// ValidateBar checks an inbound bar for structural problems: zero or
// negative prices, inconsistent OHLC ordering, and a missing timestamp.
// Out-of-order detection is left to the buffer, which knows the tail.
func ValidateBar(bar types.Bar) error {
	if bar.OpenTime.IsZero() {
		return &IntegrityError{Symbol: bar.Symbol, Reason: "zero open time"}
	}
	for name, p := range map[string]decimal.Decimal{
		"open": bar.Open, "high": bar.High, "low": bar.Low, "close": bar.Close,
	} {
		if p.LessThanOrEqual(decimal.Zero) {
			return &IntegrityError{Symbol: bar.Symbol, Reason: fmt.Sprintf("non-positive %s price", name)}
		}
	}
	if bar.Volume.IsNegative() {
		return &IntegrityError{Symbol: bar.Symbol, Reason: "negative volume"}
	}
	maxOC := bar.Open
	if bar.Close.GreaterThan(maxOC) {
		maxOC = bar.Close
	}
	minOC := bar.Open
	if bar.Close.LessThan(minOC) {
		minOC = bar.Close
	}
	if bar.High.LessThan(maxOC) {
		return &IntegrityError{Symbol: bar.Symbol, Reason: "high below open/close"}
	}
	if bar.Low.GreaterThan(minOC) {
		return &IntegrityError{Symbol: bar.Symbol, Reason: "low above open/close"}
	}
	if bar.High.LessThan(bar.Low) {
		return &IntegrityError{Symbol: bar.Symbol, Reason: "high below low"}
	}
	return nil
}
