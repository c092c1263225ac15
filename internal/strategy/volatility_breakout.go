package strategy

import (
	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// VolatilityBreakoutName is the stable identity of the breakout strategy.
const VolatilityBreakoutName = "VolatilityBreakout"

// VolatilityBreakout trades channel breaks that follow a volatility
// contraction: a close beyond the Donchian channel only counts when ATR is
// below its rolling median, the classic squeeze-then-expand setup.
type VolatilityBreakout struct {
	channelPeriod int
	atrPeriod     int
	medianPeriod  int
}

// NewVolatilityBreakout creates the strategy with Donchian(20) and the
// 50-bar ATR median contraction filter.
func NewVolatilityBreakout() *VolatilityBreakout {
	return &VolatilityBreakout{
		channelPeriod: 20,
		atrPeriod:     14,
		medianPeriod:  50,
	}
}

func (s *VolatilityBreakout) Name() string { return VolatilityBreakoutName }

// WarmupBars needs a full ATR median history before the breakout bar.
func (s *VolatilityBreakout) WarmupBars() int {
	return s.atrPeriod + s.medianPeriod + 1
}

func (s *VolatilityBreakout) Suitability(regime types.Regime) float64 {
	switch regime {
	case types.RegimeVolatile:
		return 0.9
	case types.RegimeTrend:
		return 0.6
	case types.RegimeSideways:
		return 0.4
	}
	return 0
}

func (s *VolatilityBreakout) GenerateSignal(w data.Window, _ *types.Position) types.Side {
	if w.Len() < s.WarmupBars() {
		return types.SideHold
	}

	closes := w.Closes()
	highs := w.Highs()
	lows := w.Lows()
	last := closes[len(closes)-1]

	// Channel over the bars preceding the current one, so the current
	// close can actually break it.
	upper, lower, ok := indicators.Donchian(
		highs[:len(highs)-1], lows[:len(lows)-1], s.channelPeriod)
	if !ok {
		return types.SideHold
	}

	// The contraction must precede the break, so ATR is measured on the
	// bars before the current one.
	atrSeries := indicators.ATRSeries(
		highs[:len(highs)-1], lows[:len(lows)-1], closes[:len(closes)-1], s.atrPeriod)
	if len(atrSeries) < s.medianPeriod {
		return types.SideHold
	}
	median, _ := indicators.Median(atrSeries[len(atrSeries)-s.medianPeriod:])
	contracted := atrSeries[len(atrSeries)-1] < median

	if !contracted {
		return types.SideHold
	}
	if last > upper {
		return types.SideBuy
	}
	if last < lower {
		return types.SideSell
	}
	return types.SideHold
}
