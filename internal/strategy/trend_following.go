package strategy

import (
	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// TrendFollowingName is the stable identity of the trend-following strategy.
const TrendFollowingName = "TrendFollowing"

// TrendFollowing trades moving-average crossovers: buy when the fast mean
// crosses above the slow mean, sell on the inverse cross.
type TrendFollowing struct {
	fastPeriod int
	slowPeriod int
	// volCap suppresses entries when ATR14/close exceeds it; zero
	// disables the filter.
	volCap float64
}

// NewTrendFollowing creates the strategy with the default 20/50 crossover.
func NewTrendFollowing() *TrendFollowing {
	return &TrendFollowing{
		fastPeriod: 20,
		slowPeriod: 50,
	}
}

// NewTrendFollowingWithFilter enables the volatility entry filter.
func NewTrendFollowingWithFilter(volCap float64) *TrendFollowing {
	s := NewTrendFollowing()
	s.volCap = volCap
	return s
}

func (s *TrendFollowing) Name() string { return TrendFollowingName }

// WarmupBars needs the slow mean at the current bar.
func (s *TrendFollowing) WarmupBars() int { return s.slowPeriod }

func (s *TrendFollowing) Suitability(regime types.Regime) float64 {
	switch regime {
	case types.RegimeTrend:
		return 0.9
	case types.RegimeVolatile:
		return 0.6
	case types.RegimeSideways:
		return 0.3
	}
	return 0
}

func (s *TrendFollowing) GenerateSignal(w data.Window, _ *types.Position) types.Side {
	if w.Len() < s.WarmupBars() {
		return types.SideHold
	}

	closes := w.Closes()
	fastNow, okFN := indicators.SMA(closes, s.fastPeriod)
	slowNow, okSN := indicators.SMA(closes, s.slowPeriod)
	if !okFN || !okSN {
		return types.SideHold
	}

	// On the first bar where the slow mean becomes available there is no
	// previous reading; the initial relation counts as the cross.
	prev := closes[:len(closes)-1]
	fastPrev, okFP := indicators.SMA(prev, s.fastPeriod)
	slowPrev, okSP := indicators.SMA(prev, s.slowPeriod)
	if !okFP || !okSP {
		fastPrev, slowPrev = slowNow, slowNow
	}

	if s.volCap > 0 {
		atr, ok := indicators.ATR(w.Highs(), w.Lows(), closes, 14)
		last := closes[len(closes)-1]
		if ok && last > 0 && atr/last > s.volCap {
			return types.SideHold
		}
	}

	// A crossover is fast[t] > slow[t] while fast[t-1] <= slow[t-1].
	if fastNow > slowNow && fastPrev <= slowPrev {
		return types.SideBuy
	}
	if fastNow < slowNow && fastPrev >= slowPrev {
		return types.SideSell
	}
	return types.SideHold
}
