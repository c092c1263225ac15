package strategy

import (
	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// MeanReversionName is the stable identity of the mean-reversion strategy.
const MeanReversionName = "MeanReversion"

// MeanReversion fades extremes: buy oversold touches of the lower band,
// sell overbought touches of the upper band, and exit open positions when
// price re-touches the middle band.
type MeanReversion struct {
	rsiPeriod  int
	bandPeriod int
	bandWidth  float64
	oversold   float64
	overbought float64
}

// NewMeanReversion creates the strategy with RSI14 and Bollinger(20, 2).
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{
		rsiPeriod:  14,
		bandPeriod: 20,
		bandWidth:  2.0,
		oversold:   30,
		overbought: 70,
	}
}

func (s *MeanReversion) Name() string { return MeanReversionName }

func (s *MeanReversion) WarmupBars() int {
	// Bollinger needs bandPeriod bars, RSI needs rsiPeriod+1.
	if s.bandPeriod > s.rsiPeriod+1 {
		return s.bandPeriod
	}
	return s.rsiPeriod + 1
}

func (s *MeanReversion) Suitability(regime types.Regime) float64 {
	switch regime {
	case types.RegimeSideways:
		return 0.9
	case types.RegimeVolatile:
		return 0.5
	case types.RegimeTrend:
		return 0.3
	}
	return 0
}

func (s *MeanReversion) GenerateSignal(w data.Window, position *types.Position) types.Side {
	if w.Len() < s.WarmupBars() {
		return types.SideHold
	}

	closes := w.Closes()
	last := closes[len(closes)-1]

	rsi, okRSI := indicators.RSI(closes, s.rsiPeriod)
	upper, middle, lower, okBB := indicators.Bollinger(closes, s.bandPeriod, s.bandWidth)
	if !okRSI || !okBB {
		return types.SideHold
	}

	// Exit rules first: re-touch of the middle band closes the position.
	if position != nil {
		if position.Side == types.PositionSideLong && last >= middle {
			return types.SideSell
		}
		if position.Side == types.PositionSideShort && last <= middle {
			return types.SideBuy
		}
	}

	if rsi < s.oversold && last <= lower {
		return types.SideBuy
	}
	if rsi > s.overbought && last >= upper {
		return types.SideSell
	}
	return types.SideHold
}
