// Package regime classifies the current market character into one of three
// regimes (trend, sideways, volatile) with a confidence distribution.
// The default scorer is rule-based over momentum, volatility and range
// expansion; an optional HMM scorer can replace it while preserving the
// output contract.
package regime

import (
	"math"

	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"go.uber.org/zap"
)

// MinWindow is the number of bars required before the classifier produces a
// non-initializing reading.
const MinWindow = 20

// Config configures the classifier weights and baselines.
type Config struct {
	W1, W2 float64 // trend: momentum, trend strength
	W3, W4 float64 // range: inverse momentum, inverse vol
	W5, W6 float64 // volatile: vol z, range expansion
	MomentumBars   int
	VolatilityBars int
	BaselineBars   int // longer window for the volatility baseline
	UseHMM         bool
}

// DefaultConfig returns unit weights and the standard lookbacks.
func DefaultConfig() Config {
	return Config{
		W1: 1.0, W2: 1.0, W3: 1.0, W4: 1.0, W5: 1.0, W6: 1.0,
		MomentumBars:   20,
		VolatilityBars: 20,
		BaselineBars:   50,
	}
}

// Classifier converts a bar window into a RegimeReading. It is stateless
// across calls: identical windows produce identical readings.
type Classifier struct {
	logger *zap.Logger
	config Config
	clock  clock.Clock
	hmm    *hmmScorer
}

// NewClassifier creates a classifier.
func NewClassifier(logger *zap.Logger, config Config, clk clock.Clock) *Classifier {
	c := &Classifier{
		logger: logger.Named("regime"),
		config: config,
		clock:  clk,
	}
	if config.UseHMM {
		c.hmm = newHMMScorer()
	}
	return c
}

// Classify computes a reading over the window. Windows shorter than
// MinWindow yield an initializing reading with uniform confidences.
func (c *Classifier) Classify(w data.Window) types.RegimeReading {
	now := c.clock.Now()
	if w.Len() < MinWindow {
		return types.RegimeReading{
			Regime:       types.RegimeTrend,
			Confidence:   1.0 / 3.0,
			ConfTrend:    1.0 / 3.0,
			ConfSideways: 1.0 / 3.0,
			ConfVolatile: 1.0 / 3.0,
			Initializing: true,
			ComputedAt:   now,
		}
	}

	var trendScore, rangeScore, volScore float64
	if c.hmm != nil {
		trendScore, rangeScore, volScore = c.hmm.scores(indicators.Returns(w.Closes()))
	} else {
		trendScore, rangeScore, volScore = c.scores(w)
	}

	confs := softmax(trendScore, rangeScore, volScore)

	// Argmax with ties broken in declaration order of types.Regimes.
	best := 0
	for i := 1; i < len(confs); i++ {
		if confs[i] > confs[best] {
			best = i
		}
	}

	return types.RegimeReading{
		Regime:       types.Regimes[best],
		Confidence:   confs[best],
		ConfTrend:    confs[0],
		ConfSideways: confs[1],
		ConfVolatile: confs[2],
		ComputedAt:   now,
	}
}

// Feature normalization scales: momentum saturates at 5% over the lookback
// and mean separation at 2% of price, so each score component lives in
// [0,1] and the softmax margins are meaningful.
const (
	momentumScale      = 0.05
	trendStrengthScale = 0.02
)

// scores computes the three unnormalized regime scores, each clamped >= 0.
func (c *Classifier) scores(w data.Window) (trend, rng, vol float64) {
	closes := w.Closes()
	highs := w.Highs()
	lows := w.Lows()
	last := closes[len(closes)-1]

	momentum, _ := indicators.ROC(closes, min(c.config.MomentumBars, len(closes)-1))
	absMom := clamp01(math.Abs(momentum) / momentumScale)

	// Trend strength: separation of the fast and slow means relative to
	// price, clamped to [0,1].
	trendStrength := 0.0
	sma20, ok20 := indicators.SMA(closes, 20)
	sma50, ok50 := indicators.SMA(closes, min(50, len(closes)))
	if ok20 && ok50 && last != 0 {
		trendStrength = clamp01(math.Abs(sma20-sma50) / last / trendStrengthScale)
	}

	// Volatility z: current short volatility against the longer baseline;
	// 1 means volatility is at its baseline.
	volZ := 1.0
	volShort, okS := indicators.Volatility(closes, min(c.config.VolatilityBars, len(closes)-1))
	volLong, okL := indicators.Volatility(closes, min(c.config.BaselineBars, len(closes)-1))
	if okS && okL && volLong > 0 {
		volZ = volShort / volLong
	}

	// Range expansion: current ATR against its window baseline.
	rangeExpansion := 1.0
	atrSeries := indicators.ATRSeries(highs, lows, closes, 14)
	if len(atrSeries) > 1 {
		baseline, _ := indicators.Median(atrSeries)
		if baseline > 0 {
			rangeExpansion = atrSeries[len(atrSeries)-1] / baseline
		}
	}

	trend = c.config.W1*absMom + c.config.W2*trendStrength
	rng = c.config.W3*(1-absMom) + c.config.W4*clamp01(2-volZ)
	vol = c.config.W5*clamp01(volZ-1) + c.config.W6*clamp01(rangeExpansion-1)

	if trend < 0 {
		trend = 0
	}
	if rng < 0 {
		rng = 0
	}
	if vol < 0 {
		vol = 0
	}
	return trend, rng, vol
}

// softmax normalizes the scores into a confidence distribution summing to 1.
func softmax(scores ...float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
