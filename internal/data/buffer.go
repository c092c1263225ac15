// Package data provides the per-symbol rolling bar buffer and derived
// indicator columns that feed the decision pipeline.
package data

import (
	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Value is an indicator scalar with an explicit availability flag; values
// before warm-up are not available.
type Value struct {
	V  float64
	OK bool
}

func value(v float64, ok bool) Value { return Value{V: v, OK: ok} }

// IndicatorRow holds the derived scalars aligned with the most recent bar.
type IndicatorRow struct {
	SMA20           Value
	SMA50           Value
	SMA200          Value
	EMA12           Value
	EMA26           Value
	RSI14           Value
	Volatility      Value // stddev of simple returns over 20 bars
	ATR14           Value
	DonchianUpper   Value // 20 bars
	DonchianLower   Value
	BollingerUpper  Value // 20 bars, k=2
	BollingerMiddle Value
	BollingerLower  Value
}

// Window is an immutable snapshot of the most recent bars, oldest first.
type Window []types.Bar

// Len returns the number of bars in the window.
func (w Window) Len() int { return len(w) }

// Last returns the most recent bar; callers must check Len first.
func (w Window) Last() types.Bar { return w[len(w)-1] }

// Closes returns the close series as floats.
func (w Window) Closes() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// Highs returns the high series as floats.
func (w Window) Highs() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.High.InexactFloat64()
	}
	return out
}

// Lows returns the low series as floats.
func (w Window) Lows() []float64 {
	out := make([]float64, len(w))
	for i, b := range w {
		out[i] = b.Low.InexactFloat64()
	}
	return out
}

// ApplyResult describes what Apply did with an inbound bar.
type ApplyResult int

const (
	// Appended means the bar carried a new open time and was appended.
	Appended ApplyResult = iota
	// Updated means the bar replaced the current tail (partial-bar update).
	Updated
	// RejectedOutOfOrder means the bar's open time precedes the tail.
	RejectedOutOfOrder
)

// BarBuffer is a fixed-capacity ring of recent bars for one symbol.
// It is exclusively owned by the engine's analysis loop; all reads from
// other goroutines go through Snapshot copies.
type BarBuffer struct {
	logger   *zap.Logger
	symbol   string
	capacity int
	bars     []types.Bar
	row      IndicatorRow
	rejected int
}

// NewBarBuffer creates a buffer with the given fixed capacity.
func NewBarBuffer(logger *zap.Logger, symbol string, capacity int) *BarBuffer {
	if capacity < 250 {
		capacity = 250
	}
	return &BarBuffer{
		logger:   logger.Named("buffer"),
		symbol:   symbol,
		capacity: capacity,
		bars:     make([]types.Bar, 0, capacity),
	}
}

// Symbol returns the symbol this buffer tracks.
func (b *BarBuffer) Symbol() string { return b.symbol }

// Len returns the number of bars currently held.
func (b *BarBuffer) Len() int { return len(b.bars) }

// Rejected returns the count of out-of-order bars dropped so far.
func (b *BarBuffer) Rejected() int { return b.rejected }

// Apply appends or updates a bar. A bar whose open time equals the current
// tail replaces the tail (live partial-bar update); a strictly greater open
// time appends; a strictly lesser open time is rejected and logged, never
// raised.
func (b *BarBuffer) Apply(bar types.Bar) ApplyResult {
	if n := len(b.bars); n > 0 {
		tail := b.bars[n-1].OpenTime
		switch {
		case bar.OpenTime.Equal(tail):
			b.bars[n-1] = bar
			b.recompute()
			return Updated
		case bar.OpenTime.Before(tail):
			b.rejected++
			b.logger.Warn("out-of-order bar dropped",
				zap.String("symbol", b.symbol),
				zap.Time("barTime", bar.OpenTime),
				zap.Time("tailTime", tail))
			return RejectedOutOfOrder
		}
	}

	if len(b.bars) == b.capacity {
		copy(b.bars, b.bars[1:])
		b.bars = b.bars[:len(b.bars)-1]
	}
	b.bars = append(b.bars, bar)
	b.recompute()
	return Appended
}

// Snapshot returns a copy of up to n most-recent bars, oldest first.
func (b *BarBuffer) Snapshot(n int) Window {
	if n <= 0 || n > len(b.bars) {
		n = len(b.bars)
	}
	out := make(Window, n)
	copy(out, b.bars[len(b.bars)-n:])
	return out
}

// LatestPrice returns the close of the last bar.
func (b *BarBuffer) LatestPrice() (decimal.Decimal, bool) {
	if len(b.bars) == 0 {
		return decimal.Zero, false
	}
	return b.bars[len(b.bars)-1].Close, true
}

// Indicators returns the row aligned with the most recent bar.
func (b *BarBuffer) Indicators() IndicatorRow { return b.row }

// recompute rebuilds the indicator row from the tail window. Running
// accumulators are deliberately avoided: a partial-bar update would
// invalidate them, and the batch formulas define correctness.
func (b *BarBuffer) recompute() {
	w := Window(b.bars)
	closes := w.Closes()
	highs := w.Highs()
	lows := w.Lows()

	var row IndicatorRow
	v, ok := indicators.SMA(closes, 20)
	row.SMA20 = value(v, ok)
	v, ok = indicators.SMA(closes, 50)
	row.SMA50 = value(v, ok)
	v, ok = indicators.SMA(closes, 200)
	row.SMA200 = value(v, ok)
	v, ok = indicators.EMA(closes, 12)
	row.EMA12 = value(v, ok)
	v, ok = indicators.EMA(closes, 26)
	row.EMA26 = value(v, ok)
	v, ok = indicators.RSI(closes, 14)
	row.RSI14 = value(v, ok)
	v, ok = indicators.Volatility(closes, 20)
	row.Volatility = value(v, ok)
	v, ok = indicators.ATR(highs, lows, closes, 14)
	row.ATR14 = value(v, ok)
	upper, lower, ok := indicators.Donchian(highs, lows, 20)
	row.DonchianUpper = value(upper, ok)
	row.DonchianLower = value(lower, ok)
	bu, bm, bl, ok := indicators.Bollinger(closes, 20, 2)
	row.BollingerUpper = value(bu, ok)
	row.BollingerMiddle = value(bm, ok)
	row.BollingerLower = value(bl, ok)
	b.row = row
}
