// Package performance tracks realized trade outcomes and equity samples and
// reports rolling risk-adjusted metrics plus a coarse health state.
package performance

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/indicators"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// minSamples is the smallest window that produces a health state; smaller
// windows report insufficient data and callers must not act on performance.
const minSamples = 5

// Config bounds the rolling windows.
type Config struct {
	TradeWindow  int // most recent trades kept per metrics window
	EquityWindow int // most recent equity samples kept
	// AnnualizationFallback is used when trade timestamps are too sparse
	// to estimate the cadence.
	AnnualizationFallback float64
}

// DefaultConfig returns the default 50-trade / 60-sample windows.
func DefaultConfig() Config {
	return Config{
		TradeWindow:           50,
		EquityWindow:          60,
		AnnualizationFallback: 252,
	}
}

// Monitor records trades and equity. Writes come from a single goroutine
// (the execution loop); reads may come from anywhere.
type Monitor struct {
	logger *zap.Logger
	config Config

	mu     sync.RWMutex
	trades []types.Trade
	equity []types.EquityPoint
}

// NewMonitor creates a monitor.
func NewMonitor(logger *zap.Logger, config Config) *Monitor {
	if config.TradeWindow <= 0 {
		config.TradeWindow = 50
	}
	if config.EquityWindow <= 0 {
		config.EquityWindow = 60
	}
	if config.AnnualizationFallback <= 0 {
		config.AnnualizationFallback = 252
	}
	return &Monitor{
		logger: logger.Named("performance"),
		config: config,
	}
}

// RecordTrade appends a closed trade.
func (m *Monitor) RecordTrade(trade types.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades = append(m.trades, trade)
	if len(m.trades) > m.config.TradeWindow*4 {
		m.trades = append([]types.Trade(nil), m.trades[len(m.trades)-m.config.TradeWindow*2:]...)
	}

	m.logger.Debug("trade recorded",
		zap.String("symbol", trade.Symbol),
		zap.String("strategy", trade.StrategyName),
		zap.String("pnl", trade.RealizedPnL.String()))
}

// RecordEquity appends an equity sample.
func (m *Monitor) RecordEquity(timestamp time.Time, portfolioValue decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.equity = append(m.equity, types.EquityPoint{Timestamp: timestamp, Equity: portfolioValue})
	if len(m.equity) > m.config.EquityWindow*4 {
		m.equity = append([]types.EquityPoint(nil), m.equity[len(m.equity)-m.config.EquityWindow*2:]...)
	}
}

// Metrics computes the rolling window. A windowSize of zero uses the
// configured default.
func (m *Monitor) Metrics(windowSize int) types.PerformanceWindow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if windowSize <= 0 {
		windowSize = m.config.TradeWindow
	}

	trades := tailTrades(m.trades, windowSize)
	equity := tailEquity(m.equity, m.config.EquityWindow)

	w := types.PerformanceWindow{
		Trades:      trades,
		EquityCurve: equity,
	}

	returns := make([]float64, 0, len(trades))
	wins := 0
	grossProfit, grossLoss := 0.0, 0.0
	for _, t := range trades {
		pnl := t.RealizedPnL.InexactFloat64()
		if capital := t.CapitalAtOpen.InexactFloat64(); capital > 0 {
			returns = append(returns, pnl/capital)
		}
		if pnl > 0 {
			wins++
			grossProfit += pnl
		} else if pnl < 0 {
			grossLoss += -pnl
		}
	}

	if len(trades) > 0 {
		w.WinRate = float64(wins) / float64(len(trades))
	}
	switch {
	case grossLoss == 0 && grossProfit > 0:
		w.ProfitFactor = math.Inf(1)
	case grossLoss == 0:
		w.ProfitFactor = 0
	default:
		w.ProfitFactor = grossProfit / grossLoss
	}

	w.Sharpe = m.sharpe(returns, trades)
	w.MaxDrawdown = maxDrawdown(equity)

	if len(equity) > 1 {
		first := equity[0].Equity.InexactFloat64()
		last := equity[len(equity)-1].Equity.InexactFloat64()
		if first > 0 {
			w.TotalReturn = last/first - 1
		}
	}

	w.State = classify(len(trades), w.Sharpe, w.MaxDrawdown)
	return w
}

// State returns the health bucket for the rolling window.
func (m *Monitor) State(windowSize int) types.PerformanceState {
	return m.Metrics(windowSize).State
}

// StrategyBias implements strategy.PerformanceView: a normalized [-1,1]
// value from the rolling Sharpe of the strategy's trades in the regime;
// zero when there are not enough samples.
func (m *Monitor) StrategyBias(strategyName string, regime types.Regime) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var returns []float64
	var matched []types.Trade
	for _, t := range tailTrades(m.trades, m.config.TradeWindow) {
		if t.StrategyName != strategyName || t.RegimeAtEntry != regime {
			continue
		}
		matched = append(matched, t)
		if capital := t.CapitalAtOpen.InexactFloat64(); capital > 0 {
			returns = append(returns, t.RealizedPnL.InexactFloat64()/capital)
		}
	}
	if len(returns) < 2 {
		return 0
	}
	sharpe := m.sharpe(returns, matched)
	return math.Tanh(sharpe)
}

// StrategyState implements strategy.PerformanceView over the strategy's
// recent trades regardless of regime.
func (m *Monitor) StrategyState(strategyName string) types.PerformanceState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var trades []types.Trade
	for _, t := range tailTrades(m.trades, m.config.TradeWindow) {
		if t.StrategyName == strategyName {
			trades = append(trades, t)
		}
	}

	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		if capital := t.CapitalAtOpen.InexactFloat64(); capital > 0 {
			returns = append(returns, t.RealizedPnL.InexactFloat64()/capital)
		}
	}

	// Per-strategy drawdown is approximated from the cumulative return
	// path of its own trades.
	equity := 1.0
	peak := 1.0
	dd := 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if d := (peak - equity) / peak; d > dd {
				dd = d
			}
		}
	}

	return classify(len(trades), m.sharpe(returns, trades), dd)
}

// sharpe annualizes mean/stddev of returns with a factor derived from the
// trade cadence; sparse timestamps fall back to the configured constant.
func (m *Monitor) sharpe(returns []float64, trades []types.Trade) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := indicators.Mean(returns)
	sd := indicators.StdDev(returns)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(m.periodsPerYear(trades))
}

// periodsPerYear estimates the annualization factor K from the median
// spacing of trade close timestamps.
func (m *Monitor) periodsPerYear(trades []types.Trade) float64 {
	if len(trades) < 2 {
		return m.config.AnnualizationFallback
	}
	spacings := make([]float64, 0, len(trades)-1)
	for i := 1; i < len(trades); i++ {
		gap := trades[i].ClosedAt.Sub(trades[i-1].ClosedAt)
		if gap > 0 {
			spacings = append(spacings, gap.Seconds())
		}
	}
	if len(spacings) == 0 {
		return m.config.AnnualizationFallback
	}
	sort.Float64s(spacings)
	median := spacings[len(spacings)/2]
	if median <= 0 {
		return m.config.AnnualizationFallback
	}
	const secondsPerYear = 365.25 * 24 * 3600
	return secondsPerYear / median
}

// classify applies the health thresholds, resolving overlaps toward the
// worst matching bucket.
func classify(samples int, sharpe, drawdown float64) types.PerformanceState {
	if samples < minSamples {
		return types.PerformanceInsufficientData
	}
	switch {
	case sharpe < 0 || drawdown > 0.30:
		return types.PerformancePoor
	case sharpe < 1 || drawdown > 0.20:
		return types.PerformanceDegrading
	case sharpe > 2 && drawdown < 0.10:
		return types.PerformanceExcellent
	default:
		return types.PerformanceGood
	}
}

func maxDrawdown(equity []types.EquityPoint) float64 {
	if len(equity) < 2 {
		return 0
	}
	peak := equity[0].Equity.InexactFloat64()
	dd := 0.0
	for _, p := range equity {
		v := p.Equity.InexactFloat64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if d := (peak - v) / peak; d > dd {
				dd = d
			}
		}
	}
	return dd
}

func tailTrades(trades []types.Trade, n int) []types.Trade {
	if n <= 0 || n > len(trades) {
		n = len(trades)
	}
	out := make([]types.Trade, n)
	copy(out, trades[len(trades)-n:])
	return out
}

func tailEquity(points []types.EquityPoint, n int) []types.EquityPoint {
	if n <= 0 || n > len(points) {
		n = len(points)
	}
	out := make([]types.EquityPoint, n)
	copy(out, points[len(points)-n:])
	return out
}
