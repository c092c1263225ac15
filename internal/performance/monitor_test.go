package performance

import (
	"math"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func trade(i int, pnl float64) types.Trade {
	return types.Trade{
		ID:            "t",
		Symbol:        "BTCUSDT",
		Side:          types.PositionSideLong,
		Quantity:      decimal.NewFromInt(1),
		EntryPrice:    decimal.NewFromInt(100),
		ExitPrice:     decimal.NewFromFloat(100 + pnl),
		OpenedAt:      t0.Add(time.Duration(i) * time.Hour),
		ClosedAt:      t0.Add(time.Duration(i)*time.Hour + 30*time.Minute),
		RealizedPnL:   decimal.NewFromFloat(pnl),
		CapitalAtOpen: decimal.NewFromInt(10000),
		StrategyName:  "TrendFollowing",
		RegimeAtEntry: types.RegimeTrend,
	}
}

func newMonitor() *Monitor {
	return NewMonitor(zap.NewNop(), DefaultConfig())
}

func TestInsufficientData(t *testing.T) {
	m := newMonitor()
	for i := 0; i < 4; i++ {
		m.RecordTrade(trade(i, 10))
	}
	if state := m.State(0); state != types.PerformanceInsufficientData {
		t.Fatalf("state with 4 trades = %s; want insufficient_data", state)
	}
}

func TestWinRateAndProfitFactor(t *testing.T) {
	m := newMonitor()
	pnls := []float64{50, -20, 30, -10, 40}
	for i, pnl := range pnls {
		m.RecordTrade(trade(i, pnl))
	}

	w := m.Metrics(0)
	if w.WinRate != 0.6 {
		t.Fatalf("win rate = %f; want 0.6", w.WinRate)
	}
	if want := 120.0 / 30.0; math.Abs(w.ProfitFactor-want) > 1e-9 {
		t.Fatalf("profit factor = %f; want %f", w.ProfitFactor, want)
	}
}

func TestProfitFactorEdgeCases(t *testing.T) {
	m := newMonitor()
	for i := 0; i < 5; i++ {
		m.RecordTrade(trade(i, 10))
	}
	if pf := m.Metrics(0).ProfitFactor; !math.IsInf(pf, 1) {
		t.Fatalf("all-wins profit factor = %f; want +Inf", pf)
	}

	m = newMonitor()
	for i := 0; i < 5; i++ {
		m.RecordTrade(trade(i, -10))
	}
	if pf := m.Metrics(0).ProfitFactor; pf != 0 {
		t.Fatalf("all-losses profit factor = %f; want 0", pf)
	}
}

func TestMaxDrawdown(t *testing.T) {
	m := newMonitor()
	equities := []float64{10000, 11000, 9900, 10500, 8800}
	for i, eq := range equities {
		m.RecordEquity(t0.Add(time.Duration(i)*time.Hour), decimal.NewFromFloat(eq))
	}

	// Peak 11000, trough 8800.
	want := (11000.0 - 8800.0) / 11000.0
	if dd := m.Metrics(0).MaxDrawdown; math.Abs(dd-want) > 1e-9 {
		t.Fatalf("max drawdown = %f; want %f", dd, want)
	}
}

func TestHealthBuckets(t *testing.T) {
	cases := []struct {
		sharpe, dd float64
		want       types.PerformanceState
	}{
		{2.5, 0.05, types.PerformanceExcellent},
		{1.5, 0.15, types.PerformanceGood},
		{0.5, 0.15, types.PerformanceDegrading},
		{1.5, 0.25, types.PerformanceDegrading},
		{-0.5, 0.05, types.PerformancePoor},
		{1.5, 0.35, types.PerformancePoor},
		// Overlapping conditions resolve to the worst bucket.
		{-1.0, 0.40, types.PerformancePoor},
	}
	for _, tc := range cases {
		if got := classify(10, tc.sharpe, tc.dd); got != tc.want {
			t.Errorf("classify(sharpe=%f, dd=%f) = %s; want %s", tc.sharpe, tc.dd, got, tc.want)
		}
	}
}

func TestSharpePositiveForConsistentWins(t *testing.T) {
	m := newMonitor()
	pnls := []float64{40, 55, 35, 60, 45, 50, 42, 58}
	for i, pnl := range pnls {
		m.RecordTrade(trade(i, pnl))
	}
	w := m.Metrics(0)
	if w.Sharpe <= 0 {
		t.Fatalf("sharpe = %f; want > 0", w.Sharpe)
	}
}

func TestStrategyBiasBounds(t *testing.T) {
	m := newMonitor()
	if bias := m.StrategyBias("TrendFollowing", types.RegimeTrend); bias != 0 {
		t.Fatalf("bias with no samples = %f; want 0", bias)
	}

	for i := 0; i < 10; i++ {
		m.RecordTrade(trade(i, 40+5*float64(i%3)))
	}
	bias := m.StrategyBias("TrendFollowing", types.RegimeTrend)
	if bias <= 0 || bias > 1 {
		t.Fatalf("bias = %f; want in (0, 1]", bias)
	}
	if other := m.StrategyBias("MeanReversion", types.RegimeTrend); other != 0 {
		t.Fatalf("bias for strategy without trades = %f; want 0", other)
	}
}

func TestRollingWindowKeepsRecentTrades(t *testing.T) {
	m := NewMonitor(zap.NewNop(), Config{TradeWindow: 5, EquityWindow: 5})
	for i := 0; i < 20; i++ {
		m.RecordTrade(trade(i, float64(i)))
	}
	w := m.Metrics(5)
	if len(w.Trades) != 5 {
		t.Fatalf("window holds %d trades; want 5", len(w.Trades))
	}
	if !w.Trades[4].RealizedPnL.Equal(decimal.NewFromInt(19)) {
		t.Fatalf("window missing the most recent trade")
	}
}
