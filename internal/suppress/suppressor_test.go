package suppress

import (
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func buySignal() types.Signal {
	return types.Signal{
		ID:             "sig_1",
		Symbol:         "BTCUSDT",
		Side:           types.SideBuy,
		ReferencePrice: decimal.NewFromInt(100),
		StrategyName:   "TrendFollowing",
		Regime:         types.RegimeTrend,
		GeneratedAt:    t0,
	}
}

func TestEmitsByDefault(t *testing.T) {
	s := New(zap.NewNop(), clock.NewFake(t0), 0)
	if !s.ShouldEmit(buySignal()) {
		t.Fatal("fresh suppressor blocked a signal")
	}
}

func TestRejectionSuppressesForExactlyTTL(t *testing.T) {
	clk := clock.NewFake(t0)
	s := New(zap.NewNop(), clk, 15*time.Minute)

	s.RecordUserDecision(buySignal(), false)

	// Any signal with the same (strategy, regime, side) is muted, even
	// with a different id or price.
	other := buySignal()
	other.ID = "sig_2"
	other.ReferencePrice = decimal.NewFromInt(101)
	if s.ShouldEmit(other) {
		t.Fatal("same-context signal emitted during suppression")
	}

	// Still muted at exactly the TTL boundary.
	clk.Advance(15 * time.Minute)
	if s.ShouldEmit(other) {
		t.Fatal("signal emitted at exactly the TTL boundary")
	}

	// One instant past the TTL the context is released.
	clk.Advance(time.Second)
	if !s.ShouldEmit(other) {
		t.Fatal("signal still suppressed after the TTL elapsed")
	}
}

func TestDifferentContextIsNotSuppressed(t *testing.T) {
	s := New(zap.NewNop(), clock.NewFake(t0), 15*time.Minute)
	s.RecordUserDecision(buySignal(), false)

	sell := buySignal()
	sell.Side = types.SideSell
	if !s.ShouldEmit(sell) {
		t.Fatal("opposite side suppressed")
	}

	otherStrategy := buySignal()
	otherStrategy.StrategyName = "MeanReversion"
	if !s.ShouldEmit(otherStrategy) {
		t.Fatal("other strategy suppressed")
	}

	otherRegime := buySignal()
	otherRegime.Regime = types.RegimeVolatile
	if !s.ShouldEmit(otherRegime) {
		t.Fatal("other regime suppressed")
	}
}

func TestAcceptanceClearsImmediately(t *testing.T) {
	s := New(zap.NewNop(), clock.NewFake(t0), 15*time.Minute)

	s.RecordUserDecision(buySignal(), false)
	if s.ShouldEmit(buySignal()) {
		t.Fatal("signal emitted during suppression")
	}

	s.RecordUserDecision(buySignal(), true)
	if !s.ShouldEmit(buySignal()) {
		t.Fatal("acceptance did not clear the suppression")
	}
}

func TestRepeatedRejectionRenewsWindow(t *testing.T) {
	clk := clock.NewFake(t0)
	s := New(zap.NewNop(), clk, 15*time.Minute)

	s.RecordUserDecision(buySignal(), false)
	clk.Advance(10 * time.Minute)
	s.RecordUserDecision(buySignal(), false)

	clk.Advance(10 * time.Minute)
	if s.ShouldEmit(buySignal()) {
		t.Fatal("renewed suppression expired early")
	}
	clk.Advance(5*time.Minute + time.Second)
	if !s.ShouldEmit(buySignal()) {
		t.Fatal("suppression not released after renewed TTL")
	}
}

func TestTickExpiresEntries(t *testing.T) {
	clk := clock.NewFake(t0)
	s := New(zap.NewNop(), clk, 15*time.Minute)

	s.RecordUserDecision(buySignal(), false)
	if len(s.Active()) != 1 {
		t.Fatalf("active entries = %d; want 1", len(s.Active()))
	}

	clk.Advance(16 * time.Minute)
	s.Tick(clk.Now())
	if len(s.Active()) != 0 {
		t.Fatalf("expired entry not removed, %d remaining", len(s.Active()))
	}
}
