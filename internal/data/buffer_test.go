package data

import (
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, close float64) types.Bar {
	c := decimal.NewFromFloat(close)
	return types.Bar{
		Symbol:   "BTCUSDT",
		OpenTime: t0.Add(time.Duration(i) * time.Minute),
		Open:     c,
		High:     c.Add(decimal.NewFromFloat(0.5)),
		Low:      c.Sub(decimal.NewFromFloat(0.5)),
		Close:    c,
		Volume:   decimal.NewFromInt(1000),
	}
}

func TestApplyAppendsAndUpdates(t *testing.T) {
	b := NewBarBuffer(zap.NewNop(), "BTCUSDT", 250)

	if got := b.Apply(bar(0, 100)); got != Appended {
		t.Fatalf("expected append, got %v", got)
	}
	if got := b.Apply(bar(1, 101)); got != Appended {
		t.Fatalf("expected append, got %v", got)
	}

	// Same open time replaces the tail (partial-bar update).
	if got := b.Apply(bar(1, 102)); got != Updated {
		t.Fatalf("expected update, got %v", got)
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 bars, got %d", b.Len())
	}
	price, ok := b.LatestPrice()
	if !ok || !price.Equal(decimal.NewFromInt(102)) {
		t.Fatalf("expected latest price 102, got %s", price)
	}
}

func TestApplyRejectsOutOfOrder(t *testing.T) {
	b := NewBarBuffer(zap.NewNop(), "BTCUSDT", 250)
	b.Apply(bar(5, 100))

	if got := b.Apply(bar(3, 99)); got != RejectedOutOfOrder {
		t.Fatalf("expected out-of-order rejection, got %v", got)
	}
	if b.Len() != 1 {
		t.Fatalf("buffer mutated by rejected bar")
	}
	if b.Rejected() != 1 {
		t.Fatalf("expected rejection counter 1, got %d", b.Rejected())
	}
}

func TestOpenTimesStrictlyIncreasing(t *testing.T) {
	b := NewBarBuffer(zap.NewNop(), "BTCUSDT", 250)
	for i := 0; i < 300; i++ {
		b.Apply(bar(i, 100+float64(i%7)))
	}
	// Inject disorder and duplicates; the invariant must hold regardless.
	b.Apply(bar(100, 50))
	b.Apply(bar(299, 101))

	window := b.Snapshot(0)
	for i := 1; i < window.Len(); i++ {
		if !window[i].OpenTime.After(window[i-1].OpenTime) {
			t.Fatalf("open times not strictly increasing at %d", i)
		}
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	b := NewBarBuffer(zap.NewNop(), "BTCUSDT", 250)
	for i := 0; i < 400; i++ {
		b.Apply(bar(i, 100))
	}
	if b.Len() != 250 {
		t.Fatalf("expected capacity 250, got %d", b.Len())
	}
	window := b.Snapshot(0)
	if !window[0].OpenTime.Equal(t0.Add(150 * time.Minute)) {
		t.Fatalf("oldest bar not evicted, window starts at %s", window[0].OpenTime)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := NewBarBuffer(zap.NewNop(), "BTCUSDT", 250)
	for i := 0; i < 10; i++ {
		b.Apply(bar(i, 100))
	}
	window := b.Snapshot(5)
	if window.Len() != 5 {
		t.Fatalf("expected 5 bars, got %d", window.Len())
	}
	window[0].Close = decimal.NewFromInt(1)

	again := b.Snapshot(5)
	if again[0].Close.Equal(decimal.NewFromInt(1)) {
		t.Fatal("snapshot shares memory with the buffer")
	}
}

func TestIndicatorWarmup(t *testing.T) {
	b := NewBarBuffer(zap.NewNop(), "BTCUSDT", 250)

	for i := 0; i < 10; i++ {
		b.Apply(bar(i, 100))
	}
	row := b.Indicators()
	if row.SMA20.OK || row.RSI14.OK || row.BollingerMiddle.OK {
		t.Fatal("indicators reported available before warm-up")
	}

	for i := 10; i < 60; i++ {
		b.Apply(bar(i, 100+float64(i)*0.5))
	}
	row = b.Indicators()
	if !row.SMA20.OK || !row.SMA50.OK || !row.RSI14.OK || !row.ATR14.OK {
		t.Fatal("indicators not available after warm-up")
	}
	if row.SMA200.OK {
		t.Fatal("SMA200 available with only 60 bars")
	}
	if row.SMA20.V <= row.SMA50.V {
		t.Fatalf("rising series should have SMA20 > SMA50, got %f <= %f", row.SMA20.V, row.SMA50.V)
	}
}

func TestValidateBar(t *testing.T) {
	good := bar(0, 100)
	if err := ValidateBar(good); err != nil {
		t.Fatalf("valid bar rejected: %v", err)
	}

	cases := map[string]func(types.Bar) types.Bar{
		"zero time": func(b types.Bar) types.Bar {
			b.OpenTime = time.Time{}
			return b
		},
		"negative close": func(b types.Bar) types.Bar {
			b.Close = decimal.NewFromInt(-1)
			return b
		},
		"high below close": func(b types.Bar) types.Bar {
			b.High = b.Close.Sub(decimal.NewFromInt(5))
			return b
		},
		"low above open": func(b types.Bar) types.Bar {
			b.Low = b.Open.Add(decimal.NewFromInt(5))
			return b
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			if err := ValidateBar(mutate(good)); err == nil {
				t.Fatal("expected integrity error")
			}
		})
	}
}
