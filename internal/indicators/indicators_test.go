package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	v, ok := SMA(closes, 5)
	if !ok || v != 3 {
		t.Fatalf("SMA(5) = %f, %v; want 3", v, ok)
	}
	v, ok = SMA(closes, 2)
	if !ok || v != 4.5 {
		t.Fatalf("SMA(2) = %f; want 4.5", v)
	}
	if _, ok := SMA(closes, 6); ok {
		t.Fatal("SMA reported available before warm-up")
	}
}

func TestEMAFlatSeriesEqualsPrice(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	v, ok := EMA(closes, 12)
	if !ok || !almostEqual(v, 100, 1e-9) {
		t.Fatalf("EMA of flat series = %f; want 100", v)
	}
}

func TestEMATracksRecentPrices(t *testing.T) {
	closes := rising(60, 100, 1)
	ema, _ := EMA(closes, 12)
	sma, _ := SMA(closes, 12)
	// EMA lags the last close but sits near the fast mean for a linear ramp.
	if ema <= sma-2 || ema >= closes[len(closes)-1] {
		t.Fatalf("EMA %f out of expected range (sma12=%f, last=%f)", ema, sma, closes[len(closes)-1])
	}
}

func TestRSIExtremes(t *testing.T) {
	up := rising(30, 100, 1)
	v, ok := RSI(up, 14)
	if !ok || v != 100 {
		t.Fatalf("RSI of all-gains series = %f; want 100", v)
	}

	down := rising(30, 100, -1)
	v, _ = RSI(down, 14)
	if v != 0 {
		t.Fatalf("RSI of all-losses series = %f; want 0", v)
	}

	if _, ok := RSI(rising(14, 100, 1), 14); ok {
		t.Fatal("RSI reported available with only n closes")
	}
}

func TestATRConstantRange(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100
		highs[i] = 101
		lows[i] = 99
	}
	v, ok := ATR(highs, lows, closes, 14)
	if !ok || !almostEqual(v, 2, 1e-9) {
		t.Fatalf("ATR of constant 2-point range = %f; want 2", v)
	}

	series := ATRSeries(highs, lows, closes, 14)
	if len(series) != n-14 {
		t.Fatalf("ATR series length = %d; want %d", len(series), n-14)
	}
}

func TestTrueRangeUsesGaps(t *testing.T) {
	// Gap up: previous close far below the bar's range.
	if tr := TrueRange(110, 105, 100); tr != 10 {
		t.Fatalf("TrueRange gap up = %f; want 10", tr)
	}
	if tr := TrueRange(100, 95, 105); tr != 10 {
		t.Fatalf("TrueRange gap down = %f; want 10", tr)
	}
}

func TestROC(t *testing.T) {
	closes := rising(21, 100, 1)
	v, ok := ROC(closes, 20)
	if !ok || !almostEqual(v, 0.2, 1e-9) {
		t.Fatalf("ROC(20) = %f; want 0.2", v)
	}
	if _, ok := ROC(closes, 21); ok {
		t.Fatal("ROC reported available before warm-up")
	}
}

func TestVolatilityFlatIsZero(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	v, ok := Volatility(closes, 20)
	if !ok || v != 0 {
		t.Fatalf("volatility of flat series = %f; want 0", v)
	}
}

func TestDonchian(t *testing.T) {
	highs := []float64{5, 9, 7, 8, 6}
	lows := []float64{3, 4, 2, 5, 4}
	upper, lower, ok := Donchian(highs, lows, 5)
	if !ok || upper != 9 || lower != 2 {
		t.Fatalf("Donchian = (%f, %f); want (9, 2)", upper, lower)
	}
	upper, lower, _ = Donchian(highs, lows, 2)
	if upper != 8 || lower != 4 {
		t.Fatalf("Donchian(2) = (%f, %f); want (8, 4)", upper, lower)
	}
}

func TestBollingerSymmetry(t *testing.T) {
	closes := []float64{98, 102, 98, 102, 98, 102, 98, 102, 98, 102,
		98, 102, 98, 102, 98, 102, 98, 102, 98, 102}
	upper, middle, lower, ok := Bollinger(closes, 20, 2)
	if !ok {
		t.Fatal("Bollinger not available with 20 closes")
	}
	if !almostEqual(middle, 100, 1e-9) {
		t.Fatalf("Bollinger middle = %f; want 100", middle)
	}
	if !almostEqual(upper-middle, middle-lower, 1e-9) {
		t.Fatalf("bands not symmetric: %f vs %f", upper-middle, middle-lower)
	}
	if upper <= middle {
		t.Fatal("upper band not above middle")
	}
}

func TestMedian(t *testing.T) {
	v, ok := Median([]float64{3, 1, 2})
	if !ok || v != 2 {
		t.Fatalf("median odd = %f; want 2", v)
	}
	v, _ = Median([]float64{4, 1, 3, 2})
	if v != 2.5 {
		t.Fatalf("median even = %f; want 2.5", v)
	}
	if _, ok := Median(nil); ok {
		t.Fatal("median of empty slice reported available")
	}
}
