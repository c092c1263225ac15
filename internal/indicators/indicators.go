// Package indicators provides pure indicator functions over ordered bar
// windows. Every function reports availability explicitly: callers must not
// read a value whose second return is false (warm-up not reached).
package indicators

import (
	"math"
	"sort"
)

// SMA returns the arithmetic mean of the last n values.
func SMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// EMA returns the exponential moving average with alpha = 2/(n+1), seeded
// with the SMA of the first n values.
func EMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	seed, _ := SMA(values[:n], n)
	alpha := 2.0 / float64(n+1)
	ema := seed
	for _, v := range values[n:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema, true
}

// RSI returns the Relative Strength Index over n periods using Wilder
// smoothing of gains and losses.
func RSI(closes []float64, n int) (float64, bool) {
	if n <= 0 || len(closes) < n+1 {
		return 0, false
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)

	for i := n + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if hc := math.Abs(high - prevClose); hc > tr {
		tr = hc
	}
	if lc := math.Abs(low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

// ATR returns the Average True Range over n periods using Wilder smoothing.
func ATR(highs, lows, closes []float64, n int) (float64, bool) {
	series := ATRSeries(highs, lows, closes, n)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// ATRSeries returns the Wilder-smoothed ATR for every index from bar n
// onward. The result has len(closes)-n entries; entry i corresponds to
// bar i+n of the input.
func ATRSeries(highs, lows, closes []float64, n int) []float64 {
	if n <= 0 || len(closes) < n+1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nil
	}

	atr := 0.0
	for i := 1; i <= n; i++ {
		atr += TrueRange(highs[i], lows[i], closes[i-1])
	}
	atr /= float64(n)

	out := make([]float64, 0, len(closes)-n)
	out = append(out, atr)
	for i := n + 1; i < len(closes); i++ {
		tr := TrueRange(highs[i], lows[i], closes[i-1])
		atr = (atr*float64(n-1) + tr) / float64(n)
		out = append(out, atr)
	}
	return out
}

// Returns converts a close series into simple returns.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// Volatility returns the sample standard deviation of simple returns over
// the last n returns.
func Volatility(closes []float64, n int) (float64, bool) {
	rets := Returns(closes)
	if n < 2 || len(rets) < n {
		return 0, false
	}
	return StdDev(rets[len(rets)-n:]), true
}

// ROC returns the rate of change close_t/close_{t-n} - 1.
func ROC(closes []float64, n int) (float64, bool) {
	if n <= 0 || len(closes) < n+1 {
		return 0, false
	}
	past := closes[len(closes)-1-n]
	if past == 0 {
		return 0, false
	}
	return closes[len(closes)-1]/past - 1, true
}

// Donchian returns the highest high and lowest low over the last n bars.
func Donchian(highs, lows []float64, n int) (upper, lower float64, ok bool) {
	if n <= 0 || len(highs) < n || len(lows) < n {
		return 0, 0, false
	}
	upper = highs[len(highs)-n]
	lower = lows[len(lows)-n]
	for i := len(highs) - n + 1; i < len(highs); i++ {
		if highs[i] > upper {
			upper = highs[i]
		}
		if lows[i] < lower {
			lower = lows[i]
		}
	}
	return upper, lower, true
}

// Bollinger returns SMA(n) +/- k standard deviations of the last n closes.
func Bollinger(closes []float64, n int, k float64) (upper, middle, lower float64, ok bool) {
	if n < 2 || len(closes) < n {
		return 0, 0, 0, false
	}
	middle, _ = SMA(closes, n)
	sd := StdDev(closes[len(closes)-n:])
	return middle + k*sd, middle, middle - k*sd, true
}

// StdDev returns the sample standard deviation.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// Mean returns the arithmetic mean.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the median of the values.
func Median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, true
	}
	return sorted[mid], true
}
