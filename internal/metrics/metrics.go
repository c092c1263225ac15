// Package metrics exposes the engine's operational gauges and the typed
// error counters on a dedicated prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for engine metrics.
var Registry = prometheus.NewRegistry()

var (
	// EngineRunning is 1 while the engine is running.
	EngineRunning = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adaptive_engine",
			Subsystem: "engine",
			Name:      "running",
			Help:      "Whether the engine is running (1) or stopped (0)",
		},
	)

	// BarsProcessed counts committed bars per symbol.
	BarsProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adaptive_engine",
			Subsystem: "stream",
			Name:      "bars_total",
			Help:      "Total number of committed bars",
		},
		[]string{"symbol"},
	)

	// ErrorsTotal counts handled errors by taxonomy kind. No error is
	// silently swallowed: every handled error increments its kind.
	ErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adaptive_engine",
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Handled errors by taxonomy kind",
		},
		[]string{"kind"},
	)

	// RecommendationsTotal counts published recommendations per symbol
	// and side.
	RecommendationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adaptive_engine",
			Subsystem: "engine",
			Name:      "recommendations_total",
			Help:      "Total recommendations published",
		},
		[]string{"symbol", "side"},
	)

	// SuppressedTotal counts signals gated by the suppressor.
	SuppressedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adaptive_engine",
			Subsystem: "engine",
			Name:      "suppressed_total",
			Help:      "Signals suppressed after user rejection",
		},
		[]string{"symbol"},
	)

	// StrategySwitchesTotal counts strategy switches by reason.
	StrategySwitchesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adaptive_engine",
			Subsystem: "selector",
			Name:      "switches_total",
			Help:      "Strategy switches by reason",
		},
		[]string{"reason"},
	)

	// DecisionCycleDuration tracks the analysis pipeline latency.
	DecisionCycleDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "adaptive_engine",
			Subsystem: "engine",
			Name:      "decision_cycle_seconds",
			Help:      "Decision cycle duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// RegimeConfidence reports the latest confidence per symbol/regime.
	RegimeConfidence = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "adaptive_engine",
			Subsystem: "regime",
			Name:      "confidence",
			Help:      "Latest regime confidence",
		},
		[]string{"symbol", "regime"},
	)

	// PortfolioValue reports the latest marked portfolio value.
	PortfolioValue = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adaptive_engine",
			Subsystem: "account",
			Name:      "portfolio_value",
			Help:      "Latest portfolio value",
		},
	)

	// Sharpe reports the rolling Sharpe ratio.
	Sharpe = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adaptive_engine",
			Subsystem: "performance",
			Name:      "sharpe_ratio",
			Help:      "Rolling Sharpe ratio",
		},
	)

	// MaxDrawdown reports the rolling maximum drawdown.
	MaxDrawdown = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "adaptive_engine",
			Subsystem: "performance",
			Name:      "max_drawdown",
			Help:      "Rolling maximum drawdown",
		},
	)
)

// Init registers the standard process collectors.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
