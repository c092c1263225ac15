// Package types provides configuration types for the adaptive engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// StopLossMethod selects how the stop price is derived from an entry.
type StopLossMethod string

const (
	StopLossPercent StopLossMethod = "percent"
	StopLossATR     StopLossMethod = "atr"
	StopLossFixed   StopLossMethod = "fixed"
)

// RiskConfig contains the parameters of the risk gate.
type RiskConfig struct {
	Capital             decimal.Decimal `json:"capital"`
	RiskPerTrade        float64         `json:"riskPerTrade"`        // fraction of capital risked per trade, (0, 0.1]
	MaxPositionFraction float64         `json:"maxPositionFraction"` // max position value as fraction of capital, (0, 1]
	MaxPortfolioRisk    float64         `json:"maxPortfolioRisk"`    // max portfolio drawdown before trades are blocked
	RewardRiskRatio     float64         `json:"rewardRiskRatio"`     // take-profit distance as multiple of stop distance
	StopLossMethod      StopLossMethod  `json:"stopLossMethod"`
	StopLossPercent     float64         `json:"stopLossPercent"`     // percent method: fractional distance
	StopLossATRMult     float64         `json:"stopLossAtrMult"`     // atr method: multiplier on ATR14
	StopLossFixedOffset decimal.Decimal `json:"stopLossFixedOffset"` // fixed method: absolute offset
	CashFloor           float64         `json:"cashFloor"`           // minimum cash fraction kept out of the market
}

// DefaultRiskConfig returns conservative defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Capital:             decimal.NewFromInt(10000),
		RiskPerTrade:        0.02,
		MaxPositionFraction: 0.25,
		MaxPortfolioRisk:    0.20,
		RewardRiskRatio:     2.0,
		StopLossMethod:      StopLossATR,
		StopLossPercent:     0.02,
		StopLossATRMult:     2.0,
		StopLossFixedOffset: decimal.NewFromInt(1),
		CashFloor:           0.05,
	}
}

// StreamConfig configures the market-data stream and its reconnect policy.
type StreamConfig struct {
	URL                  string        `json:"url"`
	ReconnectBackoff     time.Duration `json:"reconnectBackoff"`     // initial backoff
	ReconnectBackoffMax  time.Duration `json:"reconnectBackoffMax"`
	ReconnectMaxAttempts int           `json:"reconnectMaxAttempts"` // attempts before surfacing a fatal error
	QuiescentDelay       time.Duration `json:"quiescentDelay"`       // wait after close before redialing
}

// DefaultStreamConfig returns the reconnect policy defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:                  "wss://stream.binance.com:9443/ws",
		ReconnectBackoff:     5 * time.Second,
		ReconnectBackoffMax:  60 * time.Second,
		ReconnectMaxAttempts: 3,
		QuiescentDelay:       3 * time.Second,
	}
}

// EngineConfig is the full configuration surface consumed once at startup.
type EngineConfig struct {
	Mode           EngineMode      `json:"mode"`
	Symbols        []string        `json:"symbols"`
	Timeframe      Timeframe       `json:"timeframe"`
	InitialCapital decimal.Decimal `json:"initialCapital"`

	// Broker credentials are opaque to the core.
	BrokerAPIKey    string `json:"-"`
	BrokerAPISecret string `json:"-"`

	Risk   RiskConfig   `json:"risk"`
	Stream StreamConfig `json:"stream"`

	BufferCapacity    int           `json:"bufferCapacity"`    // bars kept per symbol
	MinimumBars       int           `json:"minimumBars"`       // bars required before analysis
	DecisionTick      time.Duration `json:"decisionTick"`      // liveness timer for the analysis loop
	SuppressionTTL    time.Duration `json:"suppressionTtl"`
	AutoExecute       bool          `json:"autoExecute"`       // submit plans without user accept
	CloseOnShutdown   bool          `json:"closeOnShutdown"`   // flatten positions during stop
	PerformanceTrades int           `json:"performanceTrades"` // rolling window size in trades
	PerformanceEquity int           `json:"performanceEquity"` // rolling window size in equity samples
	RestartCooldown   time.Duration `json:"restartCooldown"`   // refusal window after a connection-limit stop
}

// DefaultEngineConfig returns defaults for a single-symbol paper engine.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Mode:              ModePaper,
		Symbols:           []string{"BTCUSDT"},
		Timeframe:         Timeframe1m,
		InitialCapital:    decimal.NewFromInt(10000),
		Risk:              DefaultRiskConfig(),
		Stream:            DefaultStreamConfig(),
		BufferCapacity:    500,
		MinimumBars:       20,
		DecisionTick:      3 * time.Second,
		SuppressionTTL:    15 * time.Minute,
		AutoExecute:       false,
		CloseOnShutdown:   false,
		PerformanceTrades: 50,
		PerformanceEquity: 60,
		RestartCooldown:   300 * time.Second,
	}
}

// ServerConfig represents the control API server configuration.
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	WebSocketPath string        `json:"websocketPath"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
	EnableMetrics bool          `json:"enableMetrics"`
}
