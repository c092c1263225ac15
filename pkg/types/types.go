// Package types provides shared type definitions for the adaptive engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a signal or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
	SideHold Side = "hold"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// PositionSide represents long or short position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Regime is a coarse label for the current market character.
type Regime string

const (
	RegimeTrend    Regime = "trend"
	RegimeSideways Regime = "sideways"
	RegimeVolatile Regime = "volatile"
)

// Regimes lists all regimes in tie-break order: ties resolve to the
// earliest entry for reproducibility.
var Regimes = []Regime{RegimeTrend, RegimeSideways, RegimeVolatile}

// EngineMode selects the broker implementation; core logic is identical.
type EngineMode string

const (
	ModePaper EngineMode = "paper"
	ModeLive  EngineMode = "live"
	ModeMock  EngineMode = "mock"
)

// Timeframe represents bar intervals.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
)

// Bar represents a single OHLCV candle. Bars are immutable and ordered
// per symbol by OpenTime (UTC).
type Bar struct {
	Symbol   string          `json:"symbol"`
	OpenTime time.Time       `json:"openTime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// TradeTick represents a single exchange trade print.
type TradeTick struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
}

// RegimeReading is the classifier output for one window.
type RegimeReading struct {
	Regime       Regime    `json:"regime"`
	Confidence   float64   `json:"confidence"` // confidence of the argmax regime
	ConfTrend    float64   `json:"confTrend"`
	ConfSideways float64   `json:"confSideways"`
	ConfVolatile float64   `json:"confVolatile"`
	Initializing bool      `json:"initializing"`
	ComputedAt   time.Time `json:"computedAt"`
}

// ConfidenceFor returns the confidence assigned to a regime.
func (r RegimeReading) ConfidenceFor(regime Regime) float64 {
	switch regime {
	case RegimeTrend:
		return r.ConfTrend
	case RegimeSideways:
		return r.ConfSideways
	case RegimeVolatile:
		return r.ConfVolatile
	}
	return 0
}

// Signal is a discrete BUY / SELL / HOLD decision produced by a strategy.
type Signal struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	ReferencePrice decimal.Decimal `json:"referencePrice"`
	StrategyName   string          `json:"strategyName"`
	Regime         Regime          `json:"regime"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}

// Order represents an order submitted to the broker.
type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limitPrice,omitempty"`
	Status        OrderStatus     `json:"status"`
	FilledQty     decimal.Decimal `json:"filledQty"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Position represents an open position.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avgEntryPrice"`
	OpenedAt      time.Time       `json:"openedAt"`
}

// Trade represents a closed round trip.
type Trade struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	ExitPrice     decimal.Decimal `json:"exitPrice"`
	OpenedAt      time.Time       `json:"openedAt"`
	ClosedAt      time.Time       `json:"closedAt"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	CapitalAtOpen decimal.Decimal `json:"capitalAtOpen"`
	StrategyName  string          `json:"strategyName"`
	RegimeAtEntry Regime          `json:"regimeAtEntry"`
}

// AccountSnapshot is the broker's view of the account.
type AccountSnapshot struct {
	PortfolioValue decimal.Decimal `json:"portfolioValue"`
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buyingPower"`
	OpenPositions  []Position      `json:"openPositions"`
}

// PerformanceState is a four-bucket health label derived from Sharpe and
// drawdown, plus an explicit marker for too-small windows.
type PerformanceState string

const (
	PerformanceExcellent        PerformanceState = "excellent"
	PerformanceGood             PerformanceState = "good"
	PerformanceDegrading        PerformanceState = "degrading"
	PerformancePoor             PerformanceState = "poor"
	PerformanceInsufficientData PerformanceState = "insufficient_data"
)

// RiskLevel buckets the entry-risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// EquityPoint is one sample on the equity curve.
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
}

// PerformanceWindow summarizes a rolling window of trades and equity.
type PerformanceWindow struct {
	Trades       []Trade          `json:"trades"`
	EquityCurve  []EquityPoint    `json:"equityCurve"`
	Sharpe       float64          `json:"sharpe"`
	MaxDrawdown  float64          `json:"maxDrawdown"`
	WinRate      float64          `json:"winRate"`
	ProfitFactor float64          `json:"profitFactor"`
	TotalReturn  float64          `json:"totalReturn"`
	State        PerformanceState `json:"state"`
}

// OrderPlan is a sized, validated proposal produced by the risk gate.
type OrderPlan struct {
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	StopLoss      decimal.Decimal `json:"stopLoss"`
	TakeProfit    decimal.Decimal `json:"takeProfit"`
	RiskScore     float64         `json:"riskScore"` // 0-100
	RiskLevel     RiskLevel       `json:"riskLevel"`
	ScalingFactor float64         `json:"scalingFactor"`
}

// Recommendation is a signed, sized, risk-checked proposal published to the
// UI or an auto-executor.
type Recommendation struct {
	SignalID         string          `json:"signalId"`
	Symbol           string          `json:"symbol"`
	Side             Side            `json:"side"`
	ReferencePrice   decimal.Decimal `json:"referencePrice"`
	StrategyName     string          `json:"strategyName"`
	Regime           Regime          `json:"regime"`
	RegimeConfidence float64         `json:"regimeConfidence"`
	RiskScore        float64         `json:"riskScore"`
	RiskLevel        RiskLevel       `json:"riskLevel"`
	SuggestedQty     decimal.Decimal `json:"suggestedQty"`
	StopLoss         decimal.Decimal `json:"stopLoss"`
	TakeProfit       decimal.Decimal `json:"takeProfit"`
	GeneratedAt      time.Time       `json:"generatedAt"`
	Rationale        string          `json:"rationale"`
	RejectedByBroker bool            `json:"rejectedByBroker,omitempty"`
	RejectReason     string          `json:"rejectReason,omitempty"`
}

// SwitchEvent records an actual strategy switch.
type SwitchEvent struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
	Regime Regime    `json:"regime"`
	At     time.Time `json:"at"`
}
