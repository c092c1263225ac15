// Package risk converts raw signals into sized, validated order plans and
// tracks portfolio-level exposure limits.
package risk

import (
	"fmt"
	"sync"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Rejection reasons produced by the gate.
const (
	ReasonZeroQuantity       = "quantity rounds to zero"
	ReasonInsufficientPower  = "insufficient buying power"
	ReasonConcentration      = "portfolio concentration above limit"
	ReasonPortfolioDrawdown  = "portfolio drawdown above limit"
	ReasonMissingStop        = "stop price equals entry"
)

// Rejection explains why a signal did not become an order plan.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return fmt.Sprintf("risk reject: %s", r.Reason) }

// Summary describes current portfolio-level risk.
type Summary struct {
	PortfolioValue decimal.Decimal `json:"portfolioValue"`
	Invested       decimal.Decimal `json:"invested"`
	Cash           decimal.Decimal `json:"cash"`
	Concentration  float64         `json:"concentration"` // invested / portfolio value
	Drawdown       float64         `json:"drawdown"`      // from the portfolio peak
	OpenPositions  int             `json:"openPositions"`
}

// Manager is the risk gate. It is safe for concurrent use, though in the
// engine all calls arrive from the analysis loop.
type Manager struct {
	logger *zap.Logger
	config types.RiskConfig

	mu   sync.Mutex
	peak decimal.Decimal // portfolio high-water mark
}

// NewManager creates a risk manager.
func NewManager(logger *zap.Logger, config types.RiskConfig) *Manager {
	return &Manager{
		logger: logger.Named("risk"),
		config: config,
		peak:   config.Capital,
	}
}

// Config returns the active configuration.
func (m *Manager) Config() types.RiskConfig { return m.config }

// SizeAndValidate turns a signal plus a stop price into an order plan, or a
// rejection with an explicit reason. The entry-risk score scales the sized
// quantity down in risky contexts.
func (m *Manager) SizeAndValidate(
	signal types.Signal,
	account types.AccountSnapshot,
	stopLoss decimal.Decimal,
	atr float64,
	reading types.RegimeReading,
) (*types.OrderPlan, *Rejection) {
	entry := signal.ReferencePrice
	stopDistance := entry.Sub(stopLoss).Abs()
	if stopDistance.IsZero() {
		return nil, &Rejection{Reason: ReasonMissingStop}
	}

	summary := m.PortfolioRisk(account)
	if summary.Drawdown > m.config.MaxPortfolioRisk {
		return nil, &Rejection{Reason: ReasonPortfolioDrawdown}
	}

	capital := m.config.Capital
	riskAmount := capital.Mul(decimal.NewFromFloat(m.config.RiskPerTrade))
	qty := riskAmount.Div(stopDistance).Floor()

	// Clamp to the maximum position fraction and to buying power.
	maxValue := capital.Mul(decimal.NewFromFloat(m.config.MaxPositionFraction))
	if qty.Mul(entry).GreaterThan(maxValue) {
		qty = maxValue.Div(entry).Floor()
	}
	if qty.Mul(entry).GreaterThan(account.BuyingPower) {
		qty = account.BuyingPower.Div(entry).Floor()
	}

	score, level := m.EntryRiskScore(entry, stopLoss, atr, reading)
	scale := ScalingFactor(level)
	if scale < 1.0 {
		qty = qty.Mul(decimal.NewFromFloat(scale)).Floor()
	}

	if qty.IsZero() || qty.IsNegative() {
		return nil, &Rejection{Reason: ReasonZeroQuantity}
	}
	if qty.Mul(entry).GreaterThan(account.BuyingPower) {
		return nil, &Rejection{Reason: ReasonInsufficientPower}
	}

	// Concentration after the trade must leave the cash floor intact.
	if account.PortfolioValue.IsPositive() {
		after := summary.Invested.Add(qty.Mul(entry))
		concentration := after.Div(account.PortfolioValue).InexactFloat64()
		if concentration > 1-m.config.CashFloor {
			return nil, &Rejection{Reason: ReasonConcentration}
		}
	}

	plan := &types.OrderPlan{
		Symbol:        signal.Symbol,
		Side:          signal.Side,
		Quantity:      qty,
		EntryPrice:    entry,
		StopLoss:      stopLoss,
		TakeProfit:    m.DeriveTakeProfit(entry, stopLoss, signal.Side),
		RiskScore:     score,
		RiskLevel:     level,
		ScalingFactor: scale,
	}

	m.logger.Debug("order plan sized",
		zap.String("symbol", plan.Symbol),
		zap.String("side", string(plan.Side)),
		zap.String("qty", plan.Quantity.String()),
		zap.Float64("riskScore", score),
		zap.String("riskLevel", string(level)))

	return plan, nil
}

// DeriveStopLoss derives the stop price from the configured method.
func (m *Manager) DeriveStopLoss(entry decimal.Decimal, atr float64, side types.Side) decimal.Decimal {
	var distance decimal.Decimal
	switch m.config.StopLossMethod {
	case types.StopLossATR:
		distance = decimal.NewFromFloat(atr * m.config.StopLossATRMult)
	case types.StopLossFixed:
		distance = m.config.StopLossFixedOffset
	default: // percent
		distance = entry.Mul(decimal.NewFromFloat(m.config.StopLossPercent))
	}
	if distance.LessThanOrEqual(decimal.Zero) {
		distance = entry.Mul(decimal.NewFromFloat(m.config.StopLossPercent))
	}
	if side == types.SideSell {
		return entry.Add(distance)
	}
	return entry.Sub(distance)
}

// DeriveTakeProfit mirrors the stop distance by the reward/risk ratio.
func (m *Manager) DeriveTakeProfit(entry, stop decimal.Decimal, side types.Side) decimal.Decimal {
	distance := entry.Sub(stop).Abs().Mul(decimal.NewFromFloat(m.config.RewardRiskRatio))
	if side == types.SideSell {
		return entry.Sub(distance)
	}
	return entry.Add(distance)
}

// PortfolioRisk summarizes the account against the high-water mark.
func (m *Manager) PortfolioRisk(account types.AccountSnapshot) Summary {
	m.mu.Lock()
	if account.PortfolioValue.GreaterThan(m.peak) {
		m.peak = account.PortfolioValue
	}
	peak := m.peak
	m.mu.Unlock()

	invested := account.PortfolioValue.Sub(account.Cash)
	s := Summary{
		PortfolioValue: account.PortfolioValue,
		Invested:       invested,
		Cash:           account.Cash,
		OpenPositions:  len(account.OpenPositions),
	}
	if account.PortfolioValue.IsPositive() {
		s.Concentration = invested.Div(account.PortfolioValue).InexactFloat64()
	}
	if peak.IsPositive() {
		s.Drawdown = peak.Sub(account.PortfolioValue).Div(peak).InexactFloat64()
		if s.Drawdown < 0 {
			s.Drawdown = 0
		}
	}
	return s
}

// EntryRiskScore combines normalized stop distance, price volatility and
// the regime's volatility context into a score in [0,100].
func (m *Manager) EntryRiskScore(entry, stop decimal.Decimal, atr float64, reading types.RegimeReading) (float64, types.RiskLevel) {
	price := entry.InexactFloat64()
	stopDist := 0.0
	if price > 0 {
		stopDist = entry.Sub(stop).Abs().InexactFloat64() / price
	}

	// Normalize: a 10% stop distance or a 5% ATR/price ratio saturates
	// its component.
	stopComponent := clamp01(stopDist / 0.10)
	volComponent := 0.0
	if price > 0 {
		volComponent = clamp01(atr / price / 0.05)
	}
	regimeComponent := clamp01(reading.ConfVolatile)

	score := 100 * (0.4*stopComponent + 0.3*volComponent + 0.3*regimeComponent)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, LevelFor(score)
}

// LevelFor buckets a risk score.
func LevelFor(score float64) types.RiskLevel {
	switch {
	case score <= 25:
		return types.RiskLevelLow
	case score <= 50:
		return types.RiskLevelMedium
	case score <= 75:
		return types.RiskLevelHigh
	default:
		return types.RiskLevelCritical
	}
}

// ScalingFactor is the recommended position-size multiplier per level.
func ScalingFactor(level types.RiskLevel) float64 {
	switch level {
	case types.RiskLevelLow:
		return 1.0
	case types.RiskLevelMedium:
		return 0.75
	case types.RiskLevelHigh:
		return 0.5
	default:
		return 0.25
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
