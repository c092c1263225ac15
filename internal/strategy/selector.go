package strategy

import (
	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"go.uber.org/zap"
)

// Switch reasons carried on SwitchEvent.
const (
	SwitchReasonHysteresis = "score_hysteresis_exceeded"
	SwitchReasonDegrading  = "performance_degrading"
	SwitchReasonRegime     = "regime_change"
)

// PerformanceView is the read side of the performance monitor the selector
// consumes.
type PerformanceView interface {
	// StrategyBias returns a normalized [-1,1] bias derived from the
	// rolling Sharpe of the strategy's recent trades in the given
	// regime; zero when there are no samples.
	StrategyBias(strategy string, regime types.Regime) float64
	// StrategyState returns the health of the strategy's recent trades.
	StrategyState(strategy string) types.PerformanceState
}

// SelectorConfig tunes the meta-policy.
type SelectorConfig struct {
	// Lambda weights the performance bias against suitability.
	Lambda float64
	// Hysteresis is the score margin a challenger must clear.
	Hysteresis float64
	// DegradedWindows is how many consecutive degraded readings force a
	// switch.
	DegradedWindows int
	// SuitabilityFloor forces a switch when the regime changes and the
	// active strategy scores below it in the new regime.
	SuitabilityFloor float64
}

// DefaultSelectorConfig returns the standard switch-policy parameters.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Lambda:           0.2,
		Hysteresis:       0.1,
		DegradedWindows:  2,
		SuitabilityFloor: 0.5,
	}
}

// Selector maps (regime, confidence, recent performance) to the active
// strategy. Apart from the one-slot active strategy and the hysteresis
// counters it is stateless between calls.
type Selector struct {
	logger   *zap.Logger
	config   SelectorConfig
	registry *Registry
	clock    clock.Clock

	active         string
	lastRegime     types.Regime
	haveRegime     bool
	degradedStreak int
}

// NewSelector creates a selector over the registry's strategies.
func NewSelector(logger *zap.Logger, config SelectorConfig, registry *Registry, clk clock.Clock) *Selector {
	return &Selector{
		logger:   logger.Named("selector"),
		config:   config,
		registry: registry,
		clock:    clk,
	}
}

// Active returns the currently active strategy name.
func (s *Selector) Active() string { return s.active }

// Select scores every strategy for the reading and applies the switch
// protocol. The returned event is non-nil only on an actual switch; the
// first call activates the best strategy without an event.
func (s *Selector) Select(reading types.RegimeReading, perf PerformanceView) (Strategy, *types.SwitchEvent) {
	best, bestScore := s.score(reading, perf)

	if s.active == "" {
		s.active = best.Name()
		s.lastRegime = reading.Regime
		s.haveRegime = true
		s.logger.Info("strategy activated",
			zap.String("strategy", s.active),
			zap.String("regime", string(reading.Regime)))
		current, _ := s.registry.Get(s.active)
		return current, nil
	}

	current, ok := s.registry.Get(s.active)
	if !ok {
		// Active strategy was unregistered; fall back to the winner.
		s.active = best.Name()
		current, _ = s.registry.Get(s.active)
		return current, nil
	}

	// Track consecutive degraded windows of the active strategy.
	state := types.PerformanceInsufficientData
	if perf != nil {
		state = perf.StrategyState(s.active)
	}
	if state == types.PerformanceDegrading || state == types.PerformancePoor {
		s.degradedStreak++
	} else {
		s.degradedStreak = 0
	}

	regimeChanged := s.haveRegime && reading.Regime != s.lastRegime
	s.lastRegime = reading.Regime
	s.haveRegime = true

	if best.Name() == s.active {
		return current, nil
	}

	currentScore := s.scoreOne(current, reading, perf)

	var reason string
	switch {
	case regimeChanged && current.Suitability(reading.Regime) < s.config.SuitabilityFloor:
		reason = SwitchReasonRegime
	case s.degradedStreak >= s.config.DegradedWindows:
		reason = SwitchReasonDegrading
	case bestScore >= currentScore+s.config.Hysteresis:
		reason = SwitchReasonHysteresis
	default:
		// Challenger leads but not decisively; hold the active strategy.
		return current, nil
	}

	event := &types.SwitchEvent{
		From:   s.active,
		To:     best.Name(),
		Reason: reason,
		Regime: reading.Regime,
		At:     s.clock.Now(),
	}
	s.logger.Info("strategy switch",
		zap.String("from", event.From),
		zap.String("to", event.To),
		zap.String("reason", reason),
		zap.String("regime", string(reading.Regime)))

	s.active = best.Name()
	s.degradedStreak = 0
	return best, event
}

// score returns the best strategy and its score; ties resolve to the first
// name in registry order for reproducibility.
func (s *Selector) score(reading types.RegimeReading, perf PerformanceView) (Strategy, float64) {
	var best Strategy
	bestScore := 0.0
	for _, candidate := range s.registry.All() {
		score := s.scoreOne(candidate, reading, perf)
		if best == nil || score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best, bestScore
}

func (s *Selector) scoreOne(candidate Strategy, reading types.RegimeReading, perf PerformanceView) float64 {
	score := candidate.Suitability(reading.Regime) * reading.ConfidenceFor(reading.Regime)
	if perf != nil {
		score += s.config.Lambda * perf.StrategyBias(candidate.Name(), reading.Regime)
	}
	return score
}
