// Package strategy provides the signal-generating strategies and the
// meta-selector that chooses among them per regime.
package strategy

import (
	"sort"
	"sync"

	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"go.uber.org/zap"
)

// Strategy is the narrow capability set every strategy implements. Each
// strategy is an independent value; there is no inheritance chain.
type Strategy interface {
	Name() string
	// WarmupBars is the minimum window length before the strategy can
	// produce a non-hold signal.
	WarmupBars() int
	// Suitability is a static per-regime fitness score in [0,1].
	Suitability(regime types.Regime) float64
	// GenerateSignal evaluates the window and the current position (nil
	// when flat) and returns buy, sell or hold. Windows shorter than
	// WarmupBars always yield hold.
	GenerateSignal(w data.Window, position *types.Position) types.Side
}

// Registry manages the available strategies by name.
type Registry struct {
	logger     *zap.Logger
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry with the three built-in strategies.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger:     logger,
		strategies: make(map[string]Strategy),
	}

	r.Register(NewTrendFollowing())
	r.Register(NewMeanReversion())
	r.Register(NewVolatilityBreakout())

	return r
}

// Register adds a strategy; the last registration for a name wins.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// List returns all strategy names, sorted for determinism.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the strategies in name order.
func (r *Registry) All() []Strategy {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		out = append(out, r.strategies[name])
	}
	return out
}
