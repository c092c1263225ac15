// Package suppress keeps a short-term memory of user rejections so the
// engine does not re-emit the same signal context immediately after the
// user skipped it.
package suppress

import (
	"sync"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultTTL is how long a rejection mutes the matching context.
const DefaultTTL = 15 * time.Minute

// Key identifies a suppressible signal context.
type Key struct {
	Strategy string
	Regime   types.Regime
	Side     types.Side
}

// KeyFor derives the suppression key from a signal.
func KeyFor(signal types.Signal) Key {
	return Key{
		Strategy: signal.StrategyName,
		Regime:   signal.Regime,
		Side:     signal.Side,
	}
}

// Entry is one active suppression.
type Entry struct {
	Key   Key       `json:"key"`
	Until time.Time `json:"until"`
	Count int       `json:"count"`
}

// Suppressor gates repeated same-context signals after user rejections.
// State is owned by the engine's analysis loop; the mutex only protects
// snapshot reads from other goroutines.
type Suppressor struct {
	logger *zap.Logger
	clock  clock.Clock
	ttl    time.Duration

	mu      sync.Mutex
	entries map[Key]*Entry
}

// New creates a suppressor; a non-positive ttl uses DefaultTTL.
func New(logger *zap.Logger, clk clock.Clock, ttl time.Duration) *Suppressor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Suppressor{
		logger:  logger.Named("suppress"),
		clock:   clk,
		ttl:     ttl,
		entries: make(map[Key]*Entry),
	}
}

// ShouldEmit reports whether a signal may be published. A context stays
// muted while a matching unexpired entry exists; expiry is exact, so a
// check one instant past the TTL passes.
func (s *Suppressor) ShouldEmit(signal types.Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := KeyFor(signal)
	entry, ok := s.entries[key]
	if !ok {
		return true
	}
	if s.clock.Now().After(entry.Until) {
		delete(s.entries, key)
		return true
	}
	entry.Count++
	return false
}

// RecordUserDecision applies user feedback: a rejection starts (or renews)
// the suppression window; an acceptance clears it immediately.
func (s *Suppressor) RecordUserDecision(signal types.Signal, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := KeyFor(signal)
	if accepted {
		delete(s.entries, key)
		return
	}

	until := s.clock.Now().Add(s.ttl)
	if entry, ok := s.entries[key]; ok {
		entry.Until = until
		entry.Count++
	} else {
		s.entries[key] = &Entry{Key: key, Until: until}
	}
	s.logger.Info("signal context suppressed",
		zap.String("strategy", key.Strategy),
		zap.String("regime", string(key.Regime)),
		zap.String("side", string(key.Side)),
		zap.Time("until", until))
}

// Tick drops expired entries; called on decision ticks.
func (s *Suppressor) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if now.After(entry.Until) {
			delete(s.entries, key)
		}
	}
}

// Active returns a copy of the live entries for snapshots.
func (s *Suppressor) Active() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	return out
}
