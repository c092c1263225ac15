// Package stream defines the inbound market-data port and its typed events,
// plus the Binance WebSocket implementation.
package stream

import (
	"context"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// Event is a typed message from the market-data stream.
type Event interface{ event() }

// BarClose carries a committed bar.
type BarClose struct {
	Bar types.Bar
}

// BarUpdate carries a partial-bar tick for the open bar.
type BarUpdate struct {
	Bar types.Bar
}

// Trade carries a single trade print, used only for latest-price tracking.
type Trade struct {
	Tick types.TradeTick
}

// Disconnect signals a lost or refused connection. Fatal means reconnect
// attempts are exhausted and the engine instance should stop.
type Disconnect struct {
	Reason string
	Fatal  bool
}

func (BarClose) event()   {}
func (BarUpdate) event()  {}
func (Trade) event()      {}
func (Disconnect) event() {}

// MarketData is the inbound stream port. Implementations must deliver
// events for each subscribed symbol in non-decreasing open-time order.
type MarketData interface {
	// Subscribe opens the stream for the symbols at the timeframe. The
	// returned channel is closed when the stream shuts down.
	Subscribe(ctx context.Context, symbols []string, timeframe types.Timeframe) (<-chan Event, error)
	// Close tears the connection down.
	Close() error
}
