package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BinanceStream consumes Binance kline and trade streams over WebSocket and
// converts them into typed events. The upstream enforces connection caps,
// so reconnects are serialized through a connecting latch, wait out a
// quiescent delay after every close, and back off exponentially.
type BinanceStream struct {
	logger *zap.Logger
	config types.StreamConfig
	clock  clock.Clock

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting atomic.Bool
	closed     atomic.Bool

	symbols   []string
	timeframe types.Timeframe
	events    chan Event
}

// NewBinanceStream creates the adapter.
func NewBinanceStream(logger *zap.Logger, config types.StreamConfig, clk clock.Clock) *BinanceStream {
	return &BinanceStream{
		logger: logger.Named("stream"),
		config: config,
		clock:  clk,
		events: make(chan Event, 1024),
	}
}

// Subscribe dials the stream and starts the read loop.
func (s *BinanceStream) Subscribe(ctx context.Context, symbols []string, timeframe types.Timeframe) (<-chan Event, error) {
	s.symbols = symbols
	s.timeframe = timeframe

	if err := s.connect(); err != nil {
		return nil, fmt.Errorf("initial connect: %w", err)
	}

	go s.readLoop(ctx)
	return s.events, nil
}

// Close tears down the connection and closes the event channel.
func (s *BinanceStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// connect dials and subscribes; callers must hold the connecting latch or
// be the initial subscriber.
func (s *BinanceStream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.config.URL, nil)
	if err != nil {
		return err
	}

	streams := make([]string, 0, len(s.symbols)*2)
	for _, symbol := range s.symbols {
		lower := strings.ToLower(symbol)
		streams = append(streams,
			fmt.Sprintf("%s@kline_%s", lower, s.timeframe),
			fmt.Sprintf("%s@trade", lower),
		)
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     1,
	}
	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("stream connected",
		zap.Strings("symbols", s.symbols),
		zap.String("timeframe", string(s.timeframe)))
	return nil
}

// readLoop pumps messages and drives reconnects until the context ends or
// the reconnect budget is exhausted.
func (s *BinanceStream) readLoop(ctx context.Context) {
	defer close(s.events)

	for {
		if ctx.Err() != nil || s.closed.Load() {
			return
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				return
			}
			s.emit(ctx, Disconnect{Reason: err.Error()})
			if !s.reconnect(ctx) {
				s.emit(ctx, Disconnect{Reason: "reconnect attempts exhausted", Fatal: true})
				return
			}
			continue
		}

		s.handleMessage(ctx, message)
	}
}

// reconnect closes the old connection, waits out the quiescent delay, and
// retries with exponential backoff. Concurrent attempts are forbidden via
// the connecting latch. Returns false when attempts are exhausted.
func (s *BinanceStream) reconnect(ctx context.Context) bool {
	if !s.connecting.CompareAndSwap(false, true) {
		return false
	}
	defer s.connecting.Store(false)

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	// The prior connection must be fully quiesced before redialing.
	if !s.sleep(ctx, s.config.QuiescentDelay) {
		return false
	}

	backoff := s.config.ReconnectBackoff
	for attempt := 1; attempt <= s.config.ReconnectMaxAttempts; attempt++ {
		if ctx.Err() != nil || s.closed.Load() {
			return false
		}

		err := s.connect()
		if err == nil {
			return true
		}
		s.logger.Warn("reconnect failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == s.config.ReconnectMaxAttempts {
			break
		}
		if !s.sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > s.config.ReconnectBackoffMax {
			backoff = s.config.ReconnectBackoffMax
		}
	}
	return false
}

func (s *BinanceStream) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func (s *BinanceStream) handleMessage(ctx context.Context, raw []byte) {
	var msg struct {
		EventType string          `json:"e"`
		Symbol    string          `json:"s"`
		TradeTime int64           `json:"T"`
		Price     string          `json:"p"`
		Quantity  string          `json:"q"`
		Kline     json.RawMessage `json:"k"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.EventType {
	case "kline":
		s.handleKline(ctx, msg.Kline)
	case "trade":
		price, err1 := decimal.NewFromString(msg.Price)
		size, err2 := decimal.NewFromString(msg.Quantity)
		if err1 != nil || err2 != nil {
			return
		}
		s.emit(ctx, Trade{Tick: types.TradeTick{
			Symbol: msg.Symbol,
			Time:   time.UnixMilli(msg.TradeTime).UTC(),
			Price:  price,
			Size:   size,
		}})
	}
}

func (s *BinanceStream) handleKline(ctx context.Context, raw json.RawMessage) {
	var k struct {
		Symbol   string `json:"s"`
		Start    int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		IsClosed bool   `json:"x"`
	}
	if err := json.Unmarshal(raw, &k); err != nil {
		return
	}

	open, err1 := decimal.NewFromString(k.Open)
	high, err2 := decimal.NewFromString(k.High)
	low, err3 := decimal.NewFromString(k.Low)
	closePrice, err4 := decimal.NewFromString(k.Close)
	volume, err5 := decimal.NewFromString(k.Volume)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return
	}

	bar := types.Bar{
		Symbol:   k.Symbol,
		OpenTime: time.UnixMilli(k.Start).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}

	if k.IsClosed {
		s.emit(ctx, BarClose{Bar: bar})
	} else {
		s.emit(ctx, BarUpdate{Bar: bar})
	}
}

func (s *BinanceStream) emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}
