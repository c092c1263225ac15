// Package events provides the outbound event bus: the engine publishes
// status, recommendation and switch events, and any number of subscribers
// (the API WebSocket hub, tests, loggers) consume them without being able
// to block the decision pipeline.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"go.uber.org/zap"
)

// EventType defines the category of an outbound event.
type EventType string

const (
	EventTypeStatus         EventType = "status"
	EventTypeRecommendation EventType = "recommendation"
	EventTypeSwitch         EventType = "switch"
	EventTypeError          EventType = "error"
)

// Event is the base interface for outbound events.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) GetType() EventType      { return e.Type }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// Status codes published on StatusEvent.
const (
	StatusInitializing     = "initializing"
	StatusScanning         = "scanning"
	StatusSignalSuppressed = "signal_suppressed"
	StatusSignalEmitted    = "signal_emitted"
	StatusOrderAccepted    = "order_accepted"
	StatusOrderRejected    = "order_rejected"
	StatusStopped          = "stopped"
)

// StatusEvent is a human-readable engine state update with a machine code.
type StatusEvent struct {
	BaseEvent
	Symbol  string `json:"symbol,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RecommendationEvent carries a published recommendation.
type RecommendationEvent struct {
	BaseEvent
	Recommendation types.Recommendation `json:"recommendation"`
}

// SwitchEvent carries a strategy switch.
type SwitchEvent struct {
	BaseEvent
	Switch types.SwitchEvent `json:"switch"`
}

// ErrorEvent carries a classified, locally recovered error.
type ErrorEvent struct {
	BaseEvent
	Kind    string `json:"kind"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message"`
}

// Handler processes events; it must not block for long.
type Handler func(event Event)

// Stats tracks bus throughput.
type Stats struct {
	Published int64 `json:"published"`
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
}

// Bus routes events from the engine to subscribers through a bounded
// channel; when the channel is full the event is dropped and counted
// rather than blocking the publisher.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	all         []Handler

	eventChan chan Event

	published atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBus creates a bus; bufferSize <= 0 uses 1024.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		logger:      logger.Named("events"),
		subscribers: make(map[EventType][]Handler),
		eventChan:   make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	b.wg.Add(1)
	go b.worker()
	return b
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish enqueues an event; it never blocks.
func (b *Bus) Publish(event Event) {
	b.published.Add(1)
	select {
	case b.eventChan <- event:
	default:
		b.dropped.Add(1)
	}
}

// Stop drains the bus and stops the worker.
func (b *Bus) Stop() {
	b.cancel()
	b.wg.Wait()
}

// GetStats returns throughput counters.
func (b *Bus) GetStats() Stats {
	return Stats{
		Published: b.published.Load(),
		Processed: b.processed.Load(),
		Dropped:   b.dropped.Load(),
	}
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			// Drain what is already queued so Stop does not lose
			// late status events.
			for {
				select {
				case event := <-b.eventChan:
					b.dispatch(event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			b.dispatch(event)
		}
	}
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.GetType()]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	b.processed.Add(1)
}
