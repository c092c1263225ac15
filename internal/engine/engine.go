// Package engine orchestrates the adaptive decision pipeline: stream
// intake, per-symbol analysis, order execution and control, each on its own
// long-lived worker communicating through bounded channels.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/broker"
	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/internal/data"
	"github.com/atlas-desktop/adaptive-engine/internal/events"
	"github.com/atlas-desktop/adaptive-engine/internal/metrics"
	"github.com/atlas-desktop/adaptive-engine/internal/performance"
	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/internal/risk"
	"github.com/atlas-desktop/adaptive-engine/internal/strategy"
	"github.com/atlas-desktop/adaptive-engine/internal/stream"
	"github.com/atlas-desktop/adaptive-engine/internal/suppress"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/atlas-desktop/adaptive-engine/pkg/utils"
	"go.uber.org/zap"
)

// integrityWindow and integrityLimit define the escalation rule: this many
// consecutive integrity errors on one symbol within the window disable the
// symbol.
const (
	integrityWindow = 60 * time.Second
	integrityLimit  = 3
)

type engineState int

const (
	stateCreated engineState = iota
	stateRunning
	stateStopped
)

// Snapshot is a consistent view of the engine served by the analysis loop.
type Snapshot struct {
	Running        bool                    `json:"running"`
	StoppedReason  string                  `json:"stoppedReason,omitempty"`
	Symbols        map[string]SymbolStatus `json:"symbols"`
	ActiveStrategy string                  `json:"activeStrategy"`
	ErrorCounts    map[ErrorKind]int64     `json:"errorCounts"`
	Performance    types.PerformanceWindow `json:"performance"`
	Suppressions   []suppress.Entry        `json:"suppressions"`
	Pending        []types.Recommendation  `json:"pending"`
}

// SymbolStatus summarizes one tracked symbol.
type SymbolStatus struct {
	Bars      int                 `json:"bars"`
	LastClose string              `json:"lastClose,omitempty"`
	Regime    types.RegimeReading `json:"regime"`
	Disabled  bool                `json:"disabled"`
}

// inbox message types consumed by the analysis worker.
type (
	barMsg struct {
		bar    types.Bar
		closed bool
	}
	tickMsg struct {
		tick types.TradeTick
	}
	feedbackMsg struct {
		signalID string
		accepted bool
	}
	snapshotReq struct {
		reply chan Snapshot
	}
	decisionTickMsg struct{}
	fatalMsg        struct {
		kind   ErrorKind
		reason string
	}
)

// execRequest asks the execution worker to submit a plan.
type execRequest struct {
	signal types.Signal
	plan   types.OrderPlan
	rec    types.Recommendation
}

// pendingRec is a published recommendation awaiting user feedback.
type pendingRec struct {
	signal types.Signal
	plan   types.OrderPlan
	rec    types.Recommendation
}

// openPosition is the engine's own view of an entry, kept so a closing fill
// can be turned into a Trade for the performance monitor.
type openPosition struct {
	position      types.Position
	strategyName  string
	regimeAtEntry types.Regime
}

// Engine is the adaptive trading engine. A stopped engine is single-use:
// create a new instance to restart.
type Engine struct {
	logger *zap.Logger
	config types.EngineConfig
	clock  clock.Clock

	marketData stream.MarketData
	broker     broker.Broker
	paper      *broker.Paper // non-nil in paper/mock mode, for price marking

	buffers    map[string]*data.BarBuffer
	classifier *regime.Classifier
	registry   *strategy.Registry
	selector   *strategy.Selector
	monitor    *performance.Monitor
	riskMgr    *risk.Manager
	suppressor *suppress.Suppressor
	bus        *events.Bus

	inbox  chan interface{}
	execCh chan execRequest

	mu            sync.Mutex
	state         engineState
	stoppedReason string

	// positions is written by the execution worker and read by the
	// analysis worker.
	posMu     sync.Mutex
	positions map[string]*openPosition

	pending        map[string]pendingRec
	lastReading    map[string]types.RegimeReading
	disabled       map[string]bool
	integrityTimes map[string][]time.Time
	newBarSince    map[string]bool

	errors *errorCounters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps are the injected ports. Registry is optional and defaults to the
// built-in strategy set.
type Deps struct {
	MarketData stream.MarketData
	Broker     broker.Broker
	Clock      clock.Clock
	Registry   *strategy.Registry
}

// New wires an engine from its configuration and ports.
func New(logger *zap.Logger, config types.EngineConfig, deps Deps) *Engine {
	log := logger.Named("engine")

	registry := deps.Registry
	if registry == nil {
		registry = strategy.NewRegistry(log)
	}
	monitor := performance.NewMonitor(log, performance.Config{
		TradeWindow:  config.PerformanceTrades,
		EquityWindow: config.PerformanceEquity,
	})

	e := &Engine{
		logger:     log,
		config:     config,
		clock:      deps.Clock,
		marketData: deps.MarketData,
		broker:     deps.Broker,
		buffers:    make(map[string]*data.BarBuffer),
		classifier: regime.NewClassifier(log, regime.DefaultConfig(), deps.Clock),
		registry:   registry,
		selector:   strategy.NewSelector(log, strategy.DefaultSelectorConfig(), registry, deps.Clock),
		monitor:    monitor,
		riskMgr:    risk.NewManager(log, config.Risk),
		suppressor: suppress.New(log, deps.Clock, config.SuppressionTTL),
		bus:        events.NewBus(log, 1024),

		inbox:  make(chan interface{}, 4096),
		execCh: make(chan execRequest, 64),

		positions:      make(map[string]*openPosition),
		pending:        make(map[string]pendingRec),
		lastReading:    make(map[string]types.RegimeReading),
		disabled:       make(map[string]bool),
		integrityTimes: make(map[string][]time.Time),
		newBarSince:    make(map[string]bool),

		errors: newErrorCounters(),
	}

	if paper, ok := deps.Broker.(*broker.Paper); ok {
		e.paper = paper
	}

	for _, symbol := range config.Symbols {
		e.buffers[symbol] = data.NewBarBuffer(log, symbol, config.BufferCapacity)
	}

	return e
}

// Events returns the outbound event bus.
func (e *Engine) Events() *events.Bus { return e.bus }

// Start subscribes to market data and launches the workers.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state != stateCreated {
		e.mu.Unlock()
		return errors.New("engine is single-use: create a new instance to restart")
	}
	e.state = stateRunning
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	eventsCh, err := e.marketData.Subscribe(e.ctx, e.config.Symbols, e.config.Timeframe)
	if err != nil {
		e.mu.Lock()
		e.state = stateStopped
		e.stoppedReason = "subscribe failed"
		e.mu.Unlock()
		return fmt.Errorf("subscribe market data: %w", err)
	}

	// Seed the equity curve before the workers run, so the execution
	// worker remains the only writer afterwards.
	if account, err := e.broker.GetAccount(e.ctx); err == nil {
		e.monitor.RecordEquity(e.clock.Now(), account.PortfolioValue)
	}

	metrics.EngineRunning.Set(1)

	e.wg.Add(4)
	go e.streamWorker(eventsCh)
	go e.analysisWorker()
	go e.executionWorker()
	go e.tickWorker()

	e.logger.Info("engine started",
		zap.Strings("symbols", e.config.Symbols),
		zap.String("mode", string(e.config.Mode)),
		zap.String("timeframe", string(e.config.Timeframe)))
	return nil
}

// Stop cancels the workers and joins them within the timeout. After it
// returns no further recommendations are published.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if e.state != stateRunning {
		e.mu.Unlock()
		return nil
	}
	e.state = stateStopped
	if e.stoppedReason == "" {
		e.stoppedReason = "requested"
	}
	reason := e.stoppedReason
	e.mu.Unlock()

	e.marketData.Close()
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		e.logger.Warn("workers did not join before timeout; abandoning")
	}

	if e.config.CloseOnShutdown {
		e.flattenPositions()
	}

	metrics.EngineRunning.Set(0)
	e.publishStatus("", events.StatusStopped, fmt.Sprintf("engine stopped: %s", reason))
	e.bus.Stop()

	e.logger.Info("engine stopped", zap.String("reason", reason))
	return nil
}

// ApplyFeedback routes a user accept/skip decision for a published
// recommendation into the analysis loop.
func (e *Engine) ApplyFeedback(signalID string, accepted bool) {
	e.post(feedbackMsg{signalID: signalID, accepted: accepted})
}

// OnBar injects a committed bar; exposed for periodic market-data sources
// and tests.
func (e *Engine) OnBar(bar types.Bar) {
	e.post(barMsg{bar: bar, closed: true})
}

// OnTradeTick injects a trade print.
func (e *Engine) OnTradeTick(tick types.TradeTick) {
	e.post(tickMsg{tick: tick})
}

// Snapshot returns a consistent view served by the analysis worker; a
// stopped engine answers from its final state.
func (e *Engine) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	e.mu.Lock()
	running := e.state == stateRunning
	e.mu.Unlock()
	if !running {
		return e.buildSnapshot()
	}
	select {
	case e.inbox <- snapshotReq{reply: reply}:
		select {
		case snap := <-reply:
			return snap
		case <-time.After(2 * time.Second):
		}
	default:
	}
	return e.buildSnapshot()
}

func (e *Engine) post(msg interface{}) {
	select {
	case e.inbox <- msg:
	default:
		e.logger.Warn("inbox full, dropping message")
	}
}

// streamWorker converts inbound stream events into typed inbox messages.
func (e *Engine) streamWorker(eventsCh <-chan stream.Event) {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-eventsCh:
			if !ok {
				return
			}
			switch msg := ev.(type) {
			case stream.BarClose:
				e.post(barMsg{bar: msg.Bar, closed: true})
			case stream.BarUpdate:
				e.post(barMsg{bar: msg.Bar, closed: false})
			case stream.Trade:
				e.post(tickMsg{tick: msg.Tick})
			case stream.Disconnect:
				if msg.Fatal {
					e.errors.inc(ErrConnectionLimit)
					metrics.ErrorsTotal.WithLabelValues(string(ErrConnectionLimit)).Inc()
					e.post(fatalMsg{kind: ErrConnectionLimit, reason: msg.Reason})
				} else {
					e.errors.inc(ErrTransientStream)
					metrics.ErrorsTotal.WithLabelValues(string(ErrTransientStream)).Inc()
					e.publishError(ErrTransientStream, "", msg.Reason)
				}
			}
		}
	}
}

// tickWorker posts advisory decision ticks for liveness of status
// reporting.
func (e *Engine) tickWorker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.clock.After(e.config.DecisionTick):
			e.post(decisionTickMsg{})
		}
	}
}

// analysisWorker owns the buffers and runs the decision pipeline; all
// buffer mutation happens here.
func (e *Engine) analysisWorker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case raw := <-e.inbox:
			switch msg := raw.(type) {
			case barMsg:
				e.handleBar(msg)
			case tickMsg:
				e.handleTick(msg.tick)
			case feedbackMsg:
				e.handleFeedback(msg)
			case decisionTickMsg:
				e.handleDecisionTick()
			case snapshotReq:
				msg.reply <- e.buildSnapshot()
			case fatalMsg:
				e.handleFatal(msg)
			}
		}
	}
}

func (e *Engine) handleBar(msg barMsg) {
	symbol := msg.bar.Symbol
	if e.disabled[symbol] {
		return
	}
	buffer, ok := e.buffers[symbol]
	if !ok {
		return
	}

	if err := data.ValidateBar(msg.bar); err != nil {
		e.recordIntegrityError(symbol, err.Error())
		return
	}

	result := buffer.Apply(msg.bar)
	if result == data.RejectedOutOfOrder {
		e.recordIntegrityError(symbol, "out-of-order bar")
		return
	}
	e.integrityTimes[symbol] = nil

	if e.paper != nil {
		e.paper.MarkPrice(symbol, msg.bar.Close)
	}

	if msg.closed && result == data.Appended {
		metrics.BarsProcessed.WithLabelValues(symbol).Inc()
		e.newBarSince[symbol] = true
		e.decide(symbol)
	}
}

func (e *Engine) handleTick(tick types.TradeTick) {
	if e.paper != nil {
		e.paper.MarkPrice(tick.Symbol, tick.Price)
	}
}

// handleDecisionTick reports liveness. Ticks are advisory only: symbols
// without a new bar since the last decision only re-emit status.
func (e *Engine) handleDecisionTick() {
	e.suppressor.Tick(e.clock.Now())
	for _, symbol := range e.config.Symbols {
		if e.disabled[symbol] {
			continue
		}
		buffer := e.buffers[symbol]
		if buffer.Len() < e.config.MinimumBars {
			remaining := e.config.MinimumBars - buffer.Len()
			e.publishStatus(symbol, events.StatusInitializing,
				fmt.Sprintf("collecting bars: %d remaining", remaining))
			continue
		}
		if !e.newBarSince[symbol] {
			e.publishStatus(symbol, events.StatusScanning, "waiting for new bars")
		}
	}
}

// decide runs the pipeline for one symbol at a decision point.
func (e *Engine) decide(symbol string) {
	started := time.Now()
	defer func() {
		metrics.DecisionCycleDuration.Observe(time.Since(started).Seconds())
	}()
	e.newBarSince[symbol] = false

	buffer := e.buffers[symbol]
	if buffer.Len() < e.config.MinimumBars {
		remaining := e.config.MinimumBars - buffer.Len()
		e.publishStatus(symbol, events.StatusInitializing,
			fmt.Sprintf("collecting bars: %d remaining", remaining))
		return
	}

	window := buffer.Snapshot(0)
	reading := e.classifier.Classify(window)
	e.lastReading[symbol] = reading
	metrics.RegimeConfidence.WithLabelValues(symbol, string(types.RegimeTrend)).Set(reading.ConfTrend)
	metrics.RegimeConfidence.WithLabelValues(symbol, string(types.RegimeSideways)).Set(reading.ConfSideways)
	metrics.RegimeConfidence.WithLabelValues(symbol, string(types.RegimeVolatile)).Set(reading.ConfVolatile)

	active, switchEvent := e.selector.Select(reading, e.monitor)
	if switchEvent != nil {
		metrics.StrategySwitchesTotal.WithLabelValues(switchEvent.Reason).Inc()
		e.bus.Publish(events.SwitchEvent{
			BaseEvent: events.BaseEvent{Type: events.EventTypeSwitch, Timestamp: e.clock.Now()},
			Switch:    *switchEvent,
		})
	}

	side := active.GenerateSignal(window, e.positionFor(symbol))
	if side == types.SideHold {
		e.publishStatus(symbol, events.StatusScanning,
			fmt.Sprintf("%s holds in %s regime", active.Name(), reading.Regime))
		return
	}

	signal := types.Signal{
		ID:             utils.GenerateSignalID(),
		Symbol:         symbol,
		Side:           side,
		ReferencePrice: window.Last().Close,
		StrategyName:   active.Name(),
		Regime:         reading.Regime,
		GeneratedAt:    e.clock.Now(),
	}

	if !e.suppressor.ShouldEmit(signal) {
		metrics.SuppressedTotal.WithLabelValues(symbol).Inc()
		e.publishStatus(symbol, events.StatusSignalSuppressed,
			fmt.Sprintf("%s %s suppressed after user skip", active.Name(), side))
		return
	}

	account, err := e.broker.GetAccount(e.ctx)
	if err != nil {
		e.errors.inc(ErrBrokerReject)
		metrics.ErrorsTotal.WithLabelValues(string(ErrBrokerReject)).Inc()
		e.publishError(ErrBrokerReject, symbol, fmt.Sprintf("account query failed: %v", err))
		return
	}

	atr := 0.0
	if row := buffer.Indicators(); row.ATR14.OK {
		atr = row.ATR14.V
	}
	stop := e.riskMgr.DeriveStopLoss(signal.ReferencePrice, atr, side)
	plan, reject := e.riskMgr.SizeAndValidate(signal, account, stop, atr, reading)
	if reject != nil {
		e.errors.inc(ErrRiskReject)
		metrics.ErrorsTotal.WithLabelValues(string(ErrRiskReject)).Inc()
		e.publishError(ErrRiskReject, symbol, reject.Reason)
		e.publishStatus(symbol, events.StatusScanning,
			fmt.Sprintf("no trade: %s", reject.Reason))
		return
	}

	rec := types.Recommendation{
		SignalID:         signal.ID,
		Symbol:           symbol,
		Side:             side,
		ReferencePrice:   signal.ReferencePrice,
		StrategyName:     active.Name(),
		Regime:           reading.Regime,
		RegimeConfidence: reading.Confidence,
		RiskScore:        plan.RiskScore,
		RiskLevel:        plan.RiskLevel,
		SuggestedQty:     plan.Quantity,
		StopLoss:         plan.StopLoss,
		TakeProfit:       plan.TakeProfit,
		GeneratedAt:      signal.GeneratedAt,
		Rationale:        rationale(signal, reading, *plan),
	}
	e.pending[signal.ID] = pendingRec{signal: signal, plan: *plan, rec: rec}

	metrics.RecommendationsTotal.WithLabelValues(symbol, string(side)).Inc()
	e.bus.Publish(events.RecommendationEvent{
		BaseEvent:      events.BaseEvent{Type: events.EventTypeRecommendation, Timestamp: e.clock.Now()},
		Recommendation: rec,
	})
	e.publishStatus(symbol, events.StatusSignalEmitted,
		fmt.Sprintf("%s recommends %s at %s", active.Name(), side, signal.ReferencePrice))

	if e.config.AutoExecute {
		e.dispatchExecution(e.pending[signal.ID])
		delete(e.pending, signal.ID)
	}
}

func (e *Engine) handleFeedback(msg feedbackMsg) {
	entry, ok := e.pending[msg.signalID]
	if !ok {
		e.logger.Warn("feedback for unknown signal", zap.String("signalId", msg.signalID))
		return
	}
	delete(e.pending, msg.signalID)

	e.suppressor.RecordUserDecision(entry.signal, msg.accepted)
	if msg.accepted {
		e.dispatchExecution(entry)
	}
}

func (e *Engine) dispatchExecution(entry pendingRec) {
	select {
	case e.execCh <- execRequest{signal: entry.signal, plan: entry.plan, rec: entry.rec}:
	default:
		e.logger.Warn("execution queue full, dropping plan",
			zap.String("symbol", entry.plan.Symbol))
	}
}

func (e *Engine) handleFatal(msg fatalMsg) {
	e.mu.Lock()
	e.stoppedReason = string(msg.kind)
	e.mu.Unlock()
	e.publishError(msg.kind, "", msg.reason)

	// Stop must run off the analysis goroutine so the workers can join.
	go e.Stop(5 * time.Second)
}

// recordIntegrityError counts the error and disables the symbol after the
// escalation threshold.
func (e *Engine) recordIntegrityError(symbol, reason string) {
	e.errors.inc(ErrDataIntegrity)
	metrics.ErrorsTotal.WithLabelValues(string(ErrDataIntegrity)).Inc()
	e.publishError(ErrDataIntegrity, symbol, reason)

	now := e.clock.Now()
	times := append(e.integrityTimes[symbol], now)
	// Keep only errors inside the escalation window.
	kept := times[:0]
	for _, t := range times {
		if now.Sub(t) <= integrityWindow {
			kept = append(kept, t)
		}
	}
	e.integrityTimes[symbol] = kept

	if len(kept) >= integrityLimit {
		e.disabled[symbol] = true
		e.errors.inc(ErrFatal)
		metrics.ErrorsTotal.WithLabelValues(string(ErrFatal)).Inc()
		e.publishError(ErrFatal, symbol, "symbol disabled after repeated integrity errors")
		e.logger.Error("symbol disabled",
			zap.String("symbol", symbol),
			zap.Int("errors", len(kept)))
	}
}

// executionWorker serializes order submission per symbol: one plan at a
// time, with same-side plans for a symbol coalesced to the latest while an
// earlier one is in flight.
func (e *Engine) executionWorker() {
	defer e.wg.Done()

	queued := make(map[string][]execRequest)

	for {
		select {
		case <-e.ctx.Done():
			return
		case req := <-e.execCh:
			e.enqueue(queued, req)
			// Drain whatever else arrived before talking to the
			// broker, so coalescing sees the full backlog.
			for drained := true; drained; {
				select {
				case next := <-e.execCh:
					e.enqueue(queued, next)
				default:
					drained = false
				}
			}
			for symbol, reqs := range queued {
				for _, r := range reqs {
					e.execute(r)
				}
				delete(queued, symbol)
			}
		}
	}
}

// enqueue coalesces same-side plans per symbol (latest wins) and queues
// opposing sides.
func (e *Engine) enqueue(queued map[string][]execRequest, req execRequest) {
	reqs := queued[req.plan.Symbol]
	if n := len(reqs); n > 0 && reqs[n-1].plan.Side == req.plan.Side {
		reqs[n-1] = req
	} else {
		reqs = append(reqs, req)
	}
	queued[req.plan.Symbol] = reqs
}

// execute submits one plan and records the resulting position or trade.
func (e *Engine) execute(req execRequest) {
	ack, err := e.broker.PlaceOrder(e.ctx, broker.OrderRequest{
		ClientOrderID: req.signal.ID,
		Symbol:        req.plan.Symbol,
		Side:          req.plan.Side,
		Quantity:      req.plan.Quantity,
		Type:          types.OrderTypeMarket,
	})
	if err != nil {
		var reject *broker.Reject
		if errors.As(err, &reject) {
			e.errors.inc(ErrBrokerReject)
			metrics.ErrorsTotal.WithLabelValues(string(ErrBrokerReject)).Inc()
			rec := req.rec
			rec.RejectedByBroker = true
			rec.RejectReason = reject.Reason
			e.bus.Publish(events.RecommendationEvent{
				BaseEvent:      events.BaseEvent{Type: events.EventTypeRecommendation, Timestamp: e.clock.Now()},
				Recommendation: rec,
			})
			e.publishStatus(req.plan.Symbol, events.StatusOrderRejected, reject.Reason)
			return
		}
		e.errors.inc(ErrFatal)
		metrics.ErrorsTotal.WithLabelValues(string(ErrFatal)).Inc()
		e.publishError(ErrFatal, req.plan.Symbol, fmt.Sprintf("order submit failed: %v", err))
		return
	}

	state, err := e.broker.OrderStatus(e.ctx, ack.OrderID)
	if err != nil || state.State != types.OrderStatusFilled {
		e.publishStatus(req.plan.Symbol, events.StatusOrderAccepted,
			fmt.Sprintf("order %s accepted, awaiting fill", ack.OrderID))
		return
	}

	e.applyFill(req, state)
	e.publishStatus(req.plan.Symbol, events.StatusOrderAccepted,
		fmt.Sprintf("order %s filled at %s", ack.OrderID, state.AvgFillPrice))

	if account, err := e.broker.GetAccount(e.ctx); err == nil {
		e.monitor.RecordEquity(e.clock.Now(), account.PortfolioValue)
		metrics.PortfolioValue.Set(account.PortfolioValue.InexactFloat64())
		window := e.monitor.Metrics(0)
		metrics.Sharpe.Set(window.Sharpe)
		metrics.MaxDrawdown.Set(window.MaxDrawdown)
	}
}

// applyFill updates the engine's position view and writes a Trade when the
// fill closes an entry.
func (e *Engine) applyFill(req execRequest, state broker.OrderState) {
	e.posMu.Lock()
	defer e.posMu.Unlock()

	symbol := req.plan.Symbol
	existing := e.positions[symbol]

	opens := existing == nil ||
		(existing.position.Side == types.PositionSideLong && req.plan.Side == types.SideBuy) ||
		(existing.position.Side == types.PositionSideShort && req.plan.Side == types.SideSell)

	if opens {
		if existing == nil {
			side := types.PositionSideLong
			if req.plan.Side == types.SideSell {
				side = types.PositionSideShort
			}
			e.positions[symbol] = &openPosition{
				position: types.Position{
					Symbol:        symbol,
					Side:          side,
					Quantity:      state.FilledQty,
					AvgEntryPrice: state.AvgFillPrice,
					OpenedAt:      e.clock.Now(),
				},
				strategyName:  req.signal.StrategyName,
				regimeAtEntry: req.signal.Regime,
			}
		} else {
			pos := &existing.position
			total := pos.Quantity.Add(state.FilledQty)
			pos.AvgEntryPrice = pos.AvgEntryPrice.Mul(pos.Quantity).
				Add(state.AvgFillPrice.Mul(state.FilledQty)).Div(total)
			pos.Quantity = total
		}
		return
	}

	// Closing fill: realize PnL against the entry.
	pos := existing.position
	closedQty := utils.MinDecimal(pos.Quantity, state.FilledQty)
	pnl := state.AvgFillPrice.Sub(pos.AvgEntryPrice).Mul(closedQty)
	if pos.Side == types.PositionSideShort {
		pnl = pnl.Neg()
	}

	capital := e.config.Risk.Capital
	trade := types.Trade{
		ID:            utils.GenerateTradeID(),
		Symbol:        symbol,
		Side:          pos.Side,
		Quantity:      closedQty,
		EntryPrice:    pos.AvgEntryPrice,
		ExitPrice:     state.AvgFillPrice,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      e.clock.Now(),
		RealizedPnL:   pnl,
		CapitalAtOpen: capital,
		StrategyName:  existing.strategyName,
		RegimeAtEntry: existing.regimeAtEntry,
	}
	e.monitor.RecordTrade(trade)

	remaining := pos.Quantity.Sub(closedQty)
	if remaining.IsPositive() {
		existing.position.Quantity = remaining
	} else {
		delete(e.positions, symbol)
	}
}

func (e *Engine) positionFor(symbol string) *types.Position {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	if entry, ok := e.positions[symbol]; ok {
		pos := entry.position
		return &pos
	}
	return nil
}

// flattenPositions closes everything at shutdown when configured.
func (e *Engine) flattenPositions() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		e.logger.Warn("could not list positions for shutdown close", zap.Error(err))
		return
	}
	for _, pos := range positions {
		if err := e.broker.ClosePosition(ctx, pos.Symbol); err != nil {
			e.logger.Warn("close position failed",
				zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}
}

func (e *Engine) buildSnapshot() Snapshot {
	e.mu.Lock()
	running := e.state == stateRunning
	reason := e.stoppedReason
	e.mu.Unlock()

	snap := Snapshot{
		Running:        running,
		StoppedReason:  reason,
		Symbols:        make(map[string]SymbolStatus, len(e.buffers)),
		ActiveStrategy: e.selector.Active(),
		ErrorCounts:    e.errors.snapshot(),
		Performance:    e.monitor.Metrics(0),
		Suppressions:   e.suppressor.Active(),
	}
	for symbol, buffer := range e.buffers {
		status := SymbolStatus{
			Bars:     buffer.Len(),
			Regime:   e.lastReading[symbol],
			Disabled: e.disabled[symbol],
		}
		if price, ok := buffer.LatestPrice(); ok {
			status.LastClose = price.String()
		}
		snap.Symbols[symbol] = status
	}
	for _, entry := range e.pending {
		snap.Pending = append(snap.Pending, entry.rec)
	}
	return snap
}

func (e *Engine) publishStatus(symbol, code, message string) {
	e.bus.Publish(events.StatusEvent{
		BaseEvent: events.BaseEvent{Type: events.EventTypeStatus, Timestamp: e.clock.Now()},
		Symbol:    symbol,
		Code:      code,
		Message:   message,
	})
}

func (e *Engine) publishError(kind ErrorKind, symbol, message string) {
	e.bus.Publish(events.ErrorEvent{
		BaseEvent: events.BaseEvent{Type: events.EventTypeError, Timestamp: e.clock.Now()},
		Kind:      string(kind),
		Symbol:    symbol,
		Message:   message,
	})
}

// rationale composes the human-readable explanation from structured facts.
func rationale(signal types.Signal, reading types.RegimeReading, plan types.OrderPlan) string {
	return fmt.Sprintf(
		"%s classified the market as %s (%.0f%% confidence) and proposes a %s of %s at %s; stop %s, target %s, %s risk (%.0f/100)",
		signal.StrategyName,
		reading.Regime,
		reading.Confidence*100,
		signal.Side,
		plan.Quantity,
		plan.EntryPrice,
		plan.StopLoss,
		plan.TakeProfit,
		plan.RiskLevel,
		plan.RiskScore,
	)
}
