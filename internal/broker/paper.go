package broker

import (
	"context"
	"sync"

	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/atlas-desktop/adaptive-engine/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Paper simulates an exchange account: market orders fill immediately at
// the last marked price, longs and shorts net against each other, and the
// account is marked to market on every price update.
type Paper struct {
	logger *zap.Logger
	clock  clock.Clock

	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*types.Position
	lastPrice map[string]decimal.Decimal
	orders    map[string]OrderState
}

// NewPaper creates a paper broker with the given starting cash.
func NewPaper(logger *zap.Logger, clk clock.Clock, initialCash decimal.Decimal) *Paper {
	return &Paper{
		logger:    logger.Named("paper-broker"),
		clock:     clk,
		cash:      initialCash,
		positions: make(map[string]*types.Position),
		lastPrice: make(map[string]decimal.Decimal),
		orders:    make(map[string]OrderState),
	}
}

// MarkPrice records the latest traded price for valuation and fills.
func (p *Paper) MarkPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice[symbol] = price
}

// PlaceOrder fills market orders at the last marked price and limit orders
// at their limit price.
func (p *Paper) PlaceOrder(_ context.Context, req OrderRequest) (OrderAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return OrderAck{}, &Reject{Reason: "non-positive quantity"}
	}

	price := req.LimitPrice
	if req.Type == types.OrderTypeMarket {
		last, ok := p.lastPrice[req.Symbol]
		if !ok {
			return OrderAck{}, &Reject{Reason: "no market price for symbol"}
		}
		price = last
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return OrderAck{}, &Reject{Reason: "no executable price"}
	}

	if req.Side == types.SideBuy {
		cost := req.Quantity.Mul(price)
		if cost.GreaterThan(p.cash) {
			return OrderAck{}, &Reject{Reason: "insufficient buying power"}
		}
	}

	p.applyFill(req, price)

	orderID := utils.GenerateOrderID()
	p.orders[orderID] = OrderState{
		State:        types.OrderStatusFilled,
		FilledQty:    req.Quantity,
		AvgFillPrice: price,
	}

	p.logger.Info("paper fill",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("qty", req.Quantity.String()),
		zap.String("price", price.String()))

	return OrderAck{OrderID: orderID}, nil
}

// applyFill nets the fill against the existing position; callers hold the
// lock.
func (p *Paper) applyFill(req OrderRequest, price decimal.Decimal) {
	qty := req.Quantity
	if req.Side == types.SideBuy {
		p.cash = p.cash.Sub(qty.Mul(price))
	} else {
		p.cash = p.cash.Add(qty.Mul(price))
	}

	pos, ok := p.positions[req.Symbol]
	if !ok {
		side := types.PositionSideLong
		if req.Side == types.SideSell {
			side = types.PositionSideShort
		}
		p.positions[req.Symbol] = &types.Position{
			Symbol:        req.Symbol,
			Side:          side,
			Quantity:      qty,
			AvgEntryPrice: price,
			OpenedAt:      p.clock.Now(),
		}
		return
	}

	same := (pos.Side == types.PositionSideLong && req.Side == types.SideBuy) ||
		(pos.Side == types.PositionSideShort && req.Side == types.SideSell)
	if same {
		total := pos.Quantity.Add(qty)
		pos.AvgEntryPrice = pos.AvgEntryPrice.Mul(pos.Quantity).Add(price.Mul(qty)).Div(total)
		pos.Quantity = total
		return
	}

	// Opposite side reduces, closes or flips the position.
	switch {
	case qty.LessThan(pos.Quantity):
		pos.Quantity = pos.Quantity.Sub(qty)
	case qty.Equal(pos.Quantity):
		delete(p.positions, req.Symbol)
	default:
		flipped := qty.Sub(pos.Quantity)
		side := types.PositionSideLong
		if req.Side == types.SideSell {
			side = types.PositionSideShort
		}
		p.positions[req.Symbol] = &types.Position{
			Symbol:        req.Symbol,
			Side:          side,
			Quantity:      flipped,
			AvgEntryPrice: price,
			OpenedAt:      p.clock.Now(),
		}
	}
}

// GetPositions returns copies of the open positions.
func (p *Paper) GetPositions(_ context.Context) ([]types.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// GetAccount marks the account to market.
func (p *Paper) GetAccount(_ context.Context) (types.AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.cash
	positions := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		positions = append(positions, *pos)
		price, ok := p.lastPrice[pos.Symbol]
		if !ok {
			price = pos.AvgEntryPrice
		}
		value := pos.Quantity.Mul(price)
		if pos.Side == types.PositionSideLong {
			equity = equity.Add(value)
		} else {
			equity = equity.Sub(value)
		}
	}

	return types.AccountSnapshot{
		PortfolioValue: equity,
		Cash:           p.cash,
		BuyingPower:    p.cash,
		OpenPositions:  positions,
	}, nil
}

// ClosePosition flattens a symbol at the last marked price.
func (p *Paper) ClosePosition(ctx context.Context, symbol string) error {
	p.mu.Lock()
	pos, ok := p.positions[symbol]
	if !ok {
		p.mu.Unlock()
		return &Reject{Reason: "no open position"}
	}
	side := types.SideSell
	if pos.Side == types.PositionSideShort {
		side = types.SideBuy
	}
	qty := pos.Quantity
	p.mu.Unlock()

	_, err := p.PlaceOrder(ctx, OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Type:     types.OrderTypeMarket,
	})
	return err
}

// OrderStatus reports a previously placed order.
func (p *Paper) OrderStatus(_ context.Context, orderID string) (OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.orders[orderID]
	if !ok {
		return OrderState{}, &Reject{Reason: "unknown order id"}
	}
	return state, nil
}
