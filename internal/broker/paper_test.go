package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newPaper(cash int64) *Paper {
	return NewPaper(zap.NewNop(), clock.NewFake(t0), decimal.NewFromInt(cash))
}

func TestMarketOrderFillsAtMarkedPrice(t *testing.T) {
	p := newPaper(10000)
	p.MarkPrice("BTCUSDT", decimal.NewFromInt(100))

	ack, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(10),
		Type:     types.OrderTypeMarket,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	state, err := p.OrderStatus(context.Background(), ack.OrderID)
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if state.State != types.OrderStatusFilled {
		t.Fatalf("state = %s; want filled", state.State)
	}
	if !state.AvgFillPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("fill price = %s; want 100", state.AvgFillPrice)
	}

	account, _ := p.GetAccount(context.Background())
	if !account.Cash.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("cash = %s; want 9000", account.Cash)
	}
	if !account.PortfolioValue.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("portfolio value = %s; want 10000", account.PortfolioValue)
	}
}

func TestRejectsWithoutPriceOrCash(t *testing.T) {
	p := newPaper(100)

	_, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: decimal.NewFromInt(1), Type: types.OrderTypeMarket,
	})
	var reject *Reject
	if !errors.As(err, &reject) {
		t.Fatalf("expected reject for unmarked symbol, got %v", err)
	}

	p.MarkPrice("BTCUSDT", decimal.NewFromInt(1000))
	_, err = p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: decimal.NewFromInt(1), Type: types.OrderTypeMarket,
	})
	if !errors.As(err, &reject) {
		t.Fatalf("expected insufficient-cash reject, got %v", err)
	}
	if reject.Reason != "insufficient buying power" {
		t.Fatalf("reason = %q", reject.Reason)
	}
}

func TestOppositeFillReducesAndCloses(t *testing.T) {
	p := newPaper(10000)
	ctx := context.Background()
	p.MarkPrice("BTCUSDT", decimal.NewFromInt(100))

	p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: decimal.NewFromInt(10), Type: types.OrderTypeMarket})

	p.MarkPrice("BTCUSDT", decimal.NewFromInt(110))
	p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: types.SideSell,
		Quantity: decimal.NewFromInt(4), Type: types.OrderTypeMarket})

	positions, _ := p.GetPositions(ctx)
	if len(positions) != 1 || !positions[0].Quantity.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("positions after partial close: %+v", positions)
	}

	p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: types.SideSell,
		Quantity: decimal.NewFromInt(6), Type: types.OrderTypeMarket})
	positions, _ = p.GetPositions(ctx)
	if len(positions) != 0 {
		t.Fatalf("positions not closed: %+v", positions)
	}

	// Bought 10 @ 100, sold 10 @ 110: cash ends 100 up.
	account, _ := p.GetAccount(ctx)
	if !account.Cash.Equal(decimal.NewFromInt(10100)) {
		t.Fatalf("cash = %s; want 10100", account.Cash)
	}
}

func TestAveragesEntryOnSameSideFills(t *testing.T) {
	p := newPaper(100000)
	ctx := context.Background()

	p.MarkPrice("BTCUSDT", decimal.NewFromInt(100))
	p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: decimal.NewFromInt(10), Type: types.OrderTypeMarket})

	p.MarkPrice("BTCUSDT", decimal.NewFromInt(120))
	p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: decimal.NewFromInt(10), Type: types.OrderTypeMarket})

	positions, _ := p.GetPositions(ctx)
	if len(positions) != 1 {
		t.Fatalf("positions = %+v", positions)
	}
	if !positions[0].AvgEntryPrice.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("avg entry = %s; want 110", positions[0].AvgEntryPrice)
	}
	if !positions[0].Quantity.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("quantity = %s; want 20", positions[0].Quantity)
	}
}

func TestClosePositionFlattens(t *testing.T) {
	p := newPaper(10000)
	ctx := context.Background()
	p.MarkPrice("BTCUSDT", decimal.NewFromInt(100))

	p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy,
		Quantity: decimal.NewFromInt(5), Type: types.OrderTypeMarket})

	if err := p.ClosePosition(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("close position: %v", err)
	}
	positions, _ := p.GetPositions(ctx)
	if len(positions) != 0 {
		t.Fatalf("position survived close: %+v", positions)
	}

	var reject *Reject
	if err := p.ClosePosition(ctx, "BTCUSDT"); !errors.As(err, &reject) {
		t.Fatalf("expected reject for flat symbol, got %v", err)
	}
}
