package stream

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/adaptive-engine/internal/clock"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newAdapter() *BinanceStream {
	return NewBinanceStream(zap.NewNop(), types.DefaultStreamConfig(), clock.NewFake(t0))
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event")
		return nil
	}
}

func TestKlineMessageBecomesBarUpdateOrClose(t *testing.T) {
	s := newAdapter()
	ctx := context.Background()

	open := `{"e":"kline","s":"BTCUSDT","k":{"s":"BTCUSDT","t":1717200000000,` +
		`"o":"100.0","h":"101.0","l":"99.5","c":"100.5","v":"1200","x":false}}`
	s.handleMessage(ctx, []byte(open))

	e := recv(t, s.events)
	update, ok := e.(BarUpdate)
	if !ok {
		t.Fatalf("event = %T; want BarUpdate", e)
	}
	if update.Bar.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %s", update.Bar.Symbol)
	}
	if update.Bar.Close.String() != "100.5" {
		t.Fatalf("close = %s; want 100.5", update.Bar.Close)
	}
	if !update.Bar.OpenTime.Equal(time.UnixMilli(1717200000000).UTC()) {
		t.Fatalf("open time = %s", update.Bar.OpenTime)
	}

	closed := `{"e":"kline","s":"BTCUSDT","k":{"s":"BTCUSDT","t":1717200000000,` +
		`"o":"100.0","h":"101.0","l":"99.5","c":"100.9","v":"1500","x":true}}`
	s.handleMessage(ctx, []byte(closed))

	e = recv(t, s.events)
	if _, ok := e.(BarClose); !ok {
		t.Fatalf("event = %T; want BarClose", e)
	}
}

func TestTradeMessageBecomesTick(t *testing.T) {
	s := newAdapter()
	raw := `{"e":"trade","s":"BTCUSDT","T":1717200001000,"p":"100.25","q":"0.5"}`
	s.handleMessage(context.Background(), []byte(raw))

	e := recv(t, s.events)
	trade, ok := e.(Trade)
	if !ok {
		t.Fatalf("event = %T; want Trade", e)
	}
	if trade.Tick.Price.String() != "100.25" || trade.Tick.Size.String() != "0.5" {
		t.Fatalf("tick = %+v", trade.Tick)
	}
}

func TestMalformedMessagesAreIgnored(t *testing.T) {
	s := newAdapter()
	ctx := context.Background()

	s.handleMessage(ctx, []byte(`not json`))
	s.handleMessage(ctx, []byte(`{"e":"kline","k":{"o":"garbage"}}`))
	s.handleMessage(ctx, []byte(`{"e":"trade","p":"NaNish","q":"x"}`))

	select {
	case e := <-s.events:
		t.Fatalf("malformed input produced event %T", e)
	case <-time.After(100 * time.Millisecond):
	}
}
