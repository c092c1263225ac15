// Package broker defines the outbound order port and the paper
// implementation used by the paper and mock engine modes. Live exchange
// adapters plug in behind the same interface.
package broker

import (
	"context"
	"fmt"

	"github.com/atlas-desktop/adaptive-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// OrderRequest is the submit payload.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          types.Side
	Quantity      decimal.Decimal
	Type          types.OrderType
	LimitPrice    decimal.Decimal
}

// OrderAck acknowledges an accepted order.
type OrderAck struct {
	OrderID string
}

// OrderState reports fill progress.
type OrderState struct {
	State        types.OrderStatus
	FilledQty    decimal.Decimal
	AvgFillPrice decimal.Decimal
}

// Reject is a broker-side validation or rate-limit failure. It is
// non-fatal: the recommendation is marked rejected and the engine moves on.
type Reject struct {
	Reason string
}

func (r *Reject) Error() string { return fmt.Sprintf("broker reject: %s", r.Reason) }

// Broker is the outbound order port. Implementations are expected to be
// idempotent on ClientOrderID within a short retry window; when they are
// not, callers must not retry submits.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	GetPositions(ctx context.Context) ([]types.Position, error)
	GetAccount(ctx context.Context) (types.AccountSnapshot, error)
	ClosePosition(ctx context.Context, symbol string) error
	OrderStatus(ctx context.Context, orderID string) (OrderState, error)
}
