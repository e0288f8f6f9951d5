// Package broker defines the contract every execution venue implements:
// the in-memory simulator, the bar-driven backtest broker, and any real
// adapter. The execution engine only ever holds a Broker interface value.
package broker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/domain"
)

var (
	// ErrNotConnected is returned when an operation requires a live session.
	ErrNotConnected = errors.New("broker: not connected")
	// ErrNoPrice is returned when no price is available for a symbol.
	ErrNoPrice = errors.New("broker: no price for symbol")
	// ErrInvalidParams wraps order parameter validation failures.
	ErrInvalidParams = errors.New("broker: invalid order parameters")
)

// MarketHours describes whether a venue is currently trading a symbol.
type MarketHours struct {
	IsOpen  bool
	Session string
}

// OrderRequest carries everything needed to place one order.
type OrderRequest struct {
	Symbol   string
	Side     domain.OrderSide
	Quantity decimal.Decimal
	Type     domain.OrderType

	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal

	TimeInForce domain.TimeInForce
	Strategy    string
	Confidence  float64
}

// OrderFilter narrows Orders listings. Zero values match everything.
type OrderFilter struct {
	Symbol string
	Status domain.OrderStatus
}

// FillFilter narrows Fills listings. Zero values match everything.
type FillFilter struct {
	Symbol  string
	OrderID string
}

// Broker is the capability interface all execution flows through.
//
// Business rejections (insufficient funds, insufficient position) are not
// errors: PlaceOrder returns a REJECTED order whose Notes field carries the
// reason. Errors are reserved for validation and connectivity faults.
type Broker interface {
	Name() string

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool

	Account(ctx context.Context) (domain.Account, error)
	Positions(ctx context.Context) ([]domain.Position, error)
	Position(ctx context.Context, symbol string) (*domain.Position, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) bool
	Order(ctx context.Context, orderID string) (*domain.Order, error)
	Orders(ctx context.Context, f OrderFilter) ([]*domain.Order, error)
	Fills(ctx context.Context, f FillFilter) ([]domain.Fill, error)

	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	MarketHours(ctx context.Context, symbol string) MarketHours
}
