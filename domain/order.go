// Package domain holds the value types shared by every execution component:
// orders, fills, positions, accounts, bars, and trading signals.
//
// All money-denominated fields (prices, quantities, cash, PnL) use
// shopspring/decimal. Binary floating point never touches an equity or price
// computation.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the closing side for this side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderLimit     OrderType = "LIMIT"
	OrderStop      OrderType = "STOP"
	OrderStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus is the lifecycle state of an order.
//
// Transitions are monotonic: PENDING -> SUBMITTED -> one of the terminal
// states. Once terminal the order is immutable.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusFilled          OrderStatus = "FILLED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether the status allows no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// Order is a single trading order and its execution state.
type Order struct {
	ID       string
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Quantity decimal.Decimal
	Status   OrderStatus

	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal

	TimeInForce TimeInForce

	CreatedAt   time.Time
	SubmittedAt *time.Time
	FilledAt    *time.Time
	CancelledAt *time.Time

	FilledQuantity decimal.Decimal
	AvgFillPrice   *decimal.Decimal
	Commission     decimal.Decimal

	Strategy   string
	Confidence float64
	// Notes carries the human-readable rejection reason for REJECTED orders.
	Notes string
}

// Reject moves the order into REJECTED state with the given reason.
// No-op if the order is already terminal.
func (o *Order) Reject(reason string) {
	if o.Status.Terminal() {
		return
	}
	o.Status = StatusRejected
	o.Notes = reason
}

// Fill is the immutable record of one execution against an order.
type Fill struct {
	ID         string
	OrderID    string
	Symbol     string
	Side       OrderSide
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	Timestamp  time.Time
}
