package broker

import (
	"context"
	"fmt"

	"github.com/tradewheel/engine/domain"
)

// ValidateOrderParams checks structural order validity before a request
// reaches a venue. Returned errors wrap ErrInvalidParams.
func ValidateOrderParams(req OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidParams)
	}
	if req.Quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidParams, req.Quantity)
	}

	switch req.Side {
	case domain.SideBuy, domain.SideSell:
	default:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidParams, req.Side)
	}

	switch req.Type {
	case domain.OrderLimit:
		if req.LimitPrice == nil || req.LimitPrice.Sign() <= 0 {
			return fmt.Errorf("%w: limit order requires a positive limit price", ErrInvalidParams)
		}
	case domain.OrderStop:
		if req.StopPrice == nil || req.StopPrice.Sign() <= 0 {
			return fmt.Errorf("%w: stop order requires a positive stop price", ErrInvalidParams)
		}
	case domain.OrderStopLimit:
		if req.LimitPrice == nil || req.LimitPrice.Sign() <= 0 ||
			req.StopPrice == nil || req.StopPrice.Sign() <= 0 {
			return fmt.Errorf("%w: stop-limit order requires positive stop and limit prices", ErrInvalidParams)
		}
	case domain.OrderMarket:
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidParams, req.Type)
	}

	return nil
}

// ClosePosition flattens an open position by submitting an offsetting order
// for the full open quantity. Returns nil, nil when no position is open.
func ClosePosition(ctx context.Context, b Broker, symbol string, typ domain.OrderType) (*domain.Order, error) {
	pos, err := b.Position(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.Closed() {
		return nil, nil
	}

	side := domain.SideSell
	if !pos.Long() {
		side = domain.SideBuy
	}

	return b.PlaceOrder(ctx, OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Quantity: pos.Quantity.Abs(),
		Type:     typ,
		Strategy: pos.Strategy,
	})
}
