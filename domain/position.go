package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a signed holding in one symbol. Positive quantity is long,
// negative is short. A position whose quantity reaches exactly zero is
// closed and must not appear in open-position listings.
type Position struct {
	Symbol        string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal

	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal

	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal

	OpenedAt time.Time
	Strategy string
}

// UpdatePrice marks the position at price and recomputes unrealized PnL.
func (p *Position) UpdatePrice(price decimal.Decimal) {
	p.CurrentPrice = price
	if p.Quantity.Sign() >= 0 {
		p.UnrealizedPnL = price.Sub(p.AvgEntryPrice).Mul(p.Quantity)
	} else {
		p.UnrealizedPnL = p.AvgEntryPrice.Sub(price).Mul(p.Quantity.Abs())
	}
}

// MarketValue is quantity times the last marked price (signed for shorts).
func (p *Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.CurrentPrice)
}

// Closed reports whether the position has returned to flat.
func (p *Position) Closed() bool {
	return p.Quantity.IsZero()
}

// Long reports whether the position is net long.
func (p *Position) Long() bool {
	return p.Quantity.Sign() > 0
}
