package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalType is the advised action for a symbol.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// TechnicalIndicators is the indicator snapshot a signal was derived from.
// Price-denominated indicators are decimals; oscillators stay float64.
type TechnicalIndicators struct {
	Symbol       string
	CurrentPrice decimal.Decimal

	MA20 decimal.Decimal
	MA50 decimal.Decimal

	RSI float64

	BBUpper  decimal.Decimal
	BBMiddle decimal.Decimal
	BBLower  decimal.Decimal

	VolumeAvg     float64
	CurrentVolume float64

	// ATR is nil when not enough history was available to compute it.
	ATR *decimal.Decimal
}

// TradingSignal is the upstream input to the execution engine.
type TradingSignal struct {
	Symbol     string
	Type       SignalType
	Confidence float64 // 0.0 to 1.0
	Reasons    []string
	Indicators TechnicalIndicators
}

// Actionable reports whether the signal asks for an order at all.
func (s TradingSignal) Actionable() bool {
	return s.Type == SignalBuy || s.Type == SignalSell
}

// Side maps the signal polarity onto an order side. Only meaningful for
// actionable signals.
func (s TradingSignal) Side() OrderSide {
	if s.Type == SignalSell {
		return SideSell
	}
	return SideBuy
}

// Bar is one OHLCV bar of historical market data.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume float64
}
