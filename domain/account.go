package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a snapshot of the trading account's financial state.
//
// Invariants maintained by the owning broker:
//   - Equity == Cash + sum of open position market values at every read.
//   - PeakEquity is monotonically non-decreasing.
//   - MaxDrawdown is the high-water-mark ratio (peak-equity)/peak and is
//     monotonically non-decreasing within a session.
type Account struct {
	Equity          decimal.Decimal
	Cash            decimal.Decimal
	MarginUsed      decimal.Decimal
	MarginAvailable decimal.Decimal

	TotalPnL decimal.Decimal
	DailyPnL decimal.Decimal

	MaxDrawdown decimal.Decimal
	PeakEquity  decimal.Decimal

	UpdatedAt time.Time
}

// NewAccount creates an account funded with cash. Peak equity starts at the
// initial equity so drawdown is measured from the first deposit.
func NewAccount(cash decimal.Decimal, at time.Time) Account {
	return Account{
		Equity:          cash,
		Cash:            cash,
		MarginAvailable: cash,
		PeakEquity:      cash,
		UpdatedAt:       at,
	}
}

// UpdateEquity records a new equity reading, advancing the peak and the
// high-water-mark drawdown where applicable.
func (a *Account) UpdateEquity(equity decimal.Decimal, at time.Time) {
	a.Equity = equity

	if equity.GreaterThan(a.PeakEquity) {
		a.PeakEquity = equity
	}

	if a.PeakEquity.Sign() > 0 {
		dd := a.PeakEquity.Sub(equity).Div(a.PeakEquity)
		if dd.GreaterThan(a.MaxDrawdown) {
			a.MaxDrawdown = dd
		}
	}

	a.MarginAvailable = a.Cash.Sub(a.MarginUsed)
	a.UpdatedAt = at
}
