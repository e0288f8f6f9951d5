// Package sizing computes position sizes from account equity and risk
// parameters. All functions are pure; they take snapshots and return share
// quantities as decimals so callers can round to lot sizes themselves.
package sizing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput reports non-positive equity, prices, or risk fractions.
var ErrInvalidInput = errors.New("sizing: invalid input")

// Method names a sizing algorithm, as spelled in configuration files.
type Method string

const (
	MethodFixedFractional Method = "fixed_fractional"
	MethodKelly           Method = "kelly"
	MethodFixedDollar     Method = "fixed_dollar"
	MethodFixedShares     Method = "fixed_shares"
)

// Valid reports whether m names a known sizing algorithm.
func (m Method) Valid() bool {
	switch m {
	case MethodFixedFractional, MethodKelly, MethodFixedDollar, MethodFixedShares:
		return true
	}
	return false
}

// FixedFractional risks riskPct of equity per trade, sizing so a move from
// entry to stop loses exactly that amount. A stop equal to the entry means
// no measurable risk per share; the result is zero with no error so callers
// can degrade to a hold.
func FixedFractional(equity decimal.Decimal, riskPct float64, entry, stop decimal.Decimal) (decimal.Decimal, error) {
	if equity.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: equity must be positive, got %s", ErrInvalidInput, equity)
	}
	if riskPct <= 0 || riskPct > 1 {
		return decimal.Zero, fmt.Errorf("%w: risk fraction must be in (0, 1], got %v", ErrInvalidInput, riskPct)
	}
	if entry.Sign() <= 0 || stop.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: prices must be positive", ErrInvalidInput)
	}

	riskPerShare := entry.Sub(stop).Abs()
	if riskPerShare.Sign() == 0 {
		return decimal.Zero, nil
	}

	riskAmount := equity.Mul(decimal.NewFromFloat(riskPct))
	return riskAmount.Div(riskPerShare).Floor(), nil
}

// KellyInputs parameterises the Kelly criterion calculation.
type KellyInputs struct {
	Equity  decimal.Decimal
	WinRate float64 // historical win probability, 0..1
	AvgWin  float64 // average winning trade, absolute
	AvgLoss float64 // average losing trade, absolute
	// Fraction scales the raw Kelly percentage down; 0 defaults to 0.25
	// (quarter Kelly).
	Fraction float64
	// EntryPrice, when set, converts the dollar allocation into a whole
	// share count.
	EntryPrice *decimal.Decimal
}

// Kelly computes a fractional-Kelly allocation. A negative edge clamps to
// zero rather than suggesting a short of the strategy.
func Kelly(in KellyInputs) (decimal.Decimal, error) {
	if in.Equity.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: equity must be positive", ErrInvalidInput)
	}
	if in.WinRate < 0 || in.WinRate > 1 {
		return decimal.Zero, fmt.Errorf("%w: win rate must be in [0, 1], got %v", ErrInvalidInput, in.WinRate)
	}
	if in.AvgWin <= 0 || in.AvgLoss <= 0 {
		return decimal.Zero, fmt.Errorf("%w: average win and loss must be positive", ErrInvalidInput)
	}

	fraction := in.Fraction
	if fraction == 0 {
		fraction = 0.25
	}
	if fraction < 0 || fraction > 1 {
		return decimal.Zero, fmt.Errorf("%w: kelly fraction must be in (0, 1], got %v", ErrInvalidInput, fraction)
	}

	b := decimal.NewFromFloat(in.AvgWin).Div(decimal.NewFromFloat(in.AvgLoss))
	p := decimal.NewFromFloat(in.WinRate)
	q := decimal.NewFromInt(1).Sub(p)

	kellyPct := p.Mul(b).Sub(q).Div(b)
	if kellyPct.Sign() < 0 {
		kellyPct = decimal.Zero
	}
	kellyPct = kellyPct.Mul(decimal.NewFromFloat(fraction))

	alloc := in.Equity.Mul(kellyPct)
	if in.EntryPrice != nil {
		if in.EntryPrice.Sign() <= 0 {
			return decimal.Zero, fmt.Errorf("%w: entry price must be positive", ErrInvalidInput)
		}
		return alloc.Div(*in.EntryPrice).Floor(), nil
	}
	return alloc, nil
}

// FixedDollar buys as many whole shares as the dollar amount affords.
func FixedDollar(amount, entry decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 || entry.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: amount and entry must be positive", ErrInvalidInput)
	}
	return amount.Div(entry).Floor(), nil
}

// FixedShares validates and passes through a constant share count.
func FixedShares(shares decimal.Decimal) (decimal.Decimal, error) {
	if shares.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: shares must be positive", ErrInvalidInput)
	}
	return shares.Floor(), nil
}

// PercentOfEquity allocates pct of equity at the entry price, in whole
// shares.
func PercentOfEquity(equity decimal.Decimal, pct float64, entry decimal.Decimal) (decimal.Decimal, error) {
	if equity.Sign() <= 0 || entry.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: equity and entry must be positive", ErrInvalidInput)
	}
	if pct <= 0 || pct > 1 {
		return decimal.Zero, fmt.Errorf("%w: percent must be in (0, 1], got %v", ErrInvalidInput, pct)
	}
	return equity.Mul(decimal.NewFromFloat(pct)).Div(entry).Floor(), nil
}

// RMultiple sizes so a stop-out loses rMultiples units of risk, where one
// unit is riskPct of equity. RMultiple(…, 1.0, …) equals FixedFractional.
func RMultiple(equity decimal.Decimal, riskPct, rMultiples float64, entry, stop decimal.Decimal) (decimal.Decimal, error) {
	if rMultiples <= 0 {
		return decimal.Zero, fmt.Errorf("%w: r-multiple must be positive, got %v", ErrInvalidInput, rMultiples)
	}
	base, err := FixedFractional(equity, riskPct, entry, stop)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Mul(decimal.NewFromFloat(rMultiples)).Floor(), nil
}

// AdjustForVolatility scales a base size by avgATR/currentATR so positions
// shrink when volatility expands and grow when it contracts. The factor is
// clamped to [0.5, 2.0] so a quiet tape can at most double the size and a
// violent one at most halve it.
func AdjustForVolatility(base decimal.Decimal, currentATR, avgATR float64) decimal.Decimal {
	if currentATR <= 0 || avgATR <= 0 {
		return base
	}

	factor := avgATR / currentATR
	factor = math.Max(0.5, math.Min(2.0, factor))

	return base.Mul(decimal.NewFromFloat(factor)).Floor()
}

// TradeRMultiple expresses a trade's PnL in units of its initial risk.
// Returns zero when the initial risk is zero.
func TradeRMultiple(entry, stop, exit decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(stop).Abs()
	if risk.Sign() == 0 {
		return decimal.Zero
	}
	return exit.Sub(entry).Div(risk)
}

// RiskRewardRatio is reward-per-share over risk-per-share for a planned
// trade. Returns zero when the stop sits on the entry.
func RiskRewardRatio(entry, stop, target decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(stop).Abs()
	if risk.Sign() == 0 {
		return decimal.Zero
	}
	return target.Sub(entry).Abs().Div(risk)
}

// PositionValue is the notional value of qty shares at price.
func PositionValue(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price)
}

// MaxPositionSize caps a proposed size so the position's notional value
// stays within maxPct of equity.
func MaxPositionSize(proposed, equity decimal.Decimal, maxPct float64, entry decimal.Decimal) decimal.Decimal {
	if entry.Sign() <= 0 || maxPct <= 0 {
		return proposed
	}
	limit := equity.Mul(decimal.NewFromFloat(maxPct)).Div(entry).Floor()
	if proposed.GreaterThan(limit) {
		return limit
	}
	return proposed
}
