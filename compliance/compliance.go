// Package compliance validates trading-hours, market-calendar, and
// regulatory constraints before an order reaches a venue.
//
// The calendar is a simplified in-process model (US equities 09:30-16:00
// local with 04:00-20:00 extended sessions, forex and crypto around the
// clock). It deliberately avoids an exchange-calendar dependency: holiday
// feeds would add a network surface this engine does not need for paper
// trading and backtests.
package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Status is the market session state for a symbol.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusClosed     Status = "CLOSED"
	StatusPreMarket  Status = "PRE_MARKET"
	StatusAfterHours Status = "AFTER_HOURS"
)

// Market classifies a symbol's venue.
type Market string

const (
	MarketUSStocks Market = "US_STOCKS"
	MarketForex    Market = "FOREX"
	MarketCrypto   Market = "CRYPTO"
)

// CheckResult is one entry of a pre-trade checklist.
type CheckResult struct {
	Passed  bool
	Message string
}

// Checker evaluates compliance rules against a clock.
type Checker struct {
	log zerolog.Logger

	// Now is the clock used for market-hours checks. Overridable so
	// backtests evaluate against bar time and tests are deterministic.
	Now func() time.Time
}

// NewChecker builds a Checker using the wall clock.
func NewChecker(log zerolog.Logger) *Checker {
	return &Checker{log: log, Now: time.Now}
}

// MarketClass determines the venue for a symbol. Forex is recognised first
// ("EURUSD=X" style suffixes or bare six-letter pairs), then crypto, then
// US stocks as the default.
func MarketClass(symbol string) Market {
	s := strings.ToUpper(symbol)

	if strings.Contains(s, "=") || len(s) == 6 {
		return MarketForex
	}
	if strings.Contains(s, "BTC") || strings.Contains(s, "ETH") || strings.Contains(s, "-USD") {
		return MarketCrypto
	}
	return MarketUSStocks
}

// minuteOfDay converts a clock reading to minutes since midnight.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Session boundaries in minutes since midnight, local time.
const (
	stocksOpen    = 9*60 + 30
	stocksClose   = 16 * 60
	preMarketOpen = 4 * 60
	afterHoursEnd = 20 * 60
)

// CheckMarketHours reports whether the market is open for symbol right now.
// With allowExtended set, US-stock pre-market and after-hours sessions also
// count as open, flagged by their status.
func (c *Checker) CheckMarketHours(symbol string, allowExtended bool) (bool, Status, string) {
	now := c.Now()
	minute := minuteOfDay(now)
	weekday := now.Weekday()

	market := MarketClass(symbol)

	if market == MarketUSStocks && (weekday == time.Saturday || weekday == time.Sunday) {
		return false, StatusClosed, "Market closed: Weekend"
	}

	// Forex and crypto trade around the clock in this model.
	if market != MarketUSStocks {
		return true, StatusOpen, ""
	}

	if minute >= stocksOpen && minute <= stocksClose {
		return true, StatusOpen, ""
	}

	if allowExtended {
		if minute >= preMarketOpen && minute < stocksOpen {
			return true, StatusPreMarket, "Pre-market hours"
		}
		if minute > stocksClose && minute <= afterHoursEnd {
			return true, StatusAfterHours, "After-hours trading"
		}
	}

	return false, StatusClosed, fmt.Sprintf("Market closed (current time: %s)", now.Format("15:04:05"))
}

// ValidateOrder checks basic regulatory order constraints. Price may be nil
// for market orders.
func (c *Checker) ValidateOrder(quantity decimal.Decimal, price *decimal.Decimal) (bool, string) {
	if quantity.Sign() <= 0 {
		return false, "Quantity must be positive"
	}
	if price != nil && price.Sign() <= 0 {
		return false, "Price must be positive"
	}
	return true, ""
}

// CheckPatternDayTrader enforces the PDT rule: four or more day trades in a
// rolling five-day window require equity at or above the minimum threshold.
func (c *Checker) CheckPatternDayTrader(dayTrades int, equity, minEquity decimal.Decimal) (bool, string) {
	if dayTrades < 4 {
		return true, ""
	}
	if equity.LessThan(minEquity) {
		return false, fmt.Sprintf("PDT rule violation: %d day trades but equity $%s < $%s",
			dayTrades, equity.StringFixed(2), minEquity.StringFixed(2))
	}
	return true, fmt.Sprintf("PDT compliant with %d day trades", dayTrades)
}

// PreTradeChecklist runs the standard pre-trade checks and returns each
// result keyed by check name.
func (c *Checker) PreTradeChecklist(symbol string, equity decimal.Decimal) map[string]CheckResult {
	checklist := make(map[string]CheckResult, 3)

	open, status, msg := c.CheckMarketHours(symbol, false)
	if msg == "" {
		msg = fmt.Sprintf("Market is %s", status)
	}
	checklist["market_hours"] = CheckResult{Passed: open, Message: msg}

	weekday := c.Now().Weekday()
	isWeekday := weekday != time.Saturday && weekday != time.Sunday
	wr := CheckResult{Passed: isWeekday}
	if !isWeekday {
		wr.Message = "Weekend - markets closed"
	}
	checklist["weekday"] = wr

	er := CheckResult{Passed: equity.Sign() > 0}
	if !er.Passed {
		er.Message = "Zero or negative equity"
	}
	checklist["account_equity"] = er

	return checklist
}

// LogCheck records a compliance decision at the appropriate level.
func (c *Checker) LogCheck(symbol string, passed bool, message string) {
	ev := c.log.Info()
	if !passed {
		ev = c.log.Warn()
	}
	ev.Str("symbol", symbol).Bool("passed", passed).Str("detail", message).Msg("compliance check")
}
