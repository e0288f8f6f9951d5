package compliance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewheel/engine/pkg/logger"
)

// clockAt pins the checker's clock to a fixed instant.
func clockAt(c *Checker, t time.Time) {
	c.Now = func() time.Time { return t }
}

func TestMarketClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol string
		want   Market
	}{
		{"AAPL", MarketUSStocks},
		{"MSFT", MarketUSStocks},
		{"EURUSD", MarketForex},
		{"EURUSD=X", MarketForex},
		{"eurusd", MarketForex},
		{"BTC-USD", MarketCrypto},
		{"ETHUSDT", MarketCrypto}, // ETH match wins over stock default
		{"SOL-USD", MarketCrypto},
		// Six letters classifies as forex before the crypto check runs.
		{"BTCUSD", MarketForex},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.symbol, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MarketClass(tc.symbol))
		})
	}
}

func TestCheckMarketHoursStocks(t *testing.T) {
	t.Parallel()

	// Monday 2026-08-24.
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		at         time.Time
		extended   bool
		wantOpen   bool
		wantStatus Status
	}{
		{"regular session", day.Add(10 * time.Hour), false, true, StatusOpen},
		{"opening bell", day.Add(9*time.Hour + 30*time.Minute), false, true, StatusOpen},
		{"closing bell", day.Add(16 * time.Hour), false, true, StatusOpen},
		{"pre-market without extended", day.Add(8 * time.Hour), false, false, StatusClosed},
		{"pre-market with extended", day.Add(8 * time.Hour), true, true, StatusPreMarket},
		{"after-hours with extended", day.Add(18 * time.Hour), true, true, StatusAfterHours},
		{"overnight even with extended", day.Add(2 * time.Hour), true, false, StatusClosed},
		{"saturday closed", day.AddDate(0, 0, 5).Add(10 * time.Hour), true, false, StatusClosed},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker(logger.Nop())
			clockAt(c, tc.at)

			open, status, _ := c.CheckMarketHours("AAPL", tc.extended)
			assert.Equal(t, tc.wantOpen, open)
			assert.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestCheckMarketHoursNonStock(t *testing.T) {
	t.Parallel()

	c := NewChecker(logger.Nop())
	// Sunday 03:00: stocks closed, crypto and forex open.
	clockAt(c, time.Date(2026, 8, 23, 3, 0, 0, 0, time.UTC))

	open, status, _ := c.CheckMarketHours("BTC-USD", false)
	assert.True(t, open)
	assert.Equal(t, StatusOpen, status)

	open, _, _ = c.CheckMarketHours("EURUSD=X", false)
	assert.True(t, open)

	open, _, msg := c.CheckMarketHours("AAPL", false)
	assert.False(t, open)
	assert.Equal(t, "Market closed: Weekend", msg)
}

func TestValidateOrder(t *testing.T) {
	t.Parallel()

	c := NewChecker(logger.Nop())

	ok, _ := c.ValidateOrder(decimal.NewFromInt(10), nil)
	assert.True(t, ok)

	ok, msg := c.ValidateOrder(decimal.Zero, nil)
	assert.False(t, ok)
	assert.Equal(t, "Quantity must be positive", msg)

	bad := decimal.NewFromInt(-5)
	ok, msg = c.ValidateOrder(decimal.NewFromInt(10), &bad)
	assert.False(t, ok)
	assert.Equal(t, "Price must be positive", msg)
}

func TestCheckPatternDayTrader(t *testing.T) {
	t.Parallel()

	c := NewChecker(logger.Nop())
	min := decimal.NewFromInt(25000)

	ok, msg := c.CheckPatternDayTrader(3, decimal.NewFromInt(1000), min)
	assert.True(t, ok)
	assert.Empty(t, msg)

	ok, msg = c.CheckPatternDayTrader(4, decimal.NewFromInt(10000), min)
	assert.False(t, ok)
	assert.Contains(t, msg, "PDT rule violation")

	// Equity exactly at the minimum satisfies the rule.
	ok, msg = c.CheckPatternDayTrader(4, min, min)
	assert.True(t, ok)
	assert.Contains(t, msg, "PDT compliant")

	ok, msg = c.CheckPatternDayTrader(5, decimal.NewFromInt(30000), min)
	assert.True(t, ok)
	assert.Contains(t, msg, "PDT compliant")
}

func TestPreTradeChecklist(t *testing.T) {
	t.Parallel()

	c := NewChecker(logger.Nop())
	// Tuesday mid-session.
	clockAt(c, time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC))

	checks := c.PreTradeChecklist("AAPL", decimal.NewFromInt(50000))
	require.Len(t, checks, 3)
	assert.True(t, checks["market_hours"].Passed)
	assert.True(t, checks["weekday"].Passed)
	assert.True(t, checks["account_equity"].Passed)

	checks = c.PreTradeChecklist("AAPL", decimal.Zero)
	assert.False(t, checks["account_equity"].Passed)
}
