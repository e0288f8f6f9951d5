package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewheel/engine/broker"
	"github.com/tradewheel/engine/domain"
	"github.com/tradewheel/engine/marketdata"
	"github.com/tradewheel/engine/pkg/logger"
	"github.com/tradewheel/engine/sim"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// harness wires a risk manager to a connected simulator.
func harness(t *testing.T, limits Limits) (*Manager, *sim.Simulator, *marketdata.Static) {
	t.Helper()

	src := marketdata.NewStatic()
	s := sim.New(src, sim.Options{}, logger.Nop())
	require.NoError(t, s.Connect(context.Background()))

	return NewManager(s, limits, logger.Nop()), s, src
}

func TestValidateOrderPasses(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())

	stop := d("95")
	ok, reason := m.ValidateOrder(context.Background(), "AAPL", domain.SideBuy, d("100"), d("100"), &stop)
	assert.True(t, ok, reason)
	assert.Empty(t, reason)
}

func TestValidateOrderPositionSizeLimit(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())

	// 300 shares at $100 is 30% of a $100k account, over the 20% cap.
	ok, reason := m.ValidateOrder(context.Background(), "AAPL", domain.SideBuy, d("300"), d("100"), nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "Position size")
	assert.Contains(t, reason, "exceeds limit")
}

func TestValidateOrderTradeRiskLimit(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())

	// 100 shares risking $20 each is $2000 = 2% of equity, over the 1% cap.
	stop := d("80")
	ok, reason := m.ValidateOrder(context.Background(), "AAPL", domain.SideBuy, d("100"), d("100"), &stop)
	assert.False(t, ok)
	assert.Contains(t, reason, "Trade risk")
}

func TestValidateOrderDailyRiskLimit(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())
	ctx := context.Background()

	// Burn the daily risk budget in three winning trades so no breaker
	// trips along the way.
	for i := 0; i < 3; i++ {
		m.RecordTradeResult(ctx, d("10"), 0.01)
	}

	ok, reason := m.ValidateOrder(ctx, "AAPL", domain.SideBuy, d("10"), d("100"), nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "Daily risk limit reached")
}

func TestValidateOrderMaxOpenPositions(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	limits.MaxOpenPositions = 2
	m, s, src := harness(t, limits)
	ctx := context.Background()

	for _, sym := range []string{"AAPL", "MSFT"} {
		src.SetPrice(sym, d("10"))
		order, err := s.PlaceOrder(ctx, broker.OrderRequest{
			Symbol: sym, Side: domain.SideBuy, Quantity: d("5"), Type: domain.OrderMarket,
		})
		require.NoError(t, err)
		require.Equal(t, domain.StatusFilled, order.Status)
	}

	// A fresh symbol is refused.
	ok, reason := m.ValidateOrder(ctx, "NVDA", domain.SideBuy, d("5"), d("10"), nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "Max open positions reached")

	// Selling down an existing long bypasses the position-count limit.
	ok, reason = m.ValidateOrder(ctx, "AAPL", domain.SideSell, d("5"), d("10"), nil)
	assert.True(t, ok, reason)
}

func TestConsecutiveLossesHaltAndStickiness(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.RecordTradeResult(ctx, d("-10"), 0.001)
	}

	st := m.State()
	assert.True(t, st.TradingHalted)
	assert.Contains(t, st.HaltReason, "consecutive losses")
	require.NotNil(t, st.HaltedAt)

	// Halted state short-circuits validation with the stored reason.
	ok, reason := m.ValidateOrder(ctx, "AAPL", domain.SideBuy, d("1"), d("100"), nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "Trading halted:")

	// A win after the halt does not resume trading.
	m.RecordTradeResult(ctx, d("50"), 0.001)
	assert.True(t, m.State().TradingHalted)

	// Only an explicit resume clears it.
	m.ForceResume()
	st = m.State()
	assert.False(t, st.TradingHalted)
	assert.Empty(t, st.HaltReason)

	ok, _ = m.ValidateOrder(ctx, "AAPL", domain.SideBuy, d("1"), d("100"), nil)
	assert.True(t, ok)
}

func TestWinResetsLossStreak(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())
	ctx := context.Background()

	m.RecordTradeResult(ctx, d("-10"), 0)
	m.RecordTradeResult(ctx, d("-10"), 0)
	assert.Equal(t, 2, m.State().ConsecutiveLosses)

	m.RecordTradeResult(ctx, d("5"), 0)
	st := m.State()
	assert.Equal(t, 0, st.ConsecutiveLosses)
	assert.Equal(t, 1, st.ConsecutiveWins)
	assert.False(t, st.TradingHalted)
}

func TestDailyLossDollarBreaker(t *testing.T) {
	t.Parallel()

	limits := DefaultLimits()
	maxLoss := d("500")
	limits.MaxDailyLossDollar = &maxLoss
	m, _, _ := harness(t, limits)
	ctx := context.Background()

	// One loss beyond the dollar limit trips the breaker; a single loss
	// cannot trip the consecutive-loss breaker first.
	m.RecordTradeResult(ctx, d("-600"), 0.001)

	st := m.State()
	assert.True(t, st.TradingHalted)
	assert.Contains(t, st.HaltReason, "Daily loss")
}

func TestForceHalt(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())

	m.ForceHalt("operator kill switch")
	st := m.State()
	assert.True(t, st.TradingHalted)
	assert.Equal(t, "operator kill switch", st.HaltReason)
}

func TestDailyResetIsIdempotentAndKeepsStreaks(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())
	ctx := context.Background()

	day1 := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return day1 }

	m.RecordTradeResult(ctx, d("-10"), 0.005)
	m.RecordTradeResult(ctx, d("-10"), 0.005)

	st := m.State()
	assert.Equal(t, 2, st.TradesToday)
	assert.Equal(t, 2, st.ConsecutiveLosses)
	assert.True(t, st.DailyPnL.Equal(d("-20")))

	// Next day: daily counters reset once, streaks carry over.
	m.Now = func() time.Time { return day1.AddDate(0, 0, 1) }
	ok, _ := m.ValidateOrder(ctx, "AAPL", domain.SideBuy, d("1"), d("100"), nil)
	assert.True(t, ok)

	st = m.State()
	assert.Equal(t, 0, st.TradesToday)
	assert.True(t, st.DailyPnL.IsZero())
	assert.Equal(t, 0.0, st.DailyRiskUsedPct)
	assert.Equal(t, 2, st.ConsecutiveLosses, "streaks survive the daily reset")

	// Re-validating the same day does not reset anything twice.
	m.RecordTradeResult(ctx, d("5"), 0.001)
	ok, _ = m.ValidateOrder(ctx, "AAPL", domain.SideBuy, d("1"), d("100"), nil)
	assert.True(t, ok)
	assert.Equal(t, 1, m.State().TradesToday)
}

func TestDailyResetFollowsPinnedClock(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())
	ctx := context.Background()

	// The manager's clock runs in the past, as it does during a replay.
	day := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return day }

	// Burn the 3% daily budget in winning trades.
	for i := 0; i < 3; i++ {
		m.RecordTradeResult(ctx, d("10"), 0.01)
	}
	ok, reason := m.ValidateOrder(ctx, "AAPL", domain.SideBuy, d("1"), d("100"), nil)
	assert.False(t, ok)
	assert.Contains(t, reason, "Daily risk limit reached")

	// Rolling the pinned clock forward must reopen the budget even though
	// the manager was constructed later in wall-clock terms.
	day = day.AddDate(0, 0, 1)
	ok, reason = m.ValidateOrder(ctx, "AAPL", domain.SideBuy, d("1"), d("100"), nil)
	assert.True(t, ok, reason)

	st := m.State()
	assert.Equal(t, 0.0, st.DailyRiskUsedPct)
	assert.True(t, st.DailyPnL.IsZero())
	assert.Equal(t, dateOf(day), st.LastResetDate)
}

func TestCheckVolatilityLimit(t *testing.T) {
	t.Parallel()

	m, _, _ := harness(t, DefaultLimits())

	ok, msg := m.CheckVolatilityLimit(2.0, 1.0)
	assert.True(t, ok)
	assert.Empty(t, msg)

	ok, msg = m.CheckVolatilityLimit(4.0, 1.0)
	assert.False(t, ok)
	assert.Contains(t, msg, "High volatility detected")

	// Missing data is acceptable.
	ok, _ = m.CheckVolatilityLimit(0, 1.0)
	assert.True(t, ok)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	m, s, src := harness(t, DefaultLimits())
	ctx := context.Background()

	src.SetPrice("AAPL", d("100"))
	_, err := s.PlaceOrder(ctx, broker.OrderRequest{
		Symbol: "AAPL", Side: domain.SideBuy, Quantity: d("10"), Type: domain.OrderMarket,
	})
	require.NoError(t, err)

	sum, err := m.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.OpenPositions)
	assert.Equal(t, DefaultLimits().MaxOpenPositions, sum.Limits.MaxOpenPositions)
	assert.True(t, sum.Equity.Sign() > 0)
}
