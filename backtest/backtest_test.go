package backtest

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

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// dailyBars builds n daily bars starting at day(start), with closes walking
// from 100 in steps of `step` and a fixed $2 bar range.
func dailyBars(start, n int, step float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		close := decimal.NewFromFloat(100 + step*float64(i))
		bars[i] = domain.Bar{
			Time:   day(start + i),
			Open:   close,
			High:   close.Add(decimal.NewFromInt(1)),
			Low:    close.Sub(decimal.NewFromInt(1)),
			Close:  close,
			Volume: 1000,
		}
	}
	return bars
}

func TestCommonTimestamps(t *testing.T) {
	t.Parallel()

	history := map[string][]domain.Bar{
		"AAPL": dailyBars(1, 10, 1), // days 1..10
		"MSFT": dailyBars(5, 10, 1), // days 5..14
	}

	ts := commonTimestamps(history)
	require.Len(t, ts, 6)
	assert.Equal(t, day(5), ts[0])
	assert.Equal(t, day(10), ts[5])
	for i := 1; i < len(ts); i++ {
		assert.True(t, ts[i].After(ts[i-1]))
	}
}

func TestBarCursorRefusesMissingBar(t *testing.T) {
	t.Parallel()

	history := map[string][]domain.Bar{"AAPL": dailyBars(1, 5, 1)}
	b := NewBroker(history, sim.Options{}, logger.Nop())

	b.SetCurrentBar(day(3), map[string]domain.Bar{"AAPL": history["AAPL"][2]})

	price, err := b.CurrentPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, price.Equal(d("102")))

	// No bar for MSFT at this cursor: quoting it must fail rather than
	// leak a price from another time.
	_, err = b.CurrentPrice(context.Background(), "MSFT")
	require.Error(t, err)
}

func TestSetCurrentBarPinsClock(t *testing.T) {
	t.Parallel()

	history := map[string][]domain.Bar{"AAPL": dailyBars(1, 5, 1)}
	b := NewBroker(history, sim.Options{}, logger.Nop())
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))

	ts := day(2)
	b.SetCurrentBar(ts, map[string]domain.Bar{"AAPL": history["AAPL"][1]})

	order, err := b.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   "AAPL",
		Side:     domain.SideBuy,
		Quantity: d("10"),
		Type:     domain.OrderMarket,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusFilled, order.Status)

	// Everything the simulator stamps carries the bar time, not wall time.
	assert.Equal(t, ts, order.CreatedAt)
	require.NotNil(t, order.FilledAt)
	assert.Equal(t, ts, *order.FilledAt)
}

func TestApplyDrawdown(t *testing.T) {
	t.Parallel()

	curve := []EquityPoint{
		{Equity: d("100000")},
		{Equity: d("110000")},
		{Equity: d("99000")},
		{Equity: d("104500")},
	}
	applyDrawdown(curve)

	assert.Equal(t, 0.0, curve[0].Drawdown)
	assert.Equal(t, 0.0, curve[1].Drawdown)
	assert.InDelta(t, -0.10, curve[2].Drawdown, 1e-9)
	assert.InDelta(t, -0.05, curve[3].Drawdown, 1e-9)
}

func TestCalculateMetrics(t *testing.T) {
	t.Parallel()

	curve := []EquityPoint{
		{Timestamp: day(0), Equity: d("100000")},
		{Timestamp: day(1), Equity: d("110000")},
		{Timestamp: day(2), Equity: d("99000")},
		{Timestamp: day(3), Equity: d("104500")},
	}
	applyDrawdown(curve)

	trades := []Trade{
		{PnL: d("1000")},
		{PnL: d("500")},
		{PnL: d("-250")},
		{PnL: d("-250")},
		{PnL: d("300")},
	}

	m := CalculateMetrics(curve, trades, d("100000"), 0.02)

	assert.InDelta(t, 4.5, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, -10.0, m.MaxDrawdownPct, 1e-9)
	assert.Equal(t, 2, m.MaxDrawdownDurationDays)
	assert.True(t, m.PeakEquity.Equal(d("110000")))
	assert.True(t, m.FinalEquity.Equal(d("104500")))

	assert.Equal(t, 5, m.TotalTrades)
	assert.Equal(t, 3, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 60.0, m.WinRatePct, 1e-9)
	assert.InDelta(t, 3.6, m.ProfitFactor, 1e-9)
	assert.True(t, m.AvgWin.Equal(d("600")), "avg win %s", m.AvgWin)
	assert.True(t, m.AvgLoss.Equal(d("-250")), "avg loss %s", m.AvgLoss)
	assert.True(t, m.AvgTrade.Equal(d("260")))
	assert.True(t, m.Expectancy.Equal(d("260")))
	assert.True(t, m.LargestWin.Equal(d("1000")))
	assert.True(t, m.LargestLoss.Equal(d("-250")))
	assert.InDelta(t, 2.4, m.AvgRiskRewardRatio, 1e-9)
	assert.Equal(t, 2, m.MaxConsecutiveWins)
	assert.Equal(t, 2, m.MaxConsecutiveLosses)
}

func TestCalculateMetricsIgnoresUnrealizedFills(t *testing.T) {
	t.Parallel()

	curve := []EquityPoint{
		{Timestamp: day(0), Equity: d("100000")},
		{Timestamp: day(5), Equity: d("100060")},
	}
	applyDrawdown(curve)

	// Opening fills realize nothing; they must not read as losses or
	// dilute the per-trade averages.
	trades := []Trade{
		{PnL: d("0")},
		{PnL: d("-100")},
		{PnL: d("0")},
		{PnL: d("-50")},
		{PnL: d("210")},
		{PnL: d("0")},
	}

	m := CalculateMetrics(curve, trades, d("100000"), 0.02)

	assert.Equal(t, 6, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 100.0/3, m.WinRatePct, 1e-9)
	assert.InDelta(t, 1.4, m.ProfitFactor, 1e-9)
	assert.True(t, m.AvgWin.Equal(d("210")))
	assert.True(t, m.AvgLoss.Equal(d("-75")))
	assert.True(t, m.AvgTrade.Equal(d("20")), "avg trade %s", m.AvgTrade)
	assert.True(t, m.Expectancy.Equal(d("20")))

	// The flat fill between the two losses does not break the streak, and
	// the trailing one opens no winning run.
	assert.Equal(t, 2, m.MaxConsecutiveLosses)
	assert.Equal(t, 1, m.MaxConsecutiveWins)
}

func TestCalculateMetricsEmptyCurve(t *testing.T) {
	t.Parallel()

	m := CalculateMetrics(nil, nil, d("100000"), 0.02)
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.TotalReturnPct)
}

func TestRunRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(Config{Symbols: []string{"AAPL"}}, logger.Nop()).Run(context.Background())
	require.Error(t, err)

	src := marketdata.NewStatic()
	_, err = NewEngine(Config{Source: src}, logger.Nop()).Run(context.Background())
	require.Error(t, err)

	// Symbols with no data are skipped; all skipped is an error.
	_, err = NewEngine(Config{Source: src, Symbols: []string{"GHOST"}}, logger.Nop()).Run(context.Background())
	require.Error(t, err)
}

func TestRunReplaysHistory(t *testing.T) {
	t.Parallel()

	// A steady uptrend produces all-gain RSI readings, which the signal
	// generator scores as HOLD. The replay itself still walks every bar.
	bars := dailyBars(0, 80, 0.5)
	src := marketdata.NewStatic()
	src.SetBars("AAPL", bars)

	cfg := Config{
		Symbols: []string{"AAPL", "GHOST"},
		Start:   day(0),
		End:     day(80),
		Source:  src,
	}

	res, err := NewEngine(cfg, logger.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, res.EquityCurve, 80)
	for i := 1; i < len(res.EquityCurve); i++ {
		assert.True(t, res.EquityCurve[i].Timestamp.After(res.EquityCurve[i-1].Timestamp))
	}

	// Signals start once 50 bars of history exist.
	assert.Len(t, res.Signals, 31)
	for _, sig := range res.Signals {
		assert.Equal(t, domain.SignalHold, sig.Type)
	}

	assert.Empty(t, res.Trades)
	assert.Zero(t, res.Metrics.TotalTrades)
	assert.True(t, res.Metrics.FinalEquity.Equal(d("100000")),
		"final equity %s", res.Metrics.FinalEquity)
}

func TestRunHonoursContextCancellation(t *testing.T) {
	t.Parallel()

	src := marketdata.NewStatic()
	src.SetBars("AAPL", dailyBars(0, 80, 0.5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(Config{Symbols: []string{"AAPL"}, Start: day(0), End: day(80), Source: src}, logger.Nop()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunParallel(t *testing.T) {
	t.Parallel()

	src := marketdata.NewStatic()
	src.SetBars("AAPL", dailyBars(0, 80, 0.5))

	good := Config{Symbols: []string{"AAPL"}, Start: day(0), End: day(80), Source: src}
	bad := Config{Symbols: []string{"GHOST"}, Start: day(0), End: day(80), Source: src}

	results := RunParallel(context.Background(), []Config{good, bad, good}, 2, logger.Nop())

	// The failed run is dropped, the two good ones survive.
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Len(t, res.EquityCurve, 80)
	}
}
