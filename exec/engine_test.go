package exec

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

// harness builds an engine over a connected simulator with its compliance
// clock pinned inside regular trading hours.
func harness(t *testing.T, opts Options) (*Engine, *sim.Simulator, *marketdata.Static) {
	t.Helper()

	src := marketdata.NewStatic()
	s := sim.New(src, sim.Options{}, logger.Nop())
	require.NoError(t, s.Connect(context.Background()))

	e, err := NewEngine(context.Background(), s, opts, logger.Nop())
	require.NoError(t, err)

	// Tuesday 11:00, regular session.
	e.Compliance().Now = func() time.Time {
		return time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	}
	return e, s, src
}

func buySignal(symbol string, atr *decimal.Decimal) domain.TradingSignal {
	return domain.TradingSignal{
		Symbol:     symbol,
		Type:       domain.SignalBuy,
		Confidence: 0.7,
		Reasons:    []string{"test"},
		Indicators: domain.TechnicalIndicators{Symbol: symbol, ATR: atr},
	}
}

func TestExecuteSignalHoldIsNoOp(t *testing.T) {
	t.Parallel()

	e, _, _ := harness(t, Options{})

	order, err := e.ExecuteSignal(context.Background(), domain.TradingSignal{
		Symbol: "AAPL",
		Type:   domain.SignalHold,
	}, domain.OrderMarket, 0.01, false)

	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestExecuteSignalPlacesSizedOrder(t *testing.T) {
	t.Parallel()

	e, s, src := harness(t, Options{})
	src.SetPrice("AAPL", d("100"))
	ctx := context.Background()

	atr := d("3")
	order, err := e.ExecuteSignal(ctx, buySignal("AAPL", &atr), domain.OrderMarket, 0.01, false)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.StatusFilled, order.Status)

	// Stop is 2x ATR below entry: risk $6/share on 1% of $100k = 166 shares.
	require.NotNil(t, order.StopLoss)
	assert.True(t, order.StopLoss.Equal(d("94")), "stop %s", order.StopLoss)
	assert.True(t, order.Quantity.Equal(d("166")), "qty %s", order.Quantity)

	// Take profit mirrors the stop at 2:1.
	require.NotNil(t, order.TakeProfit)
	assert.True(t, order.TakeProfit.Equal(d("112")), "tp %s", order.TakeProfit)

	pos, err := s.Position(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Quantity.Equal(d("166")))
}

func TestExecuteSignalPercentStopWithoutATR(t *testing.T) {
	t.Parallel()

	e, _, src := harness(t, Options{})
	src.SetPrice("AAPL", d("100"))

	order, err := e.ExecuteSignal(context.Background(), buySignal("AAPL", nil), domain.OrderMarket, 0.002, false)
	require.NoError(t, err)
	require.NotNil(t, order)

	// 2% stop distance: stop at 98, risk $2/share on a $200 budget.
	require.NotNil(t, order.StopLoss)
	assert.True(t, order.StopLoss.Equal(d("98")))
	assert.True(t, order.Quantity.Equal(d("100")))
}

func TestExecuteSignalDryRunPlacesNothing(t *testing.T) {
	t.Parallel()

	e, s, src := harness(t, Options{})
	src.SetPrice("AAPL", d("100"))
	ctx := context.Background()

	atr := d("3")
	order, err := e.ExecuteSignal(ctx, buySignal("AAPL", &atr), domain.OrderMarket, 0.01, true)
	require.NoError(t, err)
	assert.Nil(t, order)

	orders, err := s.Orders(ctx, broker.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestExecuteSignalZeroSizeAborts(t *testing.T) {
	t.Parallel()

	e, s, src := harness(t, Options{})
	// Risk per share ($1200) dwarfs the 1% budget ($1000), so fixed
	// fractional floors to zero shares and the pipeline stops.
	src.SetPrice("PRICY", d("2000"))
	ctx := context.Background()

	atr := d("600")
	order, err := e.ExecuteSignal(ctx, buySignal("PRICY", &atr), domain.OrderMarket, 0.01, false)
	require.NoError(t, err)
	assert.Nil(t, order)

	orders, err := s.Orders(ctx, broker.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestExecuteSignalRiskRejection(t *testing.T) {
	t.Parallel()

	// A halted risk manager must refuse the trade before it reaches the
	// broker.
	e, s, src := harness(t, Options{})
	e.Risk().ForceHalt("test halt")
	src.SetPrice("AAPL", d("100"))

	atr := d("3")
	order, err := e.ExecuteSignal(context.Background(), buySignal("AAPL", &atr), domain.OrderMarket, 0.01, false)
	require.NoError(t, err)
	assert.Nil(t, order)

	orders, err := s.Orders(context.Background(), broker.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestExecuteSignalNoPriceIsError(t *testing.T) {
	t.Parallel()

	e, _, _ := harness(t, Options{})

	atr := d("3")
	_, err := e.ExecuteSignal(context.Background(), buySignal("GHOST", &atr), domain.OrderMarket, 0.01, false)
	require.Error(t, err)
}

func TestHardComplianceGateBlocksAfterHours(t *testing.T) {
	t.Parallel()

	e, s, src := harness(t, Options{HardComplianceGate: true})
	src.SetPrice("AAPL", d("100"))

	// Saturday: stocks closed.
	e.Compliance().Now = func() time.Time {
		return time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)
	}

	atr := d("3")
	order, err := e.ExecuteSignal(context.Background(), buySignal("AAPL", &atr), domain.OrderMarket, 0.01, false)
	require.NoError(t, err)
	assert.Nil(t, order)

	orders, err := s.Orders(context.Background(), broker.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestAdvisoryComplianceProceedsAfterHours(t *testing.T) {
	t.Parallel()

	e, _, src := harness(t, Options{})
	src.SetPrice("AAPL", d("100"))

	e.Compliance().Now = func() time.Time {
		return time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)
	}

	atr := d("3")
	order, err := e.ExecuteSignal(context.Background(), buySignal("AAPL", &atr), domain.OrderMarket, 0.01, false)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.StatusFilled, order.Status)
}

func TestSellSignalRealizedPnLFeedsRisk(t *testing.T) {
	t.Parallel()

	e, s, src := harness(t, Options{})
	s.Now = func() time.Time { return time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC) }
	src.SetPrice("AAPL", d("100"))
	ctx := context.Background()

	atr := d("3")
	_, err := e.ExecuteSignal(ctx, buySignal("AAPL", &atr), domain.OrderMarket, 0.01, false)
	require.NoError(t, err)

	// Price collapses; the sell signal closes what it can and the realized
	// loss lands in the risk manager's streak counters.
	src.SetPrice("AAPL", d("90"))
	sellSig := domain.TradingSignal{
		Symbol:     "AAPL",
		Type:       domain.SignalSell,
		Confidence: 0.8,
		Indicators: domain.TechnicalIndicators{Symbol: "AAPL", ATR: &atr},
	}
	order, err := e.ExecuteSignal(ctx, sellSig, domain.OrderMarket, 0.01, false)
	require.NoError(t, err)
	require.NotNil(t, order)

	st := e.Risk().State()
	assert.Equal(t, 1, st.ConsecutiveLosses)
	assert.True(t, st.DailyPnL.Sign() < 0)
}

func TestShutdownDisconnectsBroker(t *testing.T) {
	t.Parallel()

	e, s, _ := harness(t, Options{})
	require.True(t, s.Connected())

	require.NoError(t, e.Shutdown(context.Background()))
	assert.False(t, s.Connected())
}

func TestStatus(t *testing.T) {
	t.Parallel()

	e, _, _ := harness(t, Options{})

	st, err := e.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "simulator", st.Broker)
	assert.True(t, st.Connected)
	assert.False(t, st.Risk.State.TradingHalted)
}
