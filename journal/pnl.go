package journal

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PnLSnapshot is one point on the equity curve.
type PnLSnapshot struct {
	Timestamp     time.Time       `json:"timestamp"`
	Equity        decimal.Decimal `json:"equity"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Cash          decimal.Decimal `json:"cash"`
	Drawdown      decimal.Decimal `json:"drawdown"`
}

// ClosedTrade is a realized round trip.
type ClosedTrade struct {
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	PnL        decimal.Decimal `json:"pnl"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ReturnPct  float64         `json:"return_pct"`
}

// PnLMetrics summarises performance over the tracked period.
type PnLMetrics struct {
	InitialEquity decimal.Decimal
	CurrentEquity decimal.Decimal
	PeakEquity    decimal.Decimal

	TotalReturn       float64
	TotalReturnDollar decimal.Decimal
	RealizedPnL       decimal.Decimal
	UnrealizedPnL     decimal.Decimal
	MaxDrawdown       decimal.Decimal

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	AvgWin       decimal.Decimal
	AvgLoss      decimal.Decimal
	ProfitFactor decimal.Decimal
}

// PnLTracker accumulates equity snapshots and closed trades and derives
// performance metrics from them.
type PnLTracker struct {
	mu sync.Mutex

	initialEquity decimal.Decimal
	peakEquity    decimal.Decimal

	snapshots []PnLSnapshot
	trades    []ClosedTrade

	totalRealized   decimal.Decimal
	totalUnrealized decimal.Decimal

	// Now is the snapshot clock, overridable for tests.
	Now func() time.Time
}

// NewPnLTracker starts tracking from initialEquity.
func NewPnLTracker(initialEquity decimal.Decimal) *PnLTracker {
	return &PnLTracker{
		initialEquity: initialEquity,
		peakEquity:    initialEquity,
		Now:           time.Now,
	}
}

// AddSnapshot records the current equity picture and its drawdown from the
// running peak.
func (t *PnLTracker) AddSnapshot(equity, realized, unrealized, cash decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if equity.GreaterThan(t.peakEquity) {
		t.peakEquity = equity
	}

	drawdown := decimal.Zero
	if t.peakEquity.Sign() > 0 {
		drawdown = t.peakEquity.Sub(equity).Div(t.peakEquity)
	}

	t.snapshots = append(t.snapshots, PnLSnapshot{
		Timestamp:     t.Now(),
		Equity:        equity,
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		Cash:          cash,
		Drawdown:      drawdown,
	})
	t.totalRealized = realized
	t.totalUnrealized = unrealized
}

// RecordTrade records a closed round trip.
func (t *PnLTracker) RecordTrade(symbol string, pnl, quantity, entryPrice, exitPrice decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var returnPct float64
	if entryPrice.Sign() > 0 {
		returnPct, _ = exitPrice.Sub(entryPrice).Div(entryPrice).Mul(decimal.NewFromInt(100)).Float64()
	}

	t.trades = append(t.trades, ClosedTrade{
		Timestamp:  t.Now(),
		Symbol:     symbol,
		PnL:        pnl,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		ReturnPct:  returnPct,
	})
}

// EquityCurve returns the recorded snapshots in order.
func (t *PnLTracker) EquityCurve() []PnLSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PnLSnapshot, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

// Trades returns the recorded closed trades in order.
func (t *PnLTracker) Trades() []ClosedTrade {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ClosedTrade, len(t.trades))
	copy(out, t.trades)
	return out
}

// Metrics derives performance statistics. The zero value is returned when
// no snapshots exist yet.
func (t *PnLTracker) Metrics() PnLMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.snapshots) == 0 {
		return PnLMetrics{InitialEquity: t.initialEquity}
	}

	current := t.snapshots[len(t.snapshots)-1].Equity

	m := PnLMetrics{
		InitialEquity:     t.initialEquity,
		CurrentEquity:     current,
		PeakEquity:        t.peakEquity,
		TotalReturnDollar: current.Sub(t.initialEquity),
		RealizedPnL:       t.totalRealized,
		UnrealizedPnL:     t.totalUnrealized,
	}
	if t.initialEquity.Sign() > 0 {
		m.TotalReturn, _ = current.Sub(t.initialEquity).Div(t.initialEquity).Float64()
	}

	for _, s := range t.snapshots {
		if s.Drawdown.GreaterThan(m.MaxDrawdown) {
			m.MaxDrawdown = s.Drawdown
		}
	}

	var winSum, lossSum decimal.Decimal
	for _, tr := range t.trades {
		if tr.PnL.Sign() > 0 {
			m.WinningTrades++
			winSum = winSum.Add(tr.PnL)
		} else if tr.PnL.Sign() < 0 {
			m.LosingTrades++
			lossSum = lossSum.Add(tr.PnL.Abs())
		}
	}
	m.TotalTrades = len(t.trades)
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = winSum.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}
	if m.AvgLoss.Sign() > 0 {
		m.ProfitFactor = m.AvgWin.Div(m.AvgLoss)
	}

	return m
}
