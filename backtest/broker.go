// Package backtest replays historical bars through the execution pipeline
// and scores the result. The backtest broker reuses the simulator's fill
// and accounting logic; only the price source and the clock differ.
package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/broker"
	"github.com/tradewheel/engine/domain"
	"github.com/tradewheel/engine/sim"
)

// barCursor is a marketdata.Source pinned to the bar currently being
// replayed. Quoting a symbol with no bar at the cursor is an error, which
// keeps look-ahead impossible.
type barCursor struct {
	mu      sync.RWMutex
	ts      time.Time
	current map[string]domain.Bar
	history map[string][]domain.Bar
}

func (c *barCursor) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bar, ok := c.current[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no bar for %s at %s", symbol, c.ts.Format(time.RFC3339))
	}
	return bar.Close, nil
}

func (c *barCursor) Bars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Bar
	for _, b := range c.history[symbol] {
		if b.Time.Before(start) || b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Broker is the bar-driven venue. It embeds the simulator for order
// execution and accounting and advances through history one bar at a time.
type Broker struct {
	*sim.Simulator
	cursor *barCursor
}

// NewBroker builds a backtest broker over per-symbol bar history.
func NewBroker(history map[string][]domain.Bar, opts sim.Options, log zerolog.Logger) *Broker {
	cursor := &barCursor{
		current: make(map[string]domain.Bar),
		history: history,
	}
	return &Broker{
		Simulator: sim.New(cursor, opts, log),
		cursor:    cursor,
	}
}

// Name identifies the venue in logs and status output.
func (b *Broker) Name() string { return "backtest" }

// SetCurrentBar advances the replay clock. Orders placed after this call
// fill against these bars' closes, and the simulator timestamps everything
// with the bar time.
func (b *Broker) SetCurrentBar(ts time.Time, bars map[string]domain.Bar) {
	b.cursor.mu.Lock()
	b.cursor.ts = ts
	b.cursor.current = bars
	b.cursor.mu.Unlock()

	b.Simulator.Now = func() time.Time { return ts }
}

// MarketHours reports open for every bar in the replay window: the history
// itself defines when the market traded.
func (b *Broker) MarketHours(ctx context.Context, symbol string) broker.MarketHours {
	return broker.MarketHours{IsOpen: true, Session: "regular"}
}
