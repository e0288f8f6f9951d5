// Package marketdata abstracts where prices and historical bars come from.
// The simulator quotes off a Source; backtests preload bars from CSV files.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/domain"
)

// ErrNoData is returned when a source has nothing for the requested symbol.
var ErrNoData = errors.New("marketdata: no data for symbol")

// Source supplies spot prices and historical bars.
type Source interface {
	// Price returns the latest known price for symbol.
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
	// Bars returns bars in [start, end] sorted by time ascending.
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// Static is an in-memory Source fed by the caller. The simulator uses it
// for paper trading; tests use it to pin prices.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	bars   map[string][]domain.Bar
}

// NewStatic returns an empty in-memory source.
func NewStatic() *Static {
	return &Static{
		prices: make(map[string]decimal.Decimal),
		bars:   make(map[string][]domain.Bar),
	}
}

// SetPrice sets the current price for symbol.
func (s *Static) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// SetBars replaces the bar history for symbol, sorted by time.
func (s *Static) SetBars(symbol string, bars []domain.Bar) {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[symbol] = sorted
}

// Price implements Source.
func (s *Static) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	return p, nil
}

// Bars implements Source.
func (s *Static) Bars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, ok := s.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	var out []domain.Bar
	for _, b := range all {
		if b.Time.Before(start) || b.Time.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
