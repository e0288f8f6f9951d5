package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/domain"
)

// CSVDir loads bar history from a directory of per-symbol CSV files named
// <SYMBOL>.csv with columns time,open,high,low,close,volume. Timestamps are
// RFC 3339 or bare dates. Files are parsed once and cached.
type CSVDir struct {
	dir string

	mu    sync.Mutex
	cache map[string][]domain.Bar
}

// NewCSVDir returns a CSV-backed source rooted at dir.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{dir: dir, cache: make(map[string][]domain.Bar)}
}

// Price returns the close of the latest bar on file for symbol.
func (c *CSVDir) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	bars, err := c.load(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if len(bars) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	return bars[len(bars)-1].Close, nil
}

// Bars implements Source.
func (c *CSVDir) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	all, err := c.load(symbol)
	if err != nil {
		return nil, err
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

func (c *CSVDir) load(symbol string) ([]domain.Bar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bars, ok := c.cache[symbol]; ok {
		return bars, nil
	}

	path := filepath.Join(c.dir, symbol+".csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
		}
		return nil, fmt.Errorf("open bars for %s: %w", symbol, err)
	}
	defer f.Close()

	bars, err := parseBars(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	c.cache[symbol] = bars
	return bars, nil
}

func parseBars(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	var bars []domain.Bar
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		// Skip a header row.
		if line == 1 && strings.EqualFold(rec[0], "time") {
			continue
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("line %d: want 6 columns, got %d", line, len(rec))
		}

		ts, err := parseTime(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar := domain.Bar{Time: ts}
		for i, dst := range []*decimal.Decimal{&bar.Open, &bar.High, &bar.Low, &bar.Close} {
			v, err := decimal.NewFromString(rec[i+1])
			if err != nil {
				return nil, fmt.Errorf("line %d col %d: %w", line, i+2, err)
			}
			*dst = v
		}
		vol, err := strconv.ParseFloat(rec[5], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d volume: %w", line, err)
		}
		bar.Volume = vol

		bars = append(bars, bar)
	}

	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
