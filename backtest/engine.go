package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/domain"
	"github.com/tradewheel/engine/exec"
	"github.com/tradewheel/engine/indicators"
	"github.com/tradewheel/engine/marketdata"
	"github.com/tradewheel/engine/risk"
	"github.com/tradewheel/engine/signal"
	"github.com/tradewheel/engine/sim"
	"github.com/tradewheel/engine/sizing"
)

// DefaultMinBars is the history required before signals are generated for
// a symbol: the longest indicator lookback.
const DefaultMinBars = 50

// Config describes one backtest run.
type Config struct {
	Symbols []string
	Start   time.Time
	End     time.Time

	InitialCapital     decimal.Decimal
	SlippageBPS        float64
	CommissionPerTrade decimal.Decimal

	RiskPerTradePct float64
	MaxPositions    int
	SizingMethod    sizing.Method
	Strategy        string

	// MinBars overrides DefaultMinBars when positive.
	MinBars int

	// Source supplies historical bars for every symbol.
	Source marketdata.Source
}

func (c *Config) setDefaults() {
	if c.InitialCapital.Sign() == 0 {
		c.InitialCapital = decimal.NewFromInt(100000)
	}
	if c.SlippageBPS == 0 {
		c.SlippageBPS = 1.5
	}
	if c.CommissionPerTrade.Sign() == 0 {
		c.CommissionPerTrade = decimal.NewFromInt(2)
	}
	if c.RiskPerTradePct == 0 {
		c.RiskPerTradePct = 0.01
	}
	if c.MaxPositions == 0 {
		c.MaxPositions = 5
	}
	if c.SizingMethod == "" {
		c.SizingMethod = sizing.MethodFixedFractional
	}
	if c.Strategy == "" {
		c.Strategy = "technical"
	}
	if c.MinBars == 0 {
		c.MinBars = DefaultMinBars
	}
}

// Result holds everything a run produced.
type Result struct {
	Config      Config
	Metrics     Metrics
	EquityCurve []EquityPoint
	Trades      []Trade
	Signals     []domain.TradingSignal
}

// Engine replays history bar by bar through the execution pipeline.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// NewEngine builds a backtest engine for cfg.
func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg: cfg,
		log: log.With().Str("strategy", cfg.Strategy).Logger(),
	}
}

// Run executes the backtest.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.cfg
	if cfg.Source == nil {
		return nil, fmt.Errorf("backtest: no data source configured")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("backtest: no symbols configured")
	}

	e.log.Info().
		Strs("symbols", cfg.Symbols).
		Time("start", cfg.Start).
		Time("end", cfg.End).
		Msg("starting backtest")

	history, err := e.loadHistory(ctx)
	if err != nil {
		return nil, err
	}

	timestamps := commonTimestamps(history)
	if len(timestamps) == 0 {
		return nil, fmt.Errorf("backtest: no overlapping bars across symbols")
	}
	e.log.Info().Int("bars", len(timestamps)).Msg("simulating")

	b := NewBroker(history, sim.Options{
		InitialCash:        cfg.InitialCapital,
		SlippageBPS:        cfg.SlippageBPS,
		CommissionPerTrade: cfg.CommissionPerTrade,
	}, e.log)
	if err := b.Connect(ctx); err != nil {
		return nil, fmt.Errorf("backtest: connect: %w", err)
	}
	defer b.Disconnect(ctx)

	limits := risk.DefaultLimits()
	limits.MaxRiskPerTradePct = cfg.RiskPerTradePct
	limits.MaxOpenPositions = cfg.MaxPositions

	engine, err := exec.NewEngine(ctx, b, exec.Options{
		SizingMethod: cfg.SizingMethod,
		RiskLimits:   &limits,
	}, e.log)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	gen := signal.NewTechnical(signal.DefaultThresholds(), e.log)

	// Per-symbol replay cursors into the sorted bar history.
	offsets := make(map[string]int, len(history))
	byTime := make(map[string]map[time.Time]domain.Bar, len(history))
	for sym, bars := range history {
		index := make(map[time.Time]domain.Bar, len(bars))
		for _, bar := range bars {
			index[bar.Time] = bar
		}
		byTime[sym] = index
	}

	var (
		curve      []EquityPoint
		trades     []Trade
		signals    []domain.TradingSignal
		prevPnL    decimal.Decimal
		currentBar = make(map[string]domain.Bar, len(history))
	)

	for i, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}

		for sym := range currentBar {
			delete(currentBar, sym)
		}
		for sym, index := range byTime {
			if bar, ok := index[ts]; ok {
				currentBar[sym] = bar
			}
		}
		// Every clock in the pipeline follows the bar time, including the
		// risk manager's daily-reset date.
		b.SetCurrentBar(ts, currentBar)
		engine.Compliance().Now = func() time.Time { return ts }
		engine.Risk().Now = func() time.Time { return ts }

		for _, sym := range cfg.Symbols {
			bars, ok := history[sym]
			if !ok {
				continue
			}
			if _, ok := currentBar[sym]; !ok {
				continue
			}

			// Advance the cursor so the window covers history up to and
			// including this bar.
			for offsets[sym] < len(bars) && !bars[offsets[sym]].Time.After(ts) {
				offsets[sym]++
			}
			window := bars[:offsets[sym]]
			if len(window) < cfg.MinBars {
				continue
			}

			ind, err := indicators.Compute(sym, window)
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", sym).Time("bar", ts).Msg("indicators skipped")
				continue
			}

			sig := gen.Generate(ind)
			signals = append(signals, sig)
			if !sig.Actionable() {
				continue
			}

			order, err := engine.ExecuteSignal(ctx, sig, domain.OrderMarket, cfg.RiskPerTradePct, false)
			if err != nil {
				e.log.Warn().Err(err).Str("symbol", sym).Time("bar", ts).Msg("signal execution failed")
				continue
			}
			if order == nil || order.FilledQuantity.Sign() <= 0 {
				continue
			}

			account, err := b.Account(ctx)
			if err != nil {
				continue
			}
			fillPrice := decimal.Zero
			if order.AvgFillPrice != nil {
				fillPrice = *order.AvgFillPrice
			}
			trades = append(trades, Trade{
				Timestamp: ts,
				Symbol:    order.Symbol,
				Side:      string(order.Side),
				Quantity:  order.FilledQuantity,
				Price:     fillPrice,
				PnL:       account.TotalPnL.Sub(prevPnL),
			})
			prevPnL = account.TotalPnL
		}

		account, err := b.Account(ctx)
		if err != nil {
			return nil, fmt.Errorf("backtest: account at %s: %w", ts, err)
		}
		curve = append(curve, EquityPoint{
			Timestamp: ts,
			Equity:    account.Equity,
			Cash:      account.Cash,
		})

		if (i+1)%100 == 0 {
			e.log.Debug().Int("processed", i+1).Int("total", len(timestamps)).Msg("progress")
		}
	}

	applyDrawdown(curve)
	metrics := CalculateMetrics(curve, trades, cfg.InitialCapital, 0.02)

	e.log.Info().
		Int("trades", metrics.TotalTrades).
		Float64("return_pct", metrics.TotalReturnPct).
		Msg("backtest complete")

	return &Result{
		Config:      cfg,
		Metrics:     metrics,
		EquityCurve: curve,
		Trades:      trades,
		Signals:     signals,
	}, nil
}

// loadHistory pulls bars for every symbol, skipping symbols with no data.
func (e *Engine) loadHistory(ctx context.Context) (map[string][]domain.Bar, error) {
	history := make(map[string][]domain.Bar, len(e.cfg.Symbols))
	for _, sym := range e.cfg.Symbols {
		bars, err := e.cfg.Source.Bars(ctx, sym, e.cfg.Start, e.cfg.End)
		if err != nil || len(bars) == 0 {
			e.log.Warn().Err(err).Str("symbol", sym).Msg("no data for symbol")
			continue
		}
		sorted := make([]domain.Bar, len(bars))
		copy(sorted, bars)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
		history[sym] = sorted
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("backtest: no data for any symbol")
	}
	return history, nil
}

// commonTimestamps returns the timestamps present in every symbol's
// history, sorted ascending.
func commonTimestamps(history map[string][]domain.Bar) []time.Time {
	counts := make(map[time.Time]int)
	for _, bars := range history {
		for _, bar := range bars {
			counts[bar.Time]++
		}
	}

	var out []time.Time
	for ts, n := range counts {
		if n == len(history) {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// applyDrawdown fills in the signed drawdown from the running peak.
func applyDrawdown(curve []EquityPoint) {
	peak := decimal.Zero
	for i := range curve {
		if curve[i].Equity.GreaterThan(peak) {
			peak = curve[i].Equity
		}
		if peak.Sign() > 0 {
			dd, _ := curve[i].Equity.Sub(peak).Div(peak).Float64()
			curve[i].Drawdown = dd
		}
	}
}
