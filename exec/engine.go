// Package exec orchestrates the full trading pipeline: signal in, sized and
// risk-checked order out, everything journaled. One Engine fronts one
// broker; the same pipeline serves live paper trading and backtests.
package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/broker"
	"github.com/tradewheel/engine/compliance"
	"github.com/tradewheel/engine/domain"
	"github.com/tradewheel/engine/journal"
	"github.com/tradewheel/engine/risk"
	"github.com/tradewheel/engine/sizing"
)

// Options configures an execution engine.
type Options struct {
	// SizingMethod selects the position sizing algorithm (default
	// fixed_fractional).
	SizingMethod sizing.Method
	// RiskLimits parameterise the risk manager (default risk.DefaultLimits).
	RiskLimits *risk.Limits
	// Journal receives every order and fill. Nil falls back to journal.Nop,
	// which is only appropriate for tests.
	Journal journal.Journal
	// HardComplianceGate refuses orders outside market hours instead of
	// proceeding with a warning.
	HardComplianceGate bool
	// AllowExtendedHours counts pre-market and after-hours sessions as open.
	AllowExtendedHours bool
}

// Engine drives signals through sizing, compliance, risk, and the broker.
type Engine struct {
	broker     broker.Broker
	risk       *risk.Manager
	compliance *compliance.Checker
	journal    journal.Journal
	pnl        *journal.PnLTracker

	sizingMethod sizing.Method
	hardGate     bool
	extended     bool

	mu           sync.Mutex
	lastTotalPnL decimal.Decimal

	log zerolog.Logger
}

// NewEngine wires an engine to a connected broker.
func NewEngine(ctx context.Context, b broker.Broker, opts Options, log zerolog.Logger) (*Engine, error) {
	account, err := b.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("execution engine: account: %w", err)
	}

	method := opts.SizingMethod
	if method == "" {
		method = sizing.MethodFixedFractional
	}
	if !method.Valid() {
		return nil, fmt.Errorf("execution engine: unknown sizing method %q", method)
	}

	limits := risk.DefaultLimits()
	if opts.RiskLimits != nil {
		limits = *opts.RiskLimits
	}

	jnl := opts.Journal
	if jnl == nil {
		jnl = journal.Nop{}
	}

	e := &Engine{
		broker:       b,
		risk:         risk.NewManager(b, limits, log),
		compliance:   compliance.NewChecker(log),
		journal:      jnl,
		pnl:          journal.NewPnLTracker(account.Equity),
		sizingMethod: method,
		hardGate:     opts.HardComplianceGate,
		extended:     opts.AllowExtendedHours,
		lastTotalPnL: account.TotalPnL,
		log:          log,
	}

	log.Info().
		Str("broker", b.Name()).
		Str("sizing_method", string(method)).
		Bool("hard_compliance_gate", opts.HardComplianceGate).
		Msg("execution engine initialized")

	return e, nil
}

// Risk exposes the risk manager for operator commands (halt, resume,
// summary).
func (e *Engine) Risk() *risk.Manager { return e.risk }

// PnL exposes the PnL tracker.
func (e *Engine) PnL() *journal.PnLTracker { return e.pnl }

// Compliance exposes the compliance checker so callers replaying history
// can pin its clock to bar time.
func (e *Engine) Compliance() *compliance.Checker { return e.compliance }

// ExecuteSignal runs one signal through the pipeline. Business outcomes
// that stop the trade (HOLD, compliance gate, zero size, risk rejection,
// dry run) return (nil, nil) with the reason logged; infrastructure faults
// (no price, broker error) return the error.
func (e *Engine) ExecuteSignal(ctx context.Context, sig domain.TradingSignal, orderType domain.OrderType, riskPct float64, dryRun bool) (*domain.Order, error) {
	log := e.log.With().Str("symbol", sig.Symbol).Str("signal", string(sig.Type)).Logger()
	log.Info().Float64("confidence", sig.Confidence).Msg("executing signal")

	if !sig.Actionable() {
		log.Info().Msg("signal is HOLD, no action taken")
		return nil, nil
	}
	side := sig.Side()

	open, status, msg := e.compliance.CheckMarketHours(sig.Symbol, e.extended)
	if !open {
		log.Warn().Str("status", string(status)).Str("detail", msg).Msg("market closed for symbol")
		if e.hardGate && !dryRun {
			return nil, nil
		}
	}

	entryPrice, err := e.broker.CurrentPrice(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("execute signal: price for %s: %w", sig.Symbol, err)
	}

	stopLoss := calculateStopLoss(entryPrice, sig.Indicators.ATR, side)

	account, err := e.broker.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("execute signal: account: %w", err)
	}

	quantity, err := e.calculateSize(account.Equity, entryPrice, stopLoss, riskPct)
	if err != nil {
		return nil, fmt.Errorf("execute signal: sizing: %w", err)
	}
	if quantity.Sign() <= 0 {
		log.Warn().Msg("calculated position size is zero, no order placed")
		return nil, nil
	}

	log.Info().
		Str("equity", account.Equity.String()).
		Str("entry", entryPrice.String()).
		Str("stop", stopLoss.String()).
		Float64("risk_pct", riskPct).
		Str("quantity", quantity.String()).
		Msg("position sized")

	ok, reason := e.risk.ValidateOrder(ctx, sig.Symbol, side, quantity, entryPrice, &stopLoss)
	if !ok {
		log.Warn().Str("reason", reason).Msg("risk validation failed")
		return nil, nil
	}

	takeProfit := calculateTakeProfit(entryPrice, stopLoss, side, 2.0)

	if dryRun {
		log.Info().
			Str("side", string(side)).
			Str("quantity", quantity.String()).
			Str("stop_loss", stopLoss.String()).
			Str("take_profit", takeProfit.String()).
			Msg("dry run, order not placed")
		return nil, nil
	}

	order, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   quantity,
		Type:       orderType,
		StopLoss:   &stopLoss,
		TakeProfit: &takeProfit,
		Strategy:   "advisor_signal",
		Confidence: sig.Confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("execute signal: place order: %w", err)
	}

	if err := e.journal.LogOrder(order); err != nil {
		log.Error().Err(err).Msg("journal order failed")
	}

	fills, err := e.broker.Fills(ctx, broker.FillFilter{OrderID: order.ID})
	if err == nil {
		for _, fill := range fills {
			if err := e.journal.LogFill(fill); err != nil {
				log.Error().Err(err).Msg("journal fill failed")
			}
		}
	}

	e.settleTradeResult(ctx, riskPct)
	e.snapshotPnL(ctx)

	log.Info().Str("order_id", order.ID).Str("status", string(order.Status)).Msg("order processed")
	return order, nil
}

// calculateSize dispatches to the configured sizing algorithm.
func (e *Engine) calculateSize(equity, entryPrice, stopLoss decimal.Decimal, riskPct float64) (decimal.Decimal, error) {
	switch e.sizingMethod {
	case sizing.MethodFixedDollar:
		amount := equity.Mul(decimal.NewFromFloat(riskPct))
		return sizing.FixedDollar(amount, entryPrice)
	default:
		return sizing.FixedFractional(equity, riskPct, entryPrice, stopLoss)
	}
}

// settleTradeResult feeds any newly realized PnL into the risk manager so
// loss streak and daily loss breakers see every closed trade.
func (e *Engine) settleTradeResult(ctx context.Context, riskPct float64) {
	account, err := e.broker.Account(ctx)
	if err != nil {
		return
	}

	e.mu.Lock()
	delta := account.TotalPnL.Sub(e.lastTotalPnL)
	e.lastTotalPnL = account.TotalPnL
	e.mu.Unlock()

	if delta.Sign() != 0 {
		e.risk.RecordTradeResult(ctx, delta, riskPct)
	}
}

func (e *Engine) snapshotPnL(ctx context.Context) {
	account, err := e.broker.Account(ctx)
	if err != nil {
		return
	}

	unrealized := decimal.Zero
	if positions, err := e.broker.Positions(ctx); err == nil {
		for _, pos := range positions {
			unrealized = unrealized.Add(pos.UnrealizedPnL)
		}
	}

	e.pnl.AddSnapshot(account.Equity, account.TotalPnL, unrealized, account.Cash)
}

// calculateStopLoss places the stop 2x ATR from the entry when ATR is
// known, otherwise 2% of the entry price.
func calculateStopLoss(entryPrice decimal.Decimal, atr *decimal.Decimal, side domain.OrderSide) decimal.Decimal {
	var distance decimal.Decimal
	if atr != nil {
		distance = atr.Mul(decimal.NewFromInt(2))
	} else {
		distance = entryPrice.Mul(decimal.NewFromFloat(0.02))
	}

	if side == domain.SideBuy {
		return entryPrice.Sub(distance)
	}
	return entryPrice.Add(distance)
}

// calculateTakeProfit mirrors the stop distance at the given risk-reward
// multiple.
func calculateTakeProfit(entryPrice, stopLoss decimal.Decimal, side domain.OrderSide, riskReward float64) decimal.Decimal {
	reward := entryPrice.Sub(stopLoss).Abs().Mul(decimal.NewFromFloat(riskReward))

	if side == domain.SideBuy {
		return entryPrice.Add(reward)
	}
	return entryPrice.Sub(reward)
}

// Status is the operator-facing engine snapshot.
type Status struct {
	Broker    string
	Connected bool

	Risk        risk.Summary
	Performance journal.PnLMetrics
}

// Status assembles the current engine state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	riskSummary, err := e.risk.Summary(ctx)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Broker:      e.broker.Name(),
		Connected:   e.broker.Connected(),
		Risk:        riskSummary,
		Performance: e.pnl.Metrics(),
	}, nil
}

// Shutdown closes the journal and disconnects the broker.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.log.Info().Msg("shutting down execution engine")

	if err := e.journal.Close(); err != nil {
		e.log.Error().Err(err).Msg("journal close failed")
	}

	if e.broker.Connected() {
		if err := e.broker.Disconnect(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	e.log.Info().Msg("execution engine shutdown complete")
	return nil
}
