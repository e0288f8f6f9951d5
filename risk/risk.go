// Package risk enforces trading limits and circuit breakers. Every order
// passes through Manager.ValidateOrder before it may reach a broker; trade
// results feed back through RecordTradeResult so the breakers can trip.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/broker"
	"github.com/tradewheel/engine/domain"
)

// Limits is the risk limit configuration. The zero value is not useful;
// start from DefaultLimits.
type Limits struct {
	// Per-trade limits.
	MaxRiskPerTradePct float64
	MaxPositionSizePct float64

	// Daily limits.
	MaxRiskPerDayPct    float64
	MaxDailyDrawdownPct float64
	// MaxDailyLossDollar is an optional absolute daily-loss breaker.
	MaxDailyLossDollar *decimal.Decimal

	// Position limits.
	MaxOpenPositions int

	// Consecutive loss breaker.
	MaxConsecutiveLosses int

	// Volatility limit: warn when current ATR exceeds this multiple of the
	// average ATR.
	MaxATRMultiplier float64
}

// DefaultLimits are conservative paper-trading limits: 1% risk per trade,
// 20% position size, 3% daily risk, 5% daily drawdown, 5 open positions,
// 3 consecutive losses, 3x ATR.
func DefaultLimits() Limits {
	return Limits{
		MaxRiskPerTradePct:   0.01,
		MaxPositionSizePct:   0.20,
		MaxRiskPerDayPct:     0.03,
		MaxDailyDrawdownPct:  0.05,
		MaxOpenPositions:     5,
		MaxConsecutiveLosses: 3,
		MaxATRMultiplier:     3.0,
	}
}

// State tracks daily counters and the circuit-breaker status.
type State struct {
	DailyPnL         decimal.Decimal
	DailyRiskUsedPct float64
	TradesToday      int
	LossesToday      int

	ConsecutiveLosses int
	ConsecutiveWins   int

	TradingHalted bool
	HaltReason    string
	HaltedAt      *time.Time

	LastResetDate time.Time
}

// Manager validates orders against limits and trips circuit breakers.
// Once halted, trading stays halted until ForceResume; the breakers never
// reset themselves.
type Manager struct {
	mu     sync.Mutex
	broker broker.Broker
	limits Limits
	state  State

	log zerolog.Logger

	// Now is the clock for daily resets. Overridable for tests and
	// backtests.
	Now func() time.Time
}

// NewManager builds a risk manager gating orders for b.
func NewManager(b broker.Broker, limits Limits, log zerolog.Logger) *Manager {
	m := &Manager{
		broker: b,
		limits: limits,
		log:    log,
		Now:    time.Now,
	}

	log.Info().
		Float64("max_risk_per_trade", limits.MaxRiskPerTradePct).
		Float64("max_position_size", limits.MaxPositionSizePct).
		Float64("max_daily_drawdown", limits.MaxDailyDrawdownPct).
		Int("max_open_positions", limits.MaxOpenPositions).
		Msg("risk manager initialized")

	return m
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// State returns a snapshot of the current risk state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func dateOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// checkDailyResetLocked zeroes daily counters once per calendar day. The
// consecutive win/loss streaks and a tripped halt survive the reset. The
// reset date is seeded lazily from the manager's own clock so a pinned
// replay clock rolls days the same way the wall clock does.
func (m *Manager) checkDailyResetLocked() {
	today := dateOf(m.Now())
	if m.state.LastResetDate.IsZero() {
		m.state.LastResetDate = today
		return
	}
	if today.Equal(m.state.LastResetDate) {
		return
	}

	m.state.DailyPnL = decimal.Zero
	m.state.DailyRiskUsedPct = 0
	m.state.TradesToday = 0
	m.state.LossesToday = 0
	m.state.LastResetDate = today

	m.log.Info().Msg("daily risk state reset")
}

// ValidateOrder runs the full pre-trade check sequence and returns whether
// the order may proceed, with the failure reason when it may not. Checks
// short-circuit in order; the drawdown, consecutive-loss, and daily-loss
// checks halt trading as a side effect when they fail.
func (m *Manager) ValidateOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, entryPrice decimal.Decimal, stopLoss *decimal.Decimal) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkDailyResetLocked()

	if m.state.TradingHalted {
		return false, fmt.Sprintf("Trading halted: %s", m.state.HaltReason)
	}

	account, err := m.broker.Account(ctx)
	if err != nil {
		return false, fmt.Sprintf("Account unavailable: %v", err)
	}
	equity := account.Equity

	if equity.Sign() <= 0 {
		return false, "Account equity is zero or negative"
	}

	positionValue := quantity.Mul(entryPrice)
	positionPct, _ := positionValue.Div(equity).Float64()
	if positionPct > m.limits.MaxPositionSizePct {
		return false, fmt.Sprintf("Position size %.2f%% exceeds limit %.2f%%",
			positionPct*100, m.limits.MaxPositionSizePct*100)
	}

	if stopLoss != nil {
		riskPerShare := entryPrice.Sub(*stopLoss).Abs()
		dollarRisk := riskPerShare.Mul(quantity)
		riskPct, _ := dollarRisk.Div(equity).Float64()

		if riskPct > m.limits.MaxRiskPerTradePct {
			return false, fmt.Sprintf("Trade risk %.2f%% exceeds limit %.2f%%",
				riskPct*100, m.limits.MaxRiskPerTradePct*100)
		}
	}

	if m.state.DailyRiskUsedPct >= m.limits.MaxRiskPerDayPct {
		return false, fmt.Sprintf("Daily risk limit reached: %.2f%% / %.2f%%",
			m.state.DailyRiskUsedPct*100, m.limits.MaxRiskPerDayPct*100)
	}

	positions, err := m.broker.Positions(ctx)
	if err != nil {
		return false, fmt.Sprintf("Positions unavailable: %v", err)
	}
	if len(positions) >= m.limits.MaxOpenPositions && !isClosingOrder(symbol, side, positions) {
		return false, fmt.Sprintf("Max open positions reached: %d / %d",
			len(positions), m.limits.MaxOpenPositions)
	}

	ddLimit := decimal.NewFromFloat(m.limits.MaxDailyDrawdownPct)
	if account.MaxDrawdown.GreaterThanOrEqual(ddLimit) {
		dd, _ := account.MaxDrawdown.Float64()
		m.haltLocked(fmt.Sprintf("Daily drawdown limit reached: %.2f%%", dd*100))
		return false, m.state.HaltReason
	}

	if m.state.ConsecutiveLosses >= m.limits.MaxConsecutiveLosses {
		m.haltLocked(fmt.Sprintf("Max consecutive losses reached: %d", m.state.ConsecutiveLosses))
		return false, m.state.HaltReason
	}

	if m.limits.MaxDailyLossDollar != nil {
		if m.state.DailyPnL.LessThan(m.limits.MaxDailyLossDollar.Abs().Neg()) {
			m.haltLocked(fmt.Sprintf("Daily loss limit reached: $%s", m.state.DailyPnL))
			return false, m.state.HaltReason
		}
	}

	return true, ""
}

// isClosingOrder reports whether the order reduces an existing position:
// selling into a long or buying back a short.
func isClosingOrder(symbol string, side domain.OrderSide, positions []domain.Position) bool {
	for _, pos := range positions {
		if pos.Symbol != symbol {
			continue
		}
		if side == domain.SideSell && pos.Quantity.Sign() > 0 {
			return true
		}
		if side == domain.SideBuy && pos.Quantity.Sign() < 0 {
			return true
		}
	}
	return false
}

// RecordTradeResult feeds a realized trade outcome back into the daily
// counters and streaks, then re-evaluates the circuit breakers.
func (m *Manager) RecordTradeResult(ctx context.Context, pnl decimal.Decimal, riskPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkDailyResetLocked()

	m.state.DailyPnL = m.state.DailyPnL.Add(pnl)
	m.state.DailyRiskUsedPct += riskPct
	m.state.TradesToday++

	if pnl.Sign() < 0 {
		m.state.LossesToday++
		m.state.ConsecutiveLosses++
		m.state.ConsecutiveWins = 0

		m.log.Warn().
			Str("pnl", pnl.String()).
			Int("consecutive_losses", m.state.ConsecutiveLosses).
			Msg("trade loss")
	} else {
		m.state.ConsecutiveWins++
		m.state.ConsecutiveLosses = 0

		m.log.Info().
			Str("pnl", pnl.String()).
			Int("consecutive_wins", m.state.ConsecutiveWins).
			Msg("trade win")
	}

	m.checkCircuitBreakersLocked(ctx)
}

// checkCircuitBreakersLocked trips any breaker whose condition holds.
func (m *Manager) checkCircuitBreakersLocked(ctx context.Context) {
	if account, err := m.broker.Account(ctx); err == nil {
		ddLimit := decimal.NewFromFloat(m.limits.MaxDailyDrawdownPct)
		if account.MaxDrawdown.GreaterThanOrEqual(ddLimit) {
			dd, _ := account.MaxDrawdown.Float64()
			m.haltLocked(fmt.Sprintf("Circuit breaker: Daily drawdown %.2f%% >= %.2f%%",
				dd*100, m.limits.MaxDailyDrawdownPct*100))
		}
	}

	if m.state.ConsecutiveLosses >= m.limits.MaxConsecutiveLosses {
		m.haltLocked(fmt.Sprintf("Circuit breaker: %d consecutive losses", m.state.ConsecutiveLosses))
	}

	if m.limits.MaxDailyLossDollar != nil {
		if m.state.DailyPnL.LessThan(m.limits.MaxDailyLossDollar.Abs().Neg()) {
			m.haltLocked(fmt.Sprintf("Circuit breaker: Daily loss $%s exceeds $%s",
				m.state.DailyPnL, m.limits.MaxDailyLossDollar))
		}
	}
}

func (m *Manager) haltLocked(reason string) {
	if m.state.TradingHalted {
		return
	}
	now := m.Now()
	m.state.TradingHalted = true
	m.state.HaltReason = reason
	m.state.HaltedAt = &now

	m.log.Error().Str("reason", reason).Msg("TRADING HALTED")
}

// ForceHalt halts trading manually.
func (m *Manager) ForceHalt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.haltLocked(reason)
}

// ForceResume clears a halt. This is the only way a halt clears; use with
// caution.
func (m *Manager) ForceResume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.TradingHalted = false
	m.state.HaltReason = ""
	m.state.HaltedAt = nil

	m.log.Warn().Msg("trading manually resumed")
}

// CheckVolatilityLimit reports whether current volatility is acceptable
// relative to its average. Non-positive inputs are treated as acceptable.
func (m *Manager) CheckVolatilityLimit(currentATR, averageATR float64) (bool, string) {
	if currentATR <= 0 || averageATR <= 0 {
		return true, ""
	}

	ratio := currentATR / averageATR
	if ratio > m.limits.MaxATRMultiplier {
		warning := fmt.Sprintf("High volatility detected: ATR ratio %.2fx (limit: %.1fx)",
			ratio, m.limits.MaxATRMultiplier)
		m.log.Warn().Msg(warning)
		return false, warning
	}
	return true, ""
}

// Summary is a point-in-time view of the risk picture for operators.
type Summary struct {
	Limits Limits
	State  State

	Equity      decimal.Decimal
	MaxDrawdown decimal.Decimal

	OpenPositions int
}

// Summary assembles the operator-facing risk report.
func (m *Manager) Summary(ctx context.Context) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkDailyResetLocked()

	account, err := m.broker.Account(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("risk summary: %w", err)
	}
	positions, err := m.broker.Positions(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("risk summary: %w", err)
	}

	return Summary{
		Limits:        m.limits,
		State:         m.state,
		Equity:        account.Equity,
		MaxDrawdown:   account.MaxDrawdown,
		OpenPositions: len(positions),
	}, nil
}
