package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// EquityPoint is one bar of the backtest equity curve. Drawdown is the
// signed distance from the running peak (zero or negative).
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
	Cash      decimal.Decimal
	Drawdown  float64
}

// Trade is one filled order during the replay.
type Trade struct {
	Timestamp time.Time
	Symbol    string
	Side      string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	PnL       decimal.Decimal
}

// Metrics is the full performance report for a run.
type Metrics struct {
	StartDate    time.Time
	EndDate      time.Time
	DurationDays int

	TotalReturnPct      float64
	AnnualizedReturnPct float64

	SharpeRatio             float64
	SortinoRatio            float64
	CalmarRatio             float64
	MaxDrawdownPct          float64
	MaxDrawdownDurationDays int

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRatePct    float64
	ProfitFactor  float64

	AvgWin      decimal.Decimal
	AvgLoss     decimal.Decimal
	AvgTrade    decimal.Decimal
	LargestWin  decimal.Decimal
	LargestLoss decimal.Decimal

	AvgRiskRewardRatio float64
	Expectancy         decimal.Decimal

	FinalEquity decimal.Decimal
	PeakEquity  decimal.Decimal

	AvgDailyReturnPct       float64
	VolatilityAnnualizedPct float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
}

const tradingDaysPerYear = 252

// CalculateMetrics derives the performance report from an equity curve and
// trade list. riskFreeRate is annual (0.02 for 2%).
func CalculateMetrics(curve []EquityPoint, trades []Trade, initialCapital decimal.Decimal, riskFreeRate float64) Metrics {
	if len(curve) == 0 {
		return Metrics{}
	}

	m := Metrics{
		StartDate:   curve[0].Timestamp,
		EndDate:     curve[len(curve)-1].Timestamp,
		FinalEquity: curve[len(curve)-1].Equity,
	}
	m.DurationDays = int(m.EndDate.Sub(m.StartDate).Hours() / 24)

	if initialCapital.Sign() > 0 {
		ret, _ := m.FinalEquity.Sub(initialCapital).Div(initialCapital).Float64()
		m.TotalReturnPct = ret * 100
	}

	years := float64(m.DurationDays) / 365.25
	if years > 0 && initialCapital.Sign() > 0 {
		growth, _ := m.FinalEquity.Div(initialCapital).Float64()
		m.AnnualizedReturnPct = (math.Pow(growth, 1/years) - 1) * 100
	}

	// Per-bar returns.
	returns := make([]float64, 0, len(curve)-1)
	peak := curve[0].Equity
	for i, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if i > 0 && curve[i-1].Equity.Sign() != 0 {
			r, _ := p.Equity.Sub(curve[i-1].Equity).Div(curve[i-1].Equity).Float64()
			returns = append(returns, r)
		}
		if p.Drawdown < m.MaxDrawdownPct/100 {
			m.MaxDrawdownPct = p.Drawdown * 100
		}
	}
	m.PeakEquity = peak
	m.MaxDrawdownDurationDays = maxDrawdownDuration(curve)

	mean, sd := meanStd(returns)
	m.AvgDailyReturnPct = mean * 100
	m.VolatilityAnnualizedPct = sd * math.Sqrt(tradingDaysPerYear) * 100

	excessMean := mean - riskFreeRate/tradingDaysPerYear
	if sd > 0 {
		m.SharpeRatio = excessMean / sd * math.Sqrt(tradingDaysPerYear)
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if _, dsd := meanStd(downside); dsd > 0 {
		m.SortinoRatio = excessMean / dsd * math.Sqrt(tradingDaysPerYear)
	}

	if m.MaxDrawdownPct != 0 {
		m.CalmarRatio = m.AnnualizedReturnPct / math.Abs(m.MaxDrawdownPct)
	}

	m.applyTradeStats(trades)
	return m
}

// applyTradeStats aggregates the trade list. Entries with zero PnL are
// opening fills that realized nothing; they count toward TotalTrades but
// are invisible to the win/loss statistics and streaks.
func (m *Metrics) applyTradeStats(trades []Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var winSum, lossSum, total decimal.Decimal
	realized := 0
	for _, t := range trades {
		switch {
		case t.PnL.Sign() > 0:
			m.WinningTrades++
			winSum = winSum.Add(t.PnL)
			if t.PnL.GreaterThan(m.LargestWin) {
				m.LargestWin = t.PnL
			}
		case t.PnL.Sign() < 0:
			m.LosingTrades++
			lossSum = lossSum.Add(t.PnL.Abs())
			if t.PnL.LessThan(m.LargestLoss) {
				m.LargestLoss = t.PnL
			}
		default:
			continue
		}
		realized++
		total = total.Add(t.PnL)
	}
	if realized == 0 {
		return
	}

	m.WinRatePct = float64(m.WinningTrades) / float64(realized) * 100

	if lossSum.Sign() > 0 {
		pf, _ := winSum.Div(lossSum).Float64()
		m.ProfitFactor = pf
	}
	if m.WinningTrades > 0 {
		m.AvgWin = winSum.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(m.LosingTrades))).Neg()
	}
	m.AvgTrade = total.Div(decimal.NewFromInt(int64(realized)))
	m.Expectancy = m.AvgTrade

	if m.AvgLoss.Sign() != 0 {
		rr, _ := m.AvgWin.Div(m.AvgLoss).Abs().Float64()
		m.AvgRiskRewardRatio = rr
	}

	m.MaxConsecutiveWins = maxConsecutive(trades, true)
	m.MaxConsecutiveLosses = maxConsecutive(trades, false)
}

// maxDrawdownDuration counts the longest run of bars spent below the
// running equity peak.
func maxDrawdownDuration(curve []EquityPoint) int {
	var maxRun, run int
	peak := decimal.Zero

	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if p.Equity.LessThan(peak) {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 0
		}
	}
	return maxRun
}

func maxConsecutive(trades []Trade, win bool) int {
	var maxRun, run int
	for _, t := range trades {
		if t.PnL.Sign() == 0 {
			continue
		}
		if (t.PnL.Sign() > 0) == win {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 0
		}
	}
	return maxRun
}

func meanStd(xs []float64) (mean, sd float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	if len(xs) < 2 {
		return mean, 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	// Sample standard deviation.
	sd = math.Sqrt(sumSq / float64(len(xs)-1))
	return mean, sd
}
