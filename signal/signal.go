// Package signal turns indicator snapshots into BUY/SELL/HOLD advice with a
// confidence score and human-readable reasons.
package signal

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tradewheel/engine/domain"
)

// Generator produces a trading signal from an indicator snapshot.
type Generator interface {
	Generate(ind domain.TechnicalIndicators) domain.TradingSignal
}

// Thresholds are the RSI levels the rule-based generator scores against.
type Thresholds struct {
	RSIOverbought       float64
	RSIOversold         float64
	RSIStrongOverbought float64
	RSIStrongOversold   float64
}

// DefaultThresholds are the conventional 30/70 bands with 20/80 extremes.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOverbought:       70,
		RSIOversold:         30,
		RSIStrongOverbought: 80,
		RSIStrongOversold:   20,
	}
}

// Technical is a rule-based Generator. It scores points across four
// indicator families (positive is bullish, negative bearish) and maps the
// total to a signal: +3 or more is BUY, -3 or less is SELL, anything in
// between is HOLD.
type Technical struct {
	thresholds Thresholds
	log        zerolog.Logger
}

// NewTechnical builds the rule-based generator.
func NewTechnical(th Thresholds, log zerolog.Logger) *Technical {
	return &Technical{thresholds: th, log: log}
}

// Generate implements Generator.
func (g *Technical) Generate(ind domain.TechnicalIndicators) domain.TradingSignal {
	var reasons []string
	points := 0

	bullishCross := ind.MA20.GreaterThan(ind.MA50)
	bearishCross := ind.MA20.LessThan(ind.MA50)

	switch {
	case bullishCross:
		points += 2
		reasons = append(reasons, fmt.Sprintf("Bullish cross: MA20 (%s) > MA50 (%s)",
			ind.MA20.StringFixed(2), ind.MA50.StringFixed(2)))
	case bearishCross:
		points -= 2
		reasons = append(reasons, fmt.Sprintf("Bearish cross: MA20 (%s) < MA50 (%s)",
			ind.MA20.StringFixed(2), ind.MA50.StringFixed(2)))
	default:
		reasons = append(reasons, "Moving averages converging")
	}

	th := g.thresholds
	switch {
	case ind.RSI < th.RSIStrongOversold:
		points += 3
		reasons = append(reasons, fmt.Sprintf("RSI deeply oversold (%.1f < %.0f)", ind.RSI, th.RSIStrongOversold))
	case ind.RSI < th.RSIOversold:
		points++
		reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f < %.0f)", ind.RSI, th.RSIOversold))
	case ind.RSI > th.RSIStrongOverbought:
		points -= 3
		reasons = append(reasons, fmt.Sprintf("RSI deeply overbought (%.1f > %.0f)", ind.RSI, th.RSIStrongOverbought))
	case ind.RSI > th.RSIOverbought:
		points--
		reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f > %.0f)", ind.RSI, th.RSIOverbought))
	default:
		reasons = append(reasons, fmt.Sprintf("RSI neutral (%.1f)", ind.RSI))
	}

	if ind.CurrentPrice.LessThan(ind.BBLower) {
		points++
		reasons = append(reasons, fmt.Sprintf("Price below lower Bollinger band (%s)", ind.BBLower.StringFixed(2)))
	} else if ind.CurrentPrice.GreaterThan(ind.BBUpper) {
		points--
		reasons = append(reasons, fmt.Sprintf("Price above upper Bollinger band (%s)", ind.BBUpper.StringFixed(2)))
	}

	if bullishCross && ind.CurrentPrice.LessThan(ind.MA20) {
		points++
		reasons = append(reasons, "Price at or below MA20 in an uptrend")
	} else if bearishCross && ind.CurrentPrice.GreaterThan(ind.MA20) {
		points--
		reasons = append(reasons, "Price at or above MA20 in a downtrend")
	}

	var (
		sigType    domain.SignalType
		confidence float64
	)
	switch {
	case points >= 3:
		sigType = domain.SignalBuy
		confidence = math.Min(1.0, float64(points)/6.0)
	case points <= -3:
		sigType = domain.SignalSell
		confidence = math.Min(1.0, math.Abs(float64(points))/6.0)
	default:
		sigType = domain.SignalHold
		confidence = 0.5
	}

	// An extreme RSI vetoes a signal in its own direction: chasing a deeply
	// overbought buy (or oversold sell) is how mean reversion collects.
	if ind.RSI > th.RSIStrongOverbought && sigType == domain.SignalBuy {
		sigType = domain.SignalHold
		confidence = 0.4
		reasons = append(reasons, "Buy vetoed: RSI too high")
	}
	if ind.RSI < th.RSIStrongOversold && sigType == domain.SignalSell {
		sigType = domain.SignalHold
		confidence = 0.4
		reasons = append(reasons, "Sell vetoed: RSI too low")
	}

	g.log.Debug().
		Str("symbol", ind.Symbol).
		Str("signal", string(sigType)).
		Int("points", points).
		Float64("confidence", confidence).
		Msg("signal generated")

	return domain.TradingSignal{
		Symbol:     ind.Symbol,
		Type:       sigType,
		Confidence: confidence,
		Reasons:    reasons,
		Indicators: ind,
	}
}
