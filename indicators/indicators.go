// Package indicators computes the technical indicator snapshot that feeds
// signal generation: moving averages, RSI, Bollinger Bands, volume average,
// and ATR over OHLCV bars.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/domain"
)

// ErrInsufficientData is returned when the bar history is shorter than the
// longest lookback window.
var ErrInsufficientData = errors.New("indicators: insufficient data")

// Default lookback windows.
const (
	MAShortPeriod = 20
	MALongPeriod  = 50
	RSIPeriod     = 14
	BBPeriod      = 20
	VolumePeriod  = 10
	ATRPeriod     = 14
)

// SMA is the simple moving average of the last period closes. Returns zero
// when there are fewer bars than the period.
func SMA(bars []domain.Bar, period int) decimal.Decimal {
	if period <= 0 || len(bars) < period {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, b := range bars[len(bars)-period:] {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// RSI is the relative strength index over the last period close-to-close
// moves, using simple averages of gains and losses. Returns 50 when there
// is not enough history, 100 when there were no losses in the window.
func RSI(bars []domain.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 50
	}

	var gain, loss float64
	window := bars[len(bars)-period-1:]
	for i := 1; i < len(window); i++ {
		delta, _ := window[i].Close.Sub(window[i-1].Close).Float64()
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// BollingerBands returns (upper, middle, lower) for the last period closes
// at stdDev sample standard deviations around the moving average. All three
// are zero when there is not enough history.
func BollingerBands(bars []domain.Bar, period int, stdDev float64) (upper, middle, lower decimal.Decimal) {
	if period <= 1 || len(bars) < period {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}

	middle = SMA(bars, period)
	mean, _ := middle.Float64()

	var sumSq float64
	for _, b := range bars[len(bars)-period:] {
		c, _ := b.Close.Float64()
		d := c - mean
		sumSq += d * d
	}
	// Sample standard deviation.
	sd := math.Sqrt(sumSq / float64(period-1))

	band := decimal.NewFromFloat(sd * stdDev)
	return middle.Add(band), middle, middle.Sub(band)
}

// ATR is the simple moving average of the true range over the last period
// bars. Returns nil when there is not enough history.
func ATR(bars []domain.Bar, period int) *decimal.Decimal {
	if period <= 0 || len(bars) < period+1 {
		return nil
	}

	sum := decimal.Zero
	window := bars[len(bars)-period-1:]
	for i := 1; i < len(window); i++ {
		tr := trueRange(window[i], window[i-1].Close)
		sum = sum.Add(tr)
	}

	atr := sum.Div(decimal.NewFromInt(int64(period)))
	return &atr
}

func trueRange(b domain.Bar, prevClose decimal.Decimal) decimal.Decimal {
	hl := b.High.Sub(b.Low)
	hc := b.High.Sub(prevClose).Abs()
	lc := b.Low.Sub(prevClose).Abs()

	tr := hl
	if hc.GreaterThan(tr) {
		tr = hc
	}
	if lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// VolumeAverage is the mean volume over the last period bars.
func VolumeAverage(bars []domain.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}

	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.Volume
	}
	return sum / float64(period)
}

// Compute derives the full indicator snapshot for symbol from its bar
// history. At least MALongPeriod bars are required.
func Compute(symbol string, bars []domain.Bar) (domain.TechnicalIndicators, error) {
	if len(bars) < MALongPeriod {
		return domain.TechnicalIndicators{}, fmt.Errorf("%w: %s has %d bars, need %d",
			ErrInsufficientData, symbol, len(bars), MALongPeriod)
	}

	last := bars[len(bars)-1]
	upper, middle, lower := BollingerBands(bars, BBPeriod, 2.0)

	return domain.TechnicalIndicators{
		Symbol:        symbol,
		CurrentPrice:  last.Close,
		MA20:          SMA(bars, MAShortPeriod),
		MA50:          SMA(bars, MALongPeriod),
		RSI:           RSI(bars, RSIPeriod),
		BBUpper:       upper,
		BBMiddle:      middle,
		BBLower:       lower,
		VolumeAvg:     VolumeAverage(bars, VolumePeriod),
		CurrentVolume: last.Volume,
		ATR:           ATR(bars, ATRPeriod),
	}, nil
}
