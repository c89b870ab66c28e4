// Package indicator turns a raw price/volume window into a fixed feature
// vector. All computations are pure functions of the input window.
package indicator

import (
	"errors"
	"math"

	"github.com/omkale/finpup/internal/market"
)

// MinLookback is the minimum window length required to compute a full
// feature vector.
const MinLookback = 50

// ErrInsufficientData is returned when the window is shorter than
// MinLookback. Callers skip the symbol for the step; the error never
// stands in for a zero-signal vector.
var ErrInsufficientData = errors.New("insufficient data for indicators")

const (
	shortWindow  = 20
	longWindow   = 50
	rsiPeriod    = 14
	bandWindow   = 20
	bandWidth    = 2.0
	rangeWindow  = 20
	mediumReturn = 5
)

// Crossover signal values.
const (
	CrossNone    = 0
	CrossBullish = 1
	CrossBearish = -1
)

// Features is the per-symbol feature vector consumed by decision
// strategies and memory scoring. Undefined values are normalized to
// neutral sentinels (RSI 50, ratios 0) rather than NaN.
type Features struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`

	SMA20 float64 `json:"sma_20"`
	SMA50 float64 `json:"sma_50"`
	RSI   float64 `json:"rsi"`

	BollUpper float64 `json:"boll_upper"`
	BollMid   float64 `json:"boll_mid"`
	BollLower float64 `json:"boll_lower"`

	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`

	VolumeRatio float64 `json:"volume_ratio"`
	Return1     float64 `json:"return_1"`
	Return5     float64 `json:"return_5"`

	Crossover int `json:"crossover"`
}

// Compute derives the feature vector from bars (oldest first).
func Compute(bars []market.Bar) (*Features, error) {
	if len(bars) < MinLookback {
		return nil, ErrInsufficientData
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}

	last := len(bars) - 1
	f := &Features{
		Symbol: bars[last].Symbol,
		Price:  closes[last],
	}

	f.SMA20 = mean(closes[len(closes)-shortWindow:])
	f.SMA50 = mean(closes[len(closes)-longWindow:])
	f.RSI = rsi(closes, rsiPeriod)

	bandSlice := closes[len(closes)-bandWindow:]
	f.BollMid = mean(bandSlice)
	sd := stddev(bandSlice, f.BollMid)
	f.BollUpper = f.BollMid + bandWidth*sd
	f.BollLower = f.BollMid - bandWidth*sd

	f.Support, f.Resistance = trailingRange(bars[len(bars)-rangeWindow:])

	volMA := mean(volumes[len(volumes)-shortWindow:])
	if volMA > 0 {
		f.VolumeRatio = volumes[last] / volMA
	}

	f.Return1 = periodReturn(closes, 1)
	f.Return5 = periodReturn(closes, mediumReturn)
	f.Crossover = crossover(closes)

	return f, nil
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64, mu float64) float64 {
	sum := 0.0
	for _, v := range vals {
		d := v - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)))
}

// rsi computes the bounded [0,100] momentum oscillator from average gains
// and losses over the period. With no losses in the window the value
// saturates at 100; with no data movement it stays at the neutral 50.
func rsi(closes []float64, period int) float64 {
	start := len(closes) - period - 1
	gains, losses := 0.0, 0.0
	for i := start + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if gains == 0 && losses == 0 {
		return 50
	}
	if losses == 0 {
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs)
}

func trailingRange(bars []market.Bar) (support, resistance float64) {
	support = bars[0].Low
	resistance = bars[0].High
	for _, b := range bars[1:] {
		if b.Low < support {
			support = b.Low
		}
		if b.High > resistance {
			resistance = b.High
		}
	}
	return support, resistance
}

func periodReturn(closes []float64, period int) float64 {
	last := len(closes) - 1
	base := closes[last-period]
	if base == 0 {
		return 0
	}
	return (closes[last] - base) / base
}

// crossover detects a short/long moving-average cross on the latest bar.
func crossover(closes []float64) int {
	if len(closes) < longWindow+1 {
		return CrossNone
	}
	prev := closes[:len(closes)-1]
	currDiff := mean(closes[len(closes)-shortWindow:]) - mean(closes[len(closes)-longWindow:])
	prevDiff := mean(prev[len(prev)-shortWindow:]) - mean(prev[len(prev)-longWindow:])
	switch {
	case prevDiff <= 0 && currDiff > 0:
		return CrossBullish
	case prevDiff >= 0 && currDiff < 0:
		return CrossBearish
	default:
		return CrossNone
	}
}
