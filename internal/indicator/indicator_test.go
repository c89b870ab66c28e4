package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omkale/finpup/internal/market"
)

func barsFromCloses(closes []float64) []market.Bar {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Symbol: "TEST",
			Time:   t0.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	return closes
}

func TestComputeRejectsShortWindow(t *testing.T) {
	bars := barsFromCloses(flatCloses(MinLookback-1, 100))

	f, err := Compute(bars)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeFlatWindow(t *testing.T) {
	f, err := Compute(barsFromCloses(flatCloses(50, 100)))
	require.NoError(t, err)

	assert.Equal(t, "TEST", f.Symbol)
	assert.InDelta(t, 100, f.Price, 0.001)
	assert.InDelta(t, 100, f.SMA20, 0.001)
	assert.InDelta(t, 100, f.SMA50, 0.001)
	// No movement at all leaves the oscillator at neutral.
	assert.InDelta(t, 50, f.RSI, 0.001)
	assert.InDelta(t, 100, f.BollUpper, 0.001)
	assert.InDelta(t, 100, f.BollLower, 0.001)
	assert.InDelta(t, 1.0, f.VolumeRatio, 0.001)
	assert.InDelta(t, 0, f.Return1, 0.001)
	assert.InDelta(t, 0, f.Return5, 0.001)
	assert.Equal(t, CrossNone, f.Crossover)
}

func TestComputeRisingWindow(t *testing.T) {
	// Closes 1..60; the last 20 average 50.5, the last 50 average 35.5.
	f, err := Compute(barsFromCloses(risingCloses(60)))
	require.NoError(t, err)

	assert.InDelta(t, 60, f.Price, 0.001)
	assert.InDelta(t, 50.5, f.SMA20, 0.001)
	assert.InDelta(t, 35.5, f.SMA50, 0.001)
	// Monotonic gains saturate RSI at 100.
	assert.InDelta(t, 100, f.RSI, 0.001)
	assert.InDelta(t, 1.0/59.0, f.Return1, 0.0001)
	assert.InDelta(t, 5.0/55.0, f.Return5, 0.0001)

	// Highs and lows are close±1 over the trailing 20 bars (41..60).
	assert.InDelta(t, 40, f.Support, 0.001)
	assert.InDelta(t, 61, f.Resistance, 0.001)

	assert.Greater(t, f.BollUpper, f.BollMid)
	assert.Less(t, f.BollLower, f.BollMid)
	assert.InDelta(t, 50.5, f.BollMid, 0.001)
}

func TestCrossoverBullish(t *testing.T) {
	// Fifty flat bars then a jump: the short average overtakes the long
	// average on the latest bar only.
	closes := append(flatCloses(50, 100), 200)

	f, err := Compute(barsFromCloses(closes))
	require.NoError(t, err)
	assert.Equal(t, CrossBullish, f.Crossover)
}

func TestCrossoverBearish(t *testing.T) {
	closes := append(flatCloses(50, 100), 50)

	f, err := Compute(barsFromCloses(closes))
	require.NoError(t, err)
	assert.Equal(t, CrossBearish, f.Crossover)
}

func TestCrossoverUndefinedAtExactMinimum(t *testing.T) {
	// Fifty bars leave no previous window to compare against.
	f, err := Compute(barsFromCloses(risingCloses(50)))
	require.NoError(t, err)
	assert.Equal(t, CrossNone, f.Crossover)
}

func TestVolumeRatioSpike(t *testing.T) {
	bars := barsFromCloses(flatCloses(50, 100))
	bars[len(bars)-1].Volume = 3000

	f, err := Compute(bars)
	require.NoError(t, err)
	// 3000 against a 20-bar average of (19*1000+3000)/20 = 1100.
	assert.InDelta(t, 3000.0/1100.0, f.VolumeRatio, 0.001)
}
