package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWalkFeedWarmup(t *testing.T) {
	feed := NewRandomWalkFeed([]string{"RELIANCE", "TCS"}, 60, 42)

	bars, err := feed.Window(context.Background(), "RELIANCE", 50)
	require.NoError(t, err)
	assert.Len(t, bars, 50)

	for _, b := range bars {
		assert.Greater(t, b.Close, 0.0)
		assert.GreaterOrEqual(t, b.High, b.Close)
		assert.LessOrEqual(t, b.Low, b.Close)
		assert.Greater(t, b.Volume, int64(0))
	}
}

func TestRandomWalkFeedAdvanceAppends(t *testing.T) {
	feed := NewRandomWalkFeed([]string{"INFY"}, 10, 7)

	before, err := feed.CurrentPrice(context.Background(), "INFY")
	require.NoError(t, err)

	_, ok := feed.Advance()
	require.True(t, ok)

	bars, err := feed.Window(context.Background(), "INFY", 100)
	require.NoError(t, err)
	assert.Len(t, bars, 11)

	// The latest close is the quoted price.
	after, err := feed.CurrentPrice(context.Background(), "INFY")
	require.NoError(t, err)
	assert.InDelta(t, bars[len(bars)-1].Close, after, 0.0001)
	assert.Greater(t, before, 0.0)
}

func TestRandomWalkFeedDeterministicForSeed(t *testing.T) {
	a := NewRandomWalkFeed([]string{"SBIN"}, 20, 99)
	b := NewRandomWalkFeed([]string{"SBIN"}, 20, 99)

	barsA, err := a.Window(context.Background(), "SBIN", 20)
	require.NoError(t, err)
	barsB, err := b.Window(context.Background(), "SBIN", 20)
	require.NoError(t, err)

	for i := range barsA {
		assert.InDelta(t, barsA[i].Close, barsB[i].Close, 0.0001)
	}
}

func TestRandomWalkFeedUnknownSymbol(t *testing.T) {
	feed := NewRandomWalkFeed([]string{"ITC"}, 10, 1)

	_, err := feed.Window(context.Background(), "NOPE", 10)
	assert.Error(t, err)

	_, err = feed.CurrentPrice(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}
