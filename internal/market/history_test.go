package market

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHistoryCSV(t *testing.T, dir, symbol string, days int, startPrice float64) {
	t.Helper()

	var sb []byte
	sb = append(sb, "Date,Open,High,Low,Close,Volume\n"...)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, IST())
	price := startPrice
	for i := 0; i < days; i++ {
		row := fmt.Sprintf("%s,%.2f,%.2f,%.2f,%.2f,%d\n",
			day.Format("2006-01-02"), price, price+2, price-2, price+1, 10000)
		sb = append(sb, row...)
		day = day.AddDate(0, 0, 1)
		price += 1
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, symbol+".csv"), sb, 0o644))
}

func TestHistoryFeedReplay(t *testing.T) {
	dir := t.TempDir()
	writeHistoryCSV(t, dir, "RELIANCE", 5, 100)

	feed, err := NewHistoryFeed(dir, []string{"RELIANCE"})
	require.NoError(t, err)

	// Window before the first Advance is an error.
	_, err = feed.Window(context.Background(), "RELIANCE", 10)
	assert.Error(t, err)

	ts, ok := feed.Advance()
	require.True(t, ok)
	// Replay steps are stamped mid-session.
	assert.Equal(t, 10, ts.In(IST()).Hour())
	assert.Equal(t, 1, ts.In(IST()).Day())

	bars, err := feed.Window(context.Background(), "RELIANCE", 10)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.InDelta(t, 101, bars[0].Close, 0.001)

	price, err := feed.CurrentPrice(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.InDelta(t, 101, price, 0.001)
}

func TestHistoryFeedWindowGrowsWithCursor(t *testing.T) {
	dir := t.TempDir()
	writeHistoryCSV(t, dir, "TCS", 5, 200)

	feed, err := NewHistoryFeed(dir, []string{"TCS"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok := feed.Advance()
		require.True(t, ok)
	}

	bars, err := feed.Window(context.Background(), "TCS", 10)
	require.NoError(t, err)
	assert.Len(t, bars, 3)

	// Lookback truncates from the oldest end.
	bars, err = feed.Window(context.Background(), "TCS", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.InDelta(t, 202, bars[0].Close, 0.001)
	assert.InDelta(t, 203, bars[1].Close, 0.001)
}

func TestHistoryFeedExhausts(t *testing.T) {
	dir := t.TempDir()
	writeHistoryCSV(t, dir, "INFY", 3, 100)

	feed, err := NewHistoryFeed(dir, []string{"INFY"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok := feed.Advance()
		require.True(t, ok)
	}
	_, ok := feed.Advance()
	assert.False(t, ok)
	// Exhaustion is sticky.
	_, ok = feed.Advance()
	assert.False(t, ok)
}

func TestHistoryFeedMissingSymbolBar(t *testing.T) {
	dir := t.TempDir()
	writeHistoryCSV(t, dir, "SBIN", 5, 100)
	writeHistoryCSV(t, dir, "ITC", 3, 400)

	feed, err := NewHistoryFeed(dir, []string{"SBIN", "ITC"})
	require.NoError(t, err)

	// Step past ITC's last date; its price becomes unavailable while
	// SBIN still quotes.
	for i := 0; i < 4; i++ {
		_, ok := feed.Advance()
		require.True(t, ok)
	}

	_, err = feed.CurrentPrice(context.Background(), "ITC")
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	price, err := feed.CurrentPrice(context.Background(), "SBIN")
	require.NoError(t, err)
	assert.InDelta(t, 104, price, 0.001)
}

func TestHistoryFeedMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	writeHistoryCSV(t, dir, "LT", 3, 100)

	_, err := NewHistoryFeed(dir, []string{"LT", "MARUTI"})
	assert.Error(t, err)
}
