package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/indicator"
	"github.com/omkale/finpup/internal/market"
	"github.com/omkale/finpup/internal/memory"
	"github.com/omkale/finpup/internal/news"
	"github.com/omkale/finpup/internal/portfolio"
	"github.com/omkale/finpup/internal/risk"
	"github.com/omkale/finpup/internal/strategy"
)

// scriptedFeed replays a fixed timestamp sequence with static bars.
type scriptedFeed struct {
	mu          sync.Mutex
	times       []time.Time
	idx         int
	bars        map[string][]market.Bar
	windowCalls int
	priceCalls  int
}

func (f *scriptedFeed) Advance() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.times) {
		return time.Time{}, false
	}
	ts := f.times[f.idx]
	f.idx++
	return ts, true
}

func (f *scriptedFeed) Window(_ context.Context, symbol string, lookback int) ([]market.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windowCalls++
	bars := f.bars[symbol]
	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	return append([]market.Bar(nil), bars...), nil
}

func (f *scriptedFeed) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	bars := f.bars[symbol]
	if len(bars) == 0 {
		return 0, market.ErrPriceUnavailable
	}
	return bars[len(bars)-1].Close, nil
}

func (f *scriptedFeed) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windowCalls
}

func (f *scriptedFeed) quoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priceCalls
}

// scriptedStrategy emits its intents on the first Decide call only and
// records what it was shown.
type scriptedStrategy struct {
	mu       sync.Mutex
	intents  map[string]strategy.Intent
	decided  int
	recalled [][]memory.Entry
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Decide(
	_ context.Context,
	_ map[string]*indicator.Features,
	_ portfolio.Snapshot,
	recalled []memory.Entry,
	_ []news.Article,
) map[string]strategy.Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decided++
	s.recalled = append(s.recalled, recalled)
	if s.decided == 1 {
		return s.intents
	}
	return nil
}

func (s *scriptedStrategy) decideCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decided
}

func flatBars(symbol string, n int, price float64) []market.Bar {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, market.IST())
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Symbol: symbol,
			Time:   t0.AddDate(0, 0, i),
			Open:   price, High: price + 1, Low: price - 1, Close: price,
			Volume: 10_000,
		}
	}
	return bars
}

func testDeps(feed market.Feed, strat strategy.Strategy) Deps {
	cfg := config.DefaultConfig()
	return Deps{
		Feed:     feed,
		Calendar: market.NewCalendar(),
		Strategy: strat,
		Filter:   risk.NewFilter(cfg),
		Ledger:   portfolio.NewLedger(1_000_000, 0.20, 100),
		Memory:   memory.NewStore(200, 500, 0.6),
	}
}

// tradingTS is a Friday mid-session.
func tradingTS(day int) time.Time {
	return time.Date(2024, 3, day, 10, 30, 0, 0, market.IST())
}

func TestBacktestRunsToDone(t *testing.T) {
	feed := &scriptedFeed{
		// A trading day, a Saturday the calendar skips, another trading day.
		times: []time.Time{tradingTS(15), tradingTS(16), tradingTS(18)},
		bars:  map[string][]market.Bar{"AAA": flatBars("AAA", 60, 100)},
	}
	strat := &scriptedStrategy{intents: map[string]strategy.Intent{
		"AAA": {Symbol: "AAA", Side: portfolio.SideBuy, Quantity: 100, Price: 100},
	}}

	deps := testDeps(feed, strat)
	loop, err := New(Options{Mode: ModeBacktest, Symbols: []string{"AAA"}, Lookback: 60}, deps)
	require.NoError(t, err)

	snapshots := loop.Subscribe()
	require.NoError(t, loop.Start())
	loop.Wait()

	assert.Equal(t, StateDone, loop.State())
	// The weekend timestamp never reaches the strategy.
	assert.Equal(t, 2, strat.decideCount())

	// The first step's intent was applied.
	pos, ok := deps.Ledger.Position("AAA")
	require.True(t, ok)
	assert.Equal(t, 100, pos.Quantity)
	assert.InDelta(t, 990_000, deps.Ledger.Cash(), 0.001)

	// Published snapshots carry the applied portfolio. The worker has
	// exited, so everything is already buffered.
	var last Snapshot
	for draining := true; draining; {
		select {
		case snap := <-snapshots:
			last = snap
		default:
			draining = false
		}
	}
	assert.Equal(t, 2, last.Step)
	assert.InDelta(t, 990_000, last.Portfolio.Cash, 0.001)
}

func TestRecallPrecedesRecording(t *testing.T) {
	feed := &scriptedFeed{
		times: []time.Time{tradingTS(15)},
		bars:  map[string][]market.Bar{"AAA": flatBars("AAA", 60, 100)},
	}
	strat := &scriptedStrategy{}

	loop, err := New(Options{Mode: ModeBacktest, Symbols: []string{"AAA"}, Lookback: 60}, testDeps(feed, strat))
	require.NoError(t, err)
	require.NoError(t, loop.Start())
	loop.Wait()

	// The first decision sees no evidence from its own step even though
	// observations were recorded during it.
	require.Len(t, strat.recalled, 1)
	assert.Empty(t, strat.recalled[0])
}

func TestStartWhileRunningRejected(t *testing.T) {
	feed := &scriptedFeed{
		times: []time.Time{tradingTS(15), tradingTS(18), tradingTS(19), tradingTS(20)},
		bars:  map[string][]market.Bar{"AAA": flatBars("AAA", 60, 100)},
	}
	strat := &scriptedStrategy{}

	loop, err := New(Options{
		Mode:         ModePaper,
		Symbols:      []string{"AAA"},
		Lookback:     60,
		StepInterval: time.Hour, // parks the worker after the first step
	}, testDeps(feed, strat))
	require.NoError(t, err)

	require.NoError(t, loop.Start())
	assert.ErrorIs(t, loop.Start(), ErrAlreadyRunning)

	loop.Stop()
	assert.Equal(t, StateIdle, loop.State())

	// Idle again: a fresh Start is accepted.
	require.NoError(t, loop.Start())
	loop.Stop()
}

func TestClosedMarketSkipsPipeline(t *testing.T) {
	feed := &scriptedFeed{
		// Saturday: the gate closes the step before any data fetch.
		times: []time.Time{time.Date(2024, 3, 16, 10, 30, 0, 0, market.IST())},
		bars:  map[string][]market.Bar{"AAA": flatBars("AAA", 60, 100)},
	}
	strat := &scriptedStrategy{intents: map[string]strategy.Intent{
		"AAA": {Symbol: "AAA", Side: portfolio.SideBuy, Quantity: 100, Price: 100},
	}}

	deps := testDeps(feed, strat)
	// An open position forces the snapshot to value a holding.
	require.True(t, deps.Ledger.Buy("AAA", 100, 100, "carried over"))

	loop, err := New(Options{
		Mode:         ModePaper,
		Symbols:      []string{"AAA"},
		Lookback:     60,
		StepInterval: time.Hour,
	}, deps)
	require.NoError(t, err)

	snapshots := loop.Subscribe()
	require.NoError(t, loop.Start())

	// The closed-market snapshot is still published for observers, with
	// the holding valued at average cost.
	select {
	case snap := <-snapshots:
		assert.False(t, snap.MarketStatus.Open())
		assert.InDelta(t, 1_000_000, snap.Portfolio.TotalValue, 0.001)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published for closed market")
	}

	loop.Stop()

	assert.Equal(t, 0, feed.calls())
	// No quote is fetched while the market is closed, held position or not.
	assert.Equal(t, 0, feed.quoteCalls())
	assert.Equal(t, 0, strat.decideCount())
	assert.InDelta(t, 990_000, deps.Ledger.Cash(), 0.001)
	assert.Len(t, deps.Ledger.Trades(), 1)
}

func TestStopDrainsCurrentStep(t *testing.T) {
	// Enough open-session steps that the feed cannot run dry before Stop.
	times := make([]time.Time, 500)
	for i := range times {
		times[i] = tradingTS(18)
	}
	feed := &scriptedFeed{
		times: times,
		bars:  map[string][]market.Bar{"AAA": flatBars("AAA", 60, 100)},
	}
	strat := &scriptedStrategy{intents: map[string]strategy.Intent{
		"AAA": {Symbol: "AAA", Side: portfolio.SideBuy, Quantity: 100, Price: 100},
	}}

	deps := testDeps(feed, strat)
	loop, err := New(Options{
		Mode:         ModePaper,
		Symbols:      []string{"AAA"},
		Lookback:     60,
		StepInterval: 5 * time.Millisecond,
	}, deps)
	require.NoError(t, err)

	snapshots := loop.Subscribe()
	require.NoError(t, loop.Start())

	select {
	case <-snapshots:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}
	loop.Stop()

	assert.Equal(t, StateIdle, loop.State())
	// The intent from the completed first step landed in the ledger; the
	// worker never left a step half applied.
	pos, ok := deps.Ledger.Position("AAA")
	require.True(t, ok)
	assert.Equal(t, 100, pos.Quantity)
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	_, err := New(Options{Mode: ModePaper}, Deps{})
	assert.Error(t, err)
}
