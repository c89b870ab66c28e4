package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RandomWalkFeed generates synthetic prices for paper-trading runs. Each
// Advance appends one bar per symbol from a log-normal random walk with a
// per-symbol volatility. Deterministic for a fixed seed.
type RandomWalkFeed struct {
	mu         sync.RWMutex
	rng        *rand.Rand
	symbols    []string
	bars       map[string][]Bar
	volatility map[string]float64
	maxWindow  int
	now        func() time.Time
}

// NewRandomWalkFeed seeds a feed with warmup bars so indicator lookbacks are
// satisfied from the first step.
func NewRandomWalkFeed(symbols []string, warmup int, seed int64) *RandomWalkFeed {
	if warmup < 1 {
		warmup = 1
	}
	f := &RandomWalkFeed{
		rng:        rand.New(rand.NewSource(seed)),
		symbols:    append([]string(nil), symbols...),
		bars:       make(map[string][]Bar, len(symbols)),
		volatility: make(map[string]float64, len(symbols)),
		maxWindow:  256,
		now:        time.Now,
	}

	for _, sym := range f.symbols {
		f.volatility[sym] = 0.01 + f.rng.Float64()*0.02
		price := f.initialPrice(sym)
		start := f.now().Add(-time.Duration(warmup) * 24 * time.Hour)
		for i := 0; i < warmup; i++ {
			price = f.nextPrice(sym, price)
			f.bars[sym] = append(f.bars[sym], f.makeBar(sym, price, start.Add(time.Duration(i)*24*time.Hour)))
		}
	}
	return f
}

func (f *RandomWalkFeed) initialPrice(symbol string) float64 {
	switch symbol {
	case "RELIANCE", "TCS":
		return 2000 + f.rng.Float64()*1000
	case "HDFCBANK", "INFY", "ICICIBANK":
		return 1000 + f.rng.Float64()*1000
	default:
		return 300 + f.rng.Float64()*700
	}
}

func (f *RandomWalkFeed) nextPrice(symbol string, price float64) float64 {
	change := f.rng.NormFloat64() * f.volatility[symbol]
	next := price * (1 + change)
	if next < 1 {
		next = 1
	}
	return next
}

func (f *RandomWalkFeed) makeBar(symbol string, close float64, ts time.Time) Bar {
	spread := close * f.volatility[symbol]
	return Bar{
		Symbol: symbol,
		Time:   ts,
		Open:   close - spread*f.rng.Float64(),
		High:   close + spread*f.rng.Float64(),
		Low:    math.Max(1, close-spread*(1+f.rng.Float64())),
		Close:  close,
		Volume: 10_000 + f.rng.Int63n(1_000_000),
	}
}

// Advance appends one fresh bar per symbol.
func (f *RandomWalkFeed) Advance() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ts := f.now()
	for _, sym := range f.symbols {
		window := f.bars[sym]
		last := window[len(window)-1].Close
		window = append(window, f.makeBar(sym, f.nextPrice(sym, last), ts))
		if len(window) > f.maxWindow {
			window = window[len(window)-f.maxWindow:]
		}
		f.bars[sym] = window
	}
	return ts, true
}

func (f *RandomWalkFeed) Window(_ context.Context, symbol string, lookback int) ([]Bar, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	window, ok := f.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	if len(window) > lookback {
		window = window[len(window)-lookback:]
	}
	out := make([]Bar, len(window))
	copy(out, window)
	return out, nil
}

func (f *RandomWalkFeed) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	window, ok := f.bars[symbol]
	if !ok || len(window) == 0 {
		return 0, ErrPriceUnavailable
	}
	return window[len(window)-1].Close, nil
}
