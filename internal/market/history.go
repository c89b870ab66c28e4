package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HistoryFeed replays pre-loaded daily bars for backtests. It iterates the
// union of all dates found in the data files and halts when exhausted.
type HistoryFeed struct {
	mu      sync.RWMutex
	symbols []string
	bars    map[string][]Bar // per symbol, sorted ascending by time
	dates   []time.Time
	cursor  int // index into dates of the current step; -1 before first Advance
}

// Daily bars carry no intraday time, so replayed steps are stamped
// mid-session to pass the trading-calendar gate on trading days.
const replayHour = 10

// NewHistoryFeed loads <SYMBOL>.csv files (Date,Open,High,Low,Close,Volume)
// from dir for every watched symbol. A missing file fails construction;
// backtests need complete data up front.
func NewHistoryFeed(dir string, symbols []string) (*HistoryFeed, error) {
	f := &HistoryFeed{
		symbols: append([]string(nil), symbols...),
		bars:    make(map[string][]Bar, len(symbols)),
		cursor:  -1,
	}

	seen := make(map[time.Time]struct{})
	for _, sym := range f.symbols {
		path := filepath.Join(dir, sym+".csv")
		bars, err := readBarsCSV(path, sym)
		if err != nil {
			return nil, fmt.Errorf("load history for %s: %w", sym, err)
		}
		sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
		f.bars[sym] = bars
		for _, b := range bars {
			seen[b.Time] = struct{}{}
		}
	}

	f.dates = make([]time.Time, 0, len(seen))
	for d := range seen {
		f.dates = append(f.dates, d)
	}
	sort.Slice(f.dates, func(i, j int) bool { return f.dates[i].Before(f.dates[j]) })

	if len(f.dates) == 0 {
		return nil, fmt.Errorf("no history bars found in %s", dir)
	}
	return f, nil
}

func readBarsCSV(path, symbol string) ([]Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	var bars []Bar
	for i, rec := range records {
		if len(rec) < 6 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(rec[0]), IST())
		if err != nil {
			return nil, fmt.Errorf("row %d: bad date %q", i+1, rec[0])
		}
		vals := make([]float64, 4)
		for j := 0; j < 4; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad value %q", i+1, rec[j+1])
			}
			vals[j] = v
		}
		volume, err := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad volume %q", i+1, rec[5])
		}
		bars = append(bars, Bar{
			Symbol: symbol,
			Time:   day.Add(replayHour * time.Hour),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: int64(volume),
		})
	}
	return bars, nil
}

// Advance moves to the next replay date. Returns ok=false once all dates
// have been consumed.
func (f *HistoryFeed) Advance() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cursor+1 >= len(f.dates) {
		return time.Time{}, false
	}
	f.cursor++
	return f.dates[f.cursor], true
}

// Current returns the replay date of the last Advance.
func (f *HistoryFeed) Current() (time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.cursor < 0 || f.cursor >= len(f.dates) {
		return time.Time{}, false
	}
	return f.dates[f.cursor], true
}

// Window returns up to lookback bars at or before the current replay date.
func (f *HistoryFeed) Window(_ context.Context, symbol string, lookback int) ([]Bar, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.cursor < 0 {
		return nil, fmt.Errorf("history feed not advanced")
	}
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}

	current := f.dates[f.cursor]
	end := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(current) })
	start := end - lookback
	if start < 0 {
		start = 0
	}
	out := make([]Bar, end-start)
	copy(out, bars[start:end])
	return out, nil
}

// CurrentPrice returns the close at the current replay date, or
// ErrPriceUnavailable when the symbol has no bar for that date.
func (f *HistoryFeed) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.cursor < 0 {
		return 0, ErrPriceUnavailable
	}
	current := f.dates[f.cursor]
	for _, b := range f.bars[symbol] {
		if b.Time.Equal(current) {
			return b.Close, nil
		}
	}
	return 0, ErrPriceUnavailable
}
