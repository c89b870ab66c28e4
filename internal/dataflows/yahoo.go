package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/market"
)

// YahooSource serves live price windows and quotes from Yahoo Finance.
// It implements market.Feed; Advance just stamps the poll time (live data
// has no replay cursor).
type YahooSource struct {
	cache  *CacheManager
	suffix string
}

func NewYahooSource(cfg *config.Config) *YahooSource {
	cacheDir := filepath.Join(cfg.CacheDir, "yahoo")
	return &YahooSource{
		cache: NewCacheManager(cacheDir, 15*time.Minute, cfg.CacheEnabled),
		// NSE listings on Yahoo carry the .NS suffix.
		suffix: ".NS",
	}
}

func (y *YahooSource) ticker(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + y.suffix
}

func (y *YahooSource) Advance() (time.Time, bool) {
	return time.Now(), true
}

// Window fetches up to lookback daily bars, oldest first.
func (y *YahooSource) Window(_ context.Context, symbol string, lookback int) ([]market.Bar, error) {
	cacheKey := map[string]any{"symbol": symbol, "lookback": lookback, "day": time.Now().Format("2006-01-02")}

	var cached []market.Bar
	if y.cache.Get("yahoo", "window", cacheKey, &cached) {
		return cached, nil
	}

	end := time.Now()
	// Calendar days overshoot trading days; fetch double and trim.
	start := end.AddDate(0, 0, -lookback*2)

	var bars []market.Bar
	err := WithRetry(DefaultRetryConfig(), func() error {
		params := &chart.Params{
			Symbol:   y.ticker(symbol),
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}

		iter := chart.Get(params)
		bars = bars[:0]
		for iter.Next() {
			b := iter.Bar()
			bars = append(bars, market.Bar{
				Symbol: symbol,
				Time:   time.Unix(int64(b.Timestamp), 0),
				Open:   decimalFloat(b.Open),
				High:   decimalFloat(b.High),
				Low:    decimalFloat(b.Low),
				Close:  decimalFloat(b.Close),
				Volume: int64(b.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("fetch chart for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	y.cache.Set("yahoo", "window", cacheKey, bars)
	return bars, nil
}

// CurrentPrice fetches the latest regular-market price.
func (y *YahooSource) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	q, err := quote.Get(y.ticker(symbol))
	if err != nil || q == nil {
		return 0, market.ErrPriceUnavailable
	}
	if q.RegularMarketPrice <= 0 {
		return 0, market.ErrPriceUnavailable
	}
	return q.RegularMarketPrice, nil
}

func decimalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
