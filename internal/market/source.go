package market

import (
	"context"
	"errors"
	"time"
)

// ErrPriceUnavailable reports that a source has no current price for a
// symbol. Callers treat this as a normal condition, not a failure.
var ErrPriceUnavailable = errors.New("price unavailable")

// Bar is one price/volume observation for a symbol.
type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Source provides price/volume data for watched symbols.
type Source interface {
	// Window returns up to lookback bars for symbol, oldest first.
	Window(ctx context.Context, symbol string, lookback int) ([]Bar, error)
	// CurrentPrice returns the latest price, or ErrPriceUnavailable.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Feed extends Source with step iteration. Advance moves the feed to the
// next observation and returns its timestamp; ok is false once a finite
// feed (historical replay) is exhausted.
type Feed interface {
	Source
	Advance() (ts time.Time, ok bool)
}
