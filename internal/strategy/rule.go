package strategy

import (
	"context"
	"math"
	"sort"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/indicator"
	"github.com/omkale/finpup/internal/memory"
	"github.com/omkale/finpup/internal/news"
	"github.com/omkale/finpup/internal/portfolio"
)

// Rule is the deterministic threshold strategy. Thresholds are heuristic
// policy parameters taken from configuration, not tuned constants.
type Rule struct {
	entryRSI      float64
	looseRSI      float64
	overboughtRSI float64
	longMABuy     float64
	shortMABuy    float64
	longMASell    float64
	volumeConfirm float64
	stopLoss      float64
	takeProfit    float64
	fraction      float64
	minLot        int
	maxLot        int
}

func NewRule(cfg *config.Config) *Rule {
	return &Rule{
		entryRSI:      cfg.EntryRSICeiling,
		looseRSI:      cfg.LooseRSICeiling,
		overboughtRSI: cfg.OverboughtRSI,
		longMABuy:     cfg.LongMABuyBand,
		shortMABuy:    cfg.ShortMABuyBand,
		longMASell:    cfg.LongMASellCeiling,
		volumeConfirm: cfg.VolumeConfirm,
		stopLoss:      cfg.StopLossPct,
		takeProfit:    cfg.TakeProfitPct,
		fraction:      cfg.PositionFraction,
		minLot:        cfg.MinLot,
		maxLot:        cfg.MaxLot,
	}
}

func (r *Rule) Name() string { return "rule" }

// positionSize allocates a fixed fraction of total portfolio value,
// clamped to the lot bounds.
func (r *Rule) positionSize(totalValue, price float64) int {
	if price <= 0 {
		return 0
	}
	quantity := int(math.Floor(totalValue * r.fraction / price))
	if quantity < r.minLot {
		quantity = r.minLot
	}
	if quantity > r.maxLot {
		quantity = r.maxLot
	}
	return quantity
}

func (r *Rule) Decide(
	_ context.Context,
	features map[string]*indicator.Features,
	snap portfolio.Snapshot,
	_ []memory.Entry,
	_ []news.Article,
) map[string]Intent {
	intents := make(map[string]Intent)

	symbols := make([]string, 0, len(features))
	for sym := range features {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		f := features[sym]
		price := f.Price
		if price <= 0 {
			continue
		}

		pos, held := snap.Positions[sym]
		if !held {
			if r.buySignal(f) {
				intents[sym] = Intent{
					Symbol:   sym,
					Side:     portfolio.SideBuy,
					Quantity: r.positionSize(snap.TotalValue, price),
					Price:    price,
					Reason:   "technical indicators showing buying opportunity",
				}
			}
			continue
		}

		if r.sellSignal(f, pos.AvgCost) {
			intents[sym] = Intent{
				Symbol:   sym,
				Side:     portfolio.SideSell,
				Quantity: pos.Quantity,
				Price:    price,
				Reason:   "exit signal from technical indicators or profit targets",
			}
		}
	}
	return intents
}

func (r *Rule) buySignal(f *indicator.Features) bool {
	// A volume ratio of 0 is the no-data sentinel and counts as confirmed.
	volumeOK := f.VolumeRatio == 0 || f.VolumeRatio > r.volumeConfirm

	aboveShortMA := f.Price > f.SMA20

	switch {
	case f.RSI < r.entryRSI && aboveShortMA:
		return true
	case aboveShortMA && f.Price < f.SMA50*r.longMABuy:
		return true
	case aboveShortMA && f.RSI < r.looseRSI && volumeOK:
		return true
	case aboveShortMA && f.Price < f.SMA20*r.shortMABuy:
		return true
	default:
		return false
	}
}

func (r *Rule) sellSignal(f *indicator.Features, avgCost float64) bool {
	profitPct := 0.0
	if avgCost > 0 {
		profitPct = (f.Price - avgCost) / avgCost
	}

	switch {
	case f.RSI > r.overboughtRSI:
		return true
	case f.Price < f.SMA20:
		return true
	case f.Price > f.SMA50*r.longMASell:
		return true
	case profitPct < -r.stopLoss:
		return true
	case profitPct > r.takeProfit:
		return true
	default:
		return false
	}
}
