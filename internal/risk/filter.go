// Package risk clamps trade intents to position-size, cash, and lot
// constraints before they reach the ledger.
package risk

import (
	"log"
	"sort"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/portfolio"
	"github.com/omkale/finpup/internal/strategy"
)

// Filter adjusts or rejects intents against portfolio state. SELL intents
// pass through unmodified; liquidation is never blocked here, only by the
// ledger's own holding check.
type Filter struct {
	sizeLimit float64
	minLot    int
	maxLot    int
}

func NewFilter(cfg *config.Config) *Filter {
	return &Filter{
		sizeLimit: cfg.PositionSizeLimit,
		minLot:    cfg.MinLot,
		maxLot:    cfg.MaxLot,
	}
}

// Apply evaluates intents per symbol with cash treated as progressively
// consumed within the pass. Symbols are visited in sorted order so a run
// is reproducible.
func (f *Filter) Apply(intents map[string]strategy.Intent, snap portfolio.Snapshot) map[string]strategy.Intent {
	if len(intents) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(intents))
	for sym := range intents {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	remaining := snap.Cash
	ceiling := snap.TotalValue * f.sizeLimit

	out := make(map[string]strategy.Intent, len(intents))
	for _, sym := range symbols {
		intent := intents[sym]
		if intent.Side != portfolio.SideBuy {
			out[sym] = intent
			continue
		}
		if intent.Price <= 0 || intent.Quantity <= 0 {
			continue
		}

		cost := float64(intent.Quantity) * intent.Price
		if cost > remaining {
			log.Printf("risk: dropping buy %s, cost %.2f exceeds remaining cash %.2f", sym, cost, remaining)
			continue
		}

		if cost > ceiling {
			maxQuantity := int(ceiling / intent.Price)
			if maxQuantity < f.minLot {
				log.Printf("risk: dropping buy %s, ceiling leaves less than minimum lot", sym)
				continue
			}
			if maxQuantity > f.maxLot {
				maxQuantity = f.maxLot
			}
			intent.Quantity = maxQuantity
			cost = float64(intent.Quantity) * intent.Price
		}

		remaining -= cost
		out[sym] = intent
	}
	return out
}
