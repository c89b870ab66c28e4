// Package strategy maps features, memory, and news into trade intents.
// Both strategy variants produce the same Intent shape, keeping the risk
// filter and ledger strategy-agnostic.
package strategy

import (
	"context"
	"log"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/indicator"
	"github.com/omkale/finpup/internal/memory"
	"github.com/omkale/finpup/internal/news"
	"github.com/omkale/finpup/internal/portfolio"
)

// Intent is a proposed, not-yet-applied trade instruction. It is produced
// by a strategy, possibly adjusted by the risk filter, then applied to the
// ledger or discarded.
type Intent struct {
	Symbol     string         `json:"symbol"`
	Side       portfolio.Side `json:"side"`
	Quantity   int            `json:"quantity"`
	Price      float64        `json:"price"`
	Reason     string         `json:"reason"`
	Confidence float64        `json:"confidence,omitempty"`
}

// Strategy is the common decision contract. Only symbols with an
// actionable intent appear in the result; absence means no action this
// step. Implementations never mutate their inputs.
type Strategy interface {
	Name() string
	Decide(
		ctx context.Context,
		features map[string]*indicator.Features,
		snap portfolio.Snapshot,
		memories []memory.Entry,
		articles []news.Article,
	) map[string]Intent
}

// ForConfig selects the strategy at startup: model-backed when the
// configured provider has a credential, rule-based otherwise. Construction
// failure of a selected model strategy is fatal (the run must not start
// half-configured).
func ForConfig(ctx context.Context, cfg *config.Config) (Strategy, error) {
	if cfg.ModelKey() == "" {
		log.Printf("no %s credential found, using rule-based strategy", cfg.LLMProvider)
		return NewRule(cfg), nil
	}
	return NewModel(ctx, cfg)
}
