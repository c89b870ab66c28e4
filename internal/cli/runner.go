package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/dataflows"
	"github.com/omkale/finpup/internal/display"
	"github.com/omkale/finpup/internal/market"
	"github.com/omkale/finpup/internal/memory"
	"github.com/omkale/finpup/internal/news"
	"github.com/omkale/finpup/internal/portfolio"
	"github.com/omkale/finpup/internal/risk"
	"github.com/omkale/finpup/internal/sim"
	"github.com/omkale/finpup/internal/storage"
	"github.com/omkale/finpup/internal/strategy"
)

// runLoop assembles the pipeline for the requested mode and drives it to
// completion (backtest) or until interrupted (live, paper).
func runLoop(cfg *config.Config, mode sim.Mode, dataDir string) error {
	ctx := context.Background()

	feed, err := buildFeed(cfg, mode, dataDir)
	if err != nil {
		return err
	}

	strat, err := strategy.ForConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build strategy: %w", err)
	}

	ledger := portfolio.NewLedger(cfg.InitialCapital, cfg.PositionSizeLimit, cfg.MinLot)
	mem := memory.NewStore(cfg.ShortTermCapacity, cfg.LongTermCapacity, cfg.RelevanceThreshold)
	filter := risk.NewFilter(cfg)

	var newsSource news.Source
	var store *storage.Store
	durable := mode != sim.ModeBacktest

	if durable {
		newsSource = dataflows.NewNewsClient(cfg)

		store, err = storage.Open(cfg.StateDB)
		if err != nil {
			return fmt.Errorf("open state db: %w", err)
		}
		defer store.Close()

		if err := restoreLedger(store, ledger); err != nil {
			return err
		}
	}

	loop, err := sim.New(sim.Options{
		Mode:         mode,
		Symbols:      cfg.Symbols,
		Lookback:     cfg.Lookback,
		StepInterval: time.Duration(cfg.StepIntervalSec) * time.Second,
		RetryBackoff: time.Duration(cfg.RetryBackoffSec) * time.Second,
		RecallLimit:  cfg.RecallLimit,
		Durable:      durable,
		RiskProfile:  "standard",
	}, sim.Deps{
		Feed:     feed,
		Calendar: market.NewCalendar(),
		News:     newsSource,
		Strategy: strat,
		Filter:   filter,
		Ledger:   ledger,
		Memory:   mem,
		Store:    store,
	})
	if err != nil {
		return err
	}

	display.Banner()
	renderer := display.NewRenderer(cfg.Debug)
	snapshots := loop.Subscribe()

	started := time.Now()
	if err := loop.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	workerDone := make(chan struct{})
	go func() {
		loop.Wait()
		close(workerDone)
	}()

	var last sim.Snapshot
	for {
		select {
		case snap := <-snapshots:
			last = snap
			renderer.Render(snap)
		case <-sigCh:
			fmt.Println("\nshutting down, finishing the current step")
			loop.Stop()
			drain(snapshots, renderer, &last)
			renderer.Summary(last, time.Since(started))
			return nil
		case <-workerDone:
			drain(snapshots, renderer, &last)
			renderer.Summary(last, time.Since(started))
			return nil
		}
	}
}

func buildFeed(cfg *config.Config, mode sim.Mode, dataDir string) (market.Feed, error) {
	switch mode {
	case sim.ModeLive:
		return dataflows.NewYahooSource(cfg), nil
	case sim.ModePaper:
		return market.NewRandomWalkFeed(cfg.Symbols, cfg.Lookback, time.Now().UnixNano()), nil
	case sim.ModeBacktest:
		if dataDir == "" {
			dataDir = cfg.HistoryDir
		}
		feed, err := market.NewHistoryFeed(dataDir, cfg.Symbols)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		return feed, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// restoreLedger replays persisted cash and positions into a fresh ledger.
// A missing state row means a fresh start with configured capital.
func restoreLedger(store *storage.Store, ledger *portfolio.Ledger) error {
	state, err := store.LoadState()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		return nil
	}

	trades, err := store.Trades(0)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	// The journal query is newest first; the ledger keeps append order.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}

	ledger.Restore(state.Cash, state.InitialCapital, state.Positions, trades)
	log.Printf("restored portfolio: cash %.2f, %d positions, %d journaled trades",
		state.Cash, len(state.Positions), len(trades))
	return nil
}

func drain(snapshots <-chan sim.Snapshot, renderer *display.Renderer, last *sim.Snapshot) {
	for {
		select {
		case snap := <-snapshots:
			*last = snap
			renderer.Render(snap)
		default:
			return
		}
	}
}
