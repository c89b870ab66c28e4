package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/portfolio"
	"github.com/omkale/finpup/internal/sim"
	"github.com/omkale/finpup/internal/storage"
)

const version = "finpup v0.4.0"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "finpup",
		Short: "finpup - autonomous paper-trading agent for NSE equities",
		Long: `finpup is an autonomous trading agent. It watches a basket of NSE symbols,
computes technical indicators, keeps a layered memory of what it has seen,
and trades a simulated portfolio with either a rule engine or an LLM-backed
strategy. State survives restarts in a local sqlite database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Debug = true
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveMode(cfg)
		},
	}

	rootCmd.AddCommand(newRunCmd(cfg))
	rootCmd.AddCommand(newBacktestCmd(cfg))
	rootCmd.AddCommand(newStatusCmd(cfg))
	rootCmd.AddCommand(newResetCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return rootCmd
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop against live or simulated prices",
		Long: `Run the continuous trading loop. With --paper prices come from a seeded
random-walk simulator; otherwise quotes are fetched from Yahoo Finance.
Portfolio state is persisted after every step and restored on restart.
Stop with Ctrl-C; the current step always completes before exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paper, _ := cmd.Flags().GetBool("paper")
			applySymbolsFlag(cmd, cfg)

			mode := sim.ModeLive
			if paper {
				mode = sim.ModePaper
			}
			return runLoop(cfg, mode, "")
		},
	}

	cmd.Flags().Bool("paper", false, "Use the random-walk price simulator instead of live quotes")
	cmd.Flags().StringSlice("symbols", nil, "Comma-separated watch list (overrides config)")
	return cmd
}

func newBacktestCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical bars through the full decision pipeline",
		Long: `Replay daily bars from CSV files, one step per trading day, until the
data is exhausted. Expects one <SYMBOL>.csv per symbol with the columns
Date,Open,High,Low,Close,Volume. Nothing is persisted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data")
			applySymbolsFlag(cmd, cfg)
			return runLoop(cfg, sim.ModeBacktest, dataDir)
		},
	}

	cmd.Flags().String("data", "", "Directory holding <SYMBOL>.csv files")
	cmd.Flags().StringSlice("symbols", nil, "Comma-separated watch list (overrides config)")
	cmd.MarkFlagRequired("data")
	return cmd
}

func newStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.Open(cfg.StateDB)
			if err != nil {
				return fmt.Errorf("open state db: %w", err)
			}
			defer store.Close()

			state, err := store.LoadState()
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}
			if state == nil {
				fmt.Println("no saved state; run `finpup run` to start trading")
				return nil
			}
			printState(state)

			trades, err := store.Trades(10)
			if err != nil {
				return fmt.Errorf("load trades: %w", err)
			}
			printTrades(trades)
			return nil
		},
	}
}

func newResetCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe the portfolio and start over with fresh capital",
		RunE: func(cmd *cobra.Command, args []string) error {
			capital, _ := cmd.Flags().GetFloat64("capital")
			if capital <= 0 {
				capital = cfg.InitialCapital
			}
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !confirmReset(capital) {
				fmt.Println("reset cancelled")
				return nil
			}

			store, err := storage.Open(cfg.StateDB)
			if err != nil {
				return fmt.Errorf("open state db: %w", err)
			}
			defer store.Close()

			if err := store.ClearTrades(); err != nil {
				return fmt.Errorf("clear trades: %w", err)
			}
			err = store.SaveState(storage.PersistedState{
				Cash:           capital,
				InitialCapital: capital,
				RiskProfile:    "standard",
				Positions:      nil,
				UpdatedAt:      time.Now(),
			})
			if err != nil {
				return fmt.Errorf("save state: %w", err)
			}
			fmt.Printf("portfolio reset with ₹%.2f\n", capital)
			return nil
		},
	}

	cmd.Flags().Float64("capital", 0, "Starting capital (defaults to configured initial capital)")
	cmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	return cmd
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cfg)
		},
	})

	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func applySymbolsFlag(cmd *cobra.Command, cfg *config.Config) {
	symbols, _ := cmd.Flags().GetStringSlice("symbols")
	cleaned := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) > 0 {
		cfg.Symbols = cleaned
	}
}

func printState(state *storage.PersistedState) {
	fmt.Printf("cash:            ₹%.2f\n", state.Cash)
	fmt.Printf("initial capital: ₹%.2f\n", state.InitialCapital)
	fmt.Printf("updated:         %s\n", state.UpdatedAt.Format(time.RFC3339))
	if len(state.Positions) == 0 {
		fmt.Println("no open positions")
		return
	}
	fmt.Println("positions:")
	for _, pos := range state.Positions {
		fmt.Printf("  %-12s %6d @ ₹%.2f\n", pos.Symbol, pos.Quantity, pos.AvgCost)
	}
}

func printTrades(trades []portfolio.Trade) {
	if len(trades) == 0 {
		return
	}
	fmt.Println("recent trades:")
	for _, t := range trades {
		fmt.Printf("  %s %-4s %6d %-12s @ ₹%.2f  %s\n",
			t.Timestamp.Format("2006-01-02 15:04"), t.Side, t.Quantity, t.Symbol, t.Price, t.Reason)
	}
}

func showConfig(cfg *config.Config) {
	fmt.Println("finpup configuration")
	fmt.Printf("  symbols:          %s\n", strings.Join(cfg.Symbols, ", "))
	fmt.Printf("  initial capital:  ₹%.2f\n", cfg.InitialCapital)
	fmt.Printf("  position limit:   %.0f%% of portfolio per symbol\n", cfg.PositionSizeLimit*100)
	fmt.Printf("  lot bounds:       %d - %d shares\n", cfg.MinLot, cfg.MaxLot)
	fmt.Printf("  step interval:    %ds\n", cfg.StepIntervalSec)
	fmt.Printf("  state db:         %s\n", cfg.StateDB)
	fmt.Printf("  llm provider:     %s", cfg.LLMProvider)
	if cfg.ModelKey() == "" {
		fmt.Print(" (no credential, rule strategy active)")
	}
	fmt.Println()
}
