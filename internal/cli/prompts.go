package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/display"
	"github.com/omkale/finpup/internal/sim"
)

// runInteractiveMode walks the user through a run setup with prompts.
func runInteractiveMode(cfg *config.Config) error {
	display.Banner()

	mode, err := promptMode()
	if err != nil {
		return err
	}

	symbols, err := promptSymbols(cfg.Symbols)
	if err != nil {
		return err
	}
	cfg.Symbols = symbols

	dataDir := ""
	if mode == sim.ModeBacktest {
		dataDir, err = promptDataDir(cfg.HistoryDir)
		if err != nil {
			return err
		}
	}

	if ok, err := promptConfirm(cfg, mode); err != nil || !ok {
		if err == nil {
			fmt.Println("cancelled")
		}
		return err
	}

	return runLoop(cfg, mode, dataDir)
}

func promptMode() (sim.Mode, error) {
	var choice string
	prompt := &survey.Select{
		Message: "Select run mode:",
		Options: []string{
			"paper    - random-walk simulator, persisted portfolio",
			"live     - real quotes from Yahoo Finance",
			"backtest - replay historical CSV bars",
		},
		Default: "paper    - random-walk simulator, persisted portfolio",
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	return sim.Mode(strings.Fields(choice)[0]), nil
}

func promptSymbols(defaults []string) ([]string, error) {
	var selected []string
	prompt := &survey.MultiSelect{
		Message: "Select symbols to watch:",
		Options: defaults,
		Default: defaults,
	}
	err := survey.AskOne(prompt, &selected, survey.WithValidator(func(val interface{}) error {
		answers, ok := val.([]survey.OptionAnswer)
		if !ok || len(answers) == 0 {
			return fmt.Errorf("select at least one symbol")
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return selected, nil
}

func promptDataDir(defaultDir string) (string, error) {
	var dir string
	prompt := &survey.Input{
		Message: "Directory with <SYMBOL>.csv history files:",
		Default: defaultDir,
	}
	err := survey.AskOne(prompt, &dir, survey.WithValidator(func(val interface{}) error {
		s, _ := val.(string)
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("directory is required")
		}
		return nil
	}))
	return strings.TrimSpace(dir), err
}

func promptConfirm(cfg *config.Config, mode sim.Mode) (bool, error) {
	strategyName := "rule engine"
	if cfg.ModelKey() != "" {
		strategyName = cfg.LLMProvider + " model"
	}
	fmt.Printf("\nmode: %s · %d symbols · %s strategy · capital ₹%.0f\n\n",
		mode, len(cfg.Symbols), strategyName, cfg.InitialCapital)

	var confirmed bool
	prompt := &survey.Confirm{
		Message: "Start trading?",
		Default: true,
	}
	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}

// confirmReset asks before wiping persisted portfolio state.
func confirmReset(capital float64) bool {
	var confirmed bool
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Wipe all positions and trades, restart with ₹%.2f?", capital),
		Default: false,
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false
	}
	return confirmed
}
