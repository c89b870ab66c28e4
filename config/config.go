package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process-wide configuration. It is built once at startup and
// passed explicitly to component constructors.
type Config struct {
	DataDir    string `json:"data_dir"`
	CacheDir   string `json:"cache_dir"`
	ResultsDir string `json:"results_dir"`
	HistoryDir string `json:"history_dir"`
	StateDB    string `json:"state_db"`

	Symbols []string `json:"symbols"`

	// Trading parameters.
	InitialCapital    float64 `json:"initial_capital"`
	PositionSizeLimit float64 `json:"position_size_limit"` // fraction of total value per symbol
	PositionFraction  float64 `json:"position_fraction"`   // fraction of total value per new buy
	MinLot            int     `json:"min_lot"`
	MaxLot            int     `json:"max_lot"`
	StopLossPct       float64 `json:"stop_loss_pct"`
	TakeProfitPct     float64 `json:"take_profit_pct"`

	// Rule strategy thresholds. These are tuned heuristics, not optimized
	// values, and are kept configurable for experiments.
	EntryRSICeiling   float64 `json:"entry_rsi_ceiling"`
	LooseRSICeiling   float64 `json:"loose_rsi_ceiling"`
	OverboughtRSI     float64 `json:"overbought_rsi"`
	LongMABuyBand     float64 `json:"long_ma_buy_band"`
	ShortMABuyBand    float64 `json:"short_ma_buy_band"`
	LongMASellCeiling float64 `json:"long_ma_sell_ceiling"`
	VolumeConfirm     float64 `json:"volume_confirm"`

	// Memory parameters.
	ShortTermCapacity  int     `json:"short_term_capacity"`
	LongTermCapacity   int     `json:"long_term_capacity"`
	RelevanceThreshold float64 `json:"relevance_threshold"`
	RecallLimit        int     `json:"recall_limit"`

	// Model-backed strategy.
	LLMProvider    string `json:"llm_provider"`
	LLMModel       string `json:"llm_model"`
	BackendURL     string `json:"backend_url"`
	OpenAIAPIKey   string `json:"-"`
	DeepSeekAPIKey string `json:"-"`

	// Loop timing.
	StepIntervalSec int `json:"step_interval_sec"`
	RetryBackoffSec int `json:"retry_backoff_sec"`

	Lookback     int  `json:"lookback"`
	CacheEnabled bool `json:"cache_enabled"`
	Debug        bool `json:"debug"`
}

// DefaultSymbols is the default watch list (large-cap NSE names).
var DefaultSymbols = []string{
	"RELIANCE", "TCS", "HDFCBANK", "INFY", "ICICIBANK",
	"HINDUNILVR", "SBIN", "BHARTIARTL", "ITC", "KOTAKBANK",
	"LT", "AXISBANK", "ASIANPAINT", "MARUTI",
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := &Config{
		DataDir:    filepath.Join(currentDir, "data"),
		CacheDir:   filepath.Join(currentDir, "data", "cache"),
		ResultsDir: filepath.Join(currentDir, "results"),
		HistoryDir: filepath.Join(currentDir, "data", "history"),
		StateDB:    filepath.Join(currentDir, "data", "finpup.db"),

		Symbols: append([]string(nil), DefaultSymbols...),

		InitialCapital:    1_000_000,
		PositionSizeLimit: 0.20,
		PositionFraction:  0.10,
		MinLot:            100,
		MaxLot:            2000,
		StopLossPct:       0.015,
		TakeProfitPct:     0.02,

		EntryRSICeiling:   50,
		LooseRSICeiling:   60,
		OverboughtRSI:     70,
		LongMABuyBand:     1.05,
		ShortMABuyBand:    1.02,
		LongMASellCeiling: 1.08,
		VolumeConfirm:     1.1,

		ShortTermCapacity:  200,
		LongTermCapacity:   500,
		RelevanceThreshold: 0.6,
		RecallLimit:        20,

		LLMProvider: "deepseek",
		LLMModel:    "deepseek-chat",
		BackendURL:  "",

		StepIntervalSec: 60,
		RetryBackoffSec: 10,

		Lookback:     60,
		CacheEnabled: true,
		Debug:        false,
	}

	// Load environment variables from .env file, then overlay.
	_ = godotenv.Load()
	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("FINPUP_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("FINPUP_CACHE_DIR"); val != "" {
		c.CacheDir = val
	}
	if val := os.Getenv("FINPUP_RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("FINPUP_HISTORY_DIR"); val != "" {
		c.HistoryDir = val
	}
	if val := os.Getenv("FINPUP_STATE_DB"); val != "" {
		c.StateDB = val
	}

	if val := os.Getenv("FINPUP_SYMBOLS"); val != "" {
		parts := strings.Split(val, ",")
		symbols := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			c.Symbols = symbols
		}
	}

	if val := os.Getenv("FINPUP_INITIAL_CAPITAL"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil && v > 0 {
			c.InitialCapital = v
		}
	}
	if val := os.Getenv("FINPUP_POSITION_SIZE_LIMIT"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil && v > 0 && v <= 1 {
			c.PositionSizeLimit = v
		}
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}

	if val := os.Getenv("FINPUP_STEP_INTERVAL"); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			c.StepIntervalSec = v
		}
	}
	if val := os.Getenv("FINPUP_CACHE_ENABLED"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = v
		}
	}
	if val := os.Getenv("FINPUP_DEBUG"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			c.Debug = v
		}
	}
}

// ModelKey returns the API key for the configured LLM provider, empty when
// the provider has no credential so callers fall back to the rule strategy.
func (c *Config) ModelKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "deepseek":
		return c.DeepSeekAPIKey
	}
	return ""
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.CacheDir, c.ResultsDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
