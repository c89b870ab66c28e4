package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/indicator"
	"github.com/omkale/finpup/internal/memory"
	"github.com/omkale/finpup/internal/news"
	"github.com/omkale/finpup/internal/portfolio"
)

const systemPrompt = `You are an expert stock trader for large-cap NSE equities.
Analyze the JSON context (technical features, portfolio, memory, news) and
respond with trading decisions as a JSON object keyed by symbol:
{"SYMBOL": {"action": "buy"|"sell", "quantity": N, "price": P, "reason": "...", "confidence": 0.0-1.0}}
Only include symbols you would act on. Respect these risk rules:
- maximum position size: 20% of portfolio value
- minimum 100 shares per order, maximum 2000 shares per position
- prefer stop-loss exits over holding losers`

// Model is the model-backed strategy: it serializes the decision context
// into a prompt, invokes a chat model, and parses the response into the
// common Intent shape. An unparseable response is a recoverable event:
// the affected symbols simply contribute no intent.
type Model struct {
	chat     einomodel.BaseChatModel
	provider string
}

// NewModel constructs the chat model for the configured provider.
func NewModel(ctx context.Context, cfg *config.Config) (*Model, error) {
	var (
		chat einomodel.BaseChatModel
		err  error
	)

	switch cfg.LLMProvider {
	case "openai":
		maxTokens := 4096
		chat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BackendURL,
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: &maxTokens,
		})
	case "deepseek":
		chat, err = deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    cfg.DeepSeekAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: 4096,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", cfg.LLMProvider, err)
	}

	return &Model{chat: chat, provider: cfg.LLMProvider}, nil
}

func (m *Model) Name() string { return "model:" + m.provider }

// decisionContext is the structured document sent to the model.
type decisionContext struct {
	Task      string           `json:"task"`
	Market    []symbolContext  `json:"current_market_data"`
	Portfolio portfolioContext `json:"portfolio"`
	Memories  []memoryContext  `json:"relevant_memories"`
	News      []newsContext    `json:"recent_news"`
}

type symbolContext struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	DailyReturn  string  `json:"daily_return"`
	RSI          float64 `json:"rsi"`
	Trend        string  `json:"trend"`
	VolumeSignal string  `json:"volume_signal"`
	Support      float64 `json:"support"`
	Resistance   float64 `json:"resistance"`
}

type portfolioContext struct {
	Cash       float64           `json:"cash"`
	TotalValue float64           `json:"total_value"`
	Returns    string            `json:"returns"`
	Positions  []positionContext `json:"positions"`
}

type positionContext struct {
	Symbol       string  `json:"symbol"`
	Quantity     int     `json:"quantity"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	Return       string  `json:"return"`
}

type memoryContext struct {
	Kind       string  `json:"kind"`
	Symbol     string  `json:"symbol"`
	Importance float64 `json:"importance"`
	Payload    any     `json:"payload"`
}

type newsContext struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Date    string `json:"date"`
}

func buildContext(
	features map[string]*indicator.Features,
	snap portfolio.Snapshot,
	memories []memory.Entry,
	articles []news.Article,
) decisionContext {
	doc := decisionContext{Task: "make_trading_decisions"}

	for _, f := range features {
		trend := "bearish"
		if f.SMA20 > f.SMA50 {
			trend = "bullish"
		}
		volumeSignal := "normal"
		if f.VolumeRatio > 1.5 {
			volumeSignal = "high"
		}
		doc.Market = append(doc.Market, symbolContext{
			Symbol:       f.Symbol,
			Price:        f.Price,
			DailyReturn:  fmt.Sprintf("%.1f%%", f.Return1*100),
			RSI:          f.RSI,
			Trend:        trend,
			VolumeSignal: volumeSignal,
			Support:      f.Support,
			Resistance:   f.Resistance,
		})
	}

	doc.Portfolio = portfolioContext{
		Cash:       snap.Cash,
		TotalValue: snap.TotalValue,
		Returns:    fmt.Sprintf("%.1f%%", snap.Returns*100),
	}
	for _, pos := range snap.Positions {
		doc.Portfolio.Positions = append(doc.Portfolio.Positions, positionContext{
			Symbol:       pos.Symbol,
			Quantity:     pos.Quantity,
			EntryPrice:   pos.AvgCost,
			CurrentPrice: pos.CurrentPrice,
			Return:       fmt.Sprintf("%.1f%%", pos.Return*100),
		})
	}

	for _, m := range memories {
		doc.Memories = append(doc.Memories, memoryContext{
			Kind:       string(m.Kind),
			Symbol:     m.Symbol,
			Importance: m.Importance,
			Payload:    m.Payload,
		})
	}

	for _, a := range articles {
		doc.News = append(doc.News, newsContext{
			Title:   a.Title,
			Summary: a.Summary,
			Date:    a.PublishedAt.Format("2006-01-02"),
		})
	}
	return doc
}

// Decide invokes the model and parses its response. All failures are
// recovered here; the caller only ever sees fewer intents.
func (m *Model) Decide(
	ctx context.Context,
	features map[string]*indicator.Features,
	snap portfolio.Snapshot,
	memories []memory.Entry,
	articles []news.Article,
) map[string]Intent {
	if len(features) == 0 {
		return nil
	}

	doc := buildContext(features, snap, memories, articles)
	payload, err := json.Marshal(doc)
	if err != nil {
		log.Printf("model strategy: marshal context: %v", err)
		return nil
	}

	resp, err := m.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(string(payload)),
	})
	if err != nil {
		log.Printf("model strategy: %s call failed: %v", m.provider, err)
		return nil
	}

	intents := ParseDecisions(resp.Content)
	if len(intents) == 0 {
		return nil
	}

	// Fill prices the model omitted from current features and drop intents
	// for symbols outside this step's feature set.
	out := make(map[string]Intent, len(intents))
	for sym, intent := range intents {
		f, ok := features[sym]
		if !ok {
			continue
		}
		if intent.Price <= 0 {
			intent.Price = f.Price
		}
		out[sym] = intent
	}
	return out
}
