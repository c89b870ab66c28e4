package strategy

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/omkale/finpup/internal/portfolio"
)

// rawDecision is the structured shape the model is asked to return.
type rawDecision struct {
	Action     string  `json:"action"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

var (
	fenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	symbolRe = regexp.MustCompile(`^[A-Z][A-Z0-9&-]{1,19}$`)
	sharesRe = regexp.MustCompile(`(\d+)\s+shares`)
	priceRe  = regexp.MustCompile(`(?:₹|\$|@|at)\s*(\d+(?:\.\d+)?)`)
)

// ParseDecisions converts a model response into intents. It tries a strict
// structured parse first and falls back to a permissive text scan; if both
// fail the result is empty. Raw text never reaches the ledger.
func ParseDecisions(response string) map[string]Intent {
	if intents := parseStructured(response); len(intents) > 0 {
		return intents
	}
	return parseText(response)
}

func parseStructured(response string) map[string]Intent {
	candidate := strings.TrimSpace(response)
	if m := fenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	var raw map[string]rawDecision
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		// The decision object may be embedded in surrounding prose.
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start < 0 || end <= start {
			return nil
		}
		if err := json.Unmarshal([]byte(candidate[start:end+1]), &raw); err != nil {
			return nil
		}
	}

	intents := make(map[string]Intent)
	for sym, d := range raw {
		intent, ok := intentFrom(sym, d.Action, d.Quantity, d.Price, d.Reason, d.Confidence)
		if ok {
			intents[sym] = intent
		}
	}
	return intents
}

// parseText scans free text for symbol header lines followed by buy/sell
// statements with quantity and price tokens.
func parseText(response string) map[string]Intent {
	intents := make(map[string]Intent)
	currentSymbol := ""

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "#*:- "))
		if line == "" {
			continue
		}

		if symbolRe.MatchString(line) {
			currentSymbol = line
			continue
		}
		if currentSymbol == "" {
			continue
		}

		lower := strings.ToLower(line)
		action := ""
		switch {
		case strings.Contains(lower, "buy"):
			action = "buy"
		case strings.Contains(lower, "sell"):
			action = "sell"
		default:
			continue
		}

		quantityMatch := sharesRe.FindStringSubmatch(line)
		priceMatch := priceRe.FindStringSubmatch(line)
		if quantityMatch == nil || priceMatch == nil {
			continue
		}
		quantity, _ := strconv.Atoi(quantityMatch[1])
		price, _ := strconv.ParseFloat(priceMatch[1], 64)

		if intent, ok := intentFrom(currentSymbol, action, quantity, price, line, 0); ok {
			intents[currentSymbol] = intent
		}
	}
	return intents
}

func intentFrom(symbol, action string, quantity int, price float64, reason string, confidence float64) (Intent, bool) {
	var side portfolio.Side
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "BUY":
		side = portfolio.SideBuy
	case "SELL":
		side = portfolio.SideSell
	default:
		return Intent{}, false
	}
	if quantity <= 0 {
		return Intent{}, false
	}
	if confidence < 0 || confidence > 1 {
		confidence = 0
	}
	return Intent{
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Reason:     reason,
		Confidence: confidence,
	}, true
}
