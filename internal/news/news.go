// Package news defines the news-source boundary and a keyword sentiment
// scorer. The core consumes articles as opaque text.
package news

import (
	"context"
	"regexp"
	"time"
)

// Article is a fetched news item.
type Article struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Source fetches recent market news. symbol may be empty for market-wide
// headlines. Failures are transient; callers proceed with no articles.
type Source interface {
	Recent(ctx context.Context, symbol string) ([]Article, error)
}

var (
	bullishWords = regexp.MustCompile(`(?i)\b(surge|surges|surged|rally|rallies|gains?|jumps?|rises?|buy|bullish|upgrade[ds]?|record high|profit|growth|beats?|strong|outperform|soars?)\b`)
	bearishWords = regexp.MustCompile(`(?i)\b(fall[s]?|fell|drops?|plunges?|slides?|sell|bearish|downgrade[ds]?|loss|losses|weak|misses?|decline[sd]?|crash|slump[s]?|underperform|tumbles?)\b`)
)

// Sentiment scores an article's text in [-1, 1] by counting bullish
// against bearish keywords. Zero means neutral or no signal.
func Sentiment(a Article) float64 {
	text := a.Title + " " + a.Summary
	pos := len(bullishWords.FindAllString(text, -1))
	neg := len(bearishWords.FindAllString(text, -1))
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}
