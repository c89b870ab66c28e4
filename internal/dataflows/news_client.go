package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/omkale/finpup/config"
	"github.com/omkale/finpup/internal/news"
)

const moneycontrolBase = "https://www.moneycontrol.com"

// NewsClient scrapes business headlines from MoneyControl as a thin
// adapter behind the news.Source boundary.
type NewsClient struct {
	client *resty.Client
	cache  *CacheManager
}

func NewNewsClient(cfg *config.Config) *NewsClient {
	cacheDir := filepath.Join(cfg.CacheDir, "news")

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; finpup/1.0)")

	return &NewsClient{
		client: client,
		cache:  NewCacheManager(cacheDir, 2*time.Hour, cfg.CacheEnabled),
	}
}

// Recent fetches latest business headlines. symbol narrows the page to
// stock-specific news when non-empty.
func (nc *NewsClient) Recent(ctx context.Context, symbol string) ([]news.Article, error) {
	cacheKey := map[string]any{"symbol": symbol}

	var cached []news.Article
	if nc.cache.Get("moneycontrol", "recent", cacheKey, &cached) {
		return cached, nil
	}

	url := moneycontrolBase + "/news/business/page-1"
	if symbol != "" {
		url = fmt.Sprintf("%s/news/tags/%s.html", moneycontrolBase, strings.ToLower(symbol))
	}

	var articles []news.Article
	err := WithRetry(DefaultRetryConfig(), func() error {
		resp, err := nc.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("fetch news page: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("news page returned HTTP %d", resp.StatusCode())
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
		if err != nil {
			return fmt.Errorf("parse news page: %w", err)
		}

		articles = articles[:0]
		doc.Find("li.clearfix").Each(func(_ int, sel *goquery.Selection) {
			title := strings.TrimSpace(sel.Find("h2").First().Text())
			if title == "" {
				return
			}
			link, _ := sel.Find("h2 a").First().Attr("href")
			summary := strings.TrimSpace(sel.Find("p").First().Text())

			articles = append(articles, news.Article{
				Title:       title,
				Summary:     summary,
				URL:         link,
				Source:      "moneycontrol",
				PublishedAt: time.Now(),
			})
		})
		if len(articles) == 0 {
			return fmt.Errorf("no articles found on page")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	nc.cache.Set("moneycontrol", "recent", cacheKey, articles)
	return articles, nil
}
