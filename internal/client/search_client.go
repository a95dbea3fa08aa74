package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/pagesforge/api/internal/config"
)

// SearchResult is one web search hit
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// SearchClient scrapes the DuckDuckGo HTML endpoint for read-only web lookups
type SearchClient struct {
	baseURL    string
	maxResults int
}

// NewSearchClient creates a new search client
func NewSearchClient(cfg *config.SearchConfig) *SearchClient {
	return &SearchClient{
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
	}
}

// Search runs one query and returns up to maxResults hits. Each call uses a
// fresh collector so repeated queries yield independent results.
func (c *SearchClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	collector := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (compatible; pagesforge/1.0)"),
	)

	var results []SearchResult
	collector.OnHTML("div.result", func(e *colly.HTMLElement) {
		if len(results) >= c.maxResults {
			return
		}
		title := strings.TrimSpace(e.ChildText("a.result__a"))
		snippet := strings.TrimSpace(e.ChildText(".result__snippet"))
		link := e.ChildAttr("a.result__a", "href")
		if title == "" {
			return
		}
		results = append(results, SearchResult{
			Title:   title,
			Snippet: snippet,
			URL:     cleanResultURL(link),
		})
	})

	var visitErr error
	collector.OnError(func(r *colly.Response, err error) {
		visitErr = err
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/html/?q=%s", c.baseURL, url.QueryEscape(query))
	if err := collector.Visit(endpoint); err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	collector.Wait()

	if visitErr != nil {
		return nil, fmt.Errorf("search request failed: %w", visitErr)
	}
	return results, nil
}

// cleanResultURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...)
func cleanResultURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		if target, err := url.QueryUnescape(uddg); err == nil {
			return target
		}
	}
	return link
}
