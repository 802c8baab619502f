package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/pkg/logger"
)

// Client is the web-search proxy evidence backend. With a SerpAPI key it
// uses the JSON API; without one it falls back to scraping a site-limited
// search page.
type Client struct {
	serpAPIKey string
	httpClient *http.Client
}

func NewClient(serpAPIKey string) *Client {
	return &Client{
		serpAPIKey: serpAPIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Name() string {
	return "web"
}

func (c *Client) Search(ctx context.Context, q evidence.Query, maxResults int) ([]evidence.RawHit, error) {
	query := q.Text
	if len(q.Concepts) > 0 {
		query = query + " " + strings.Join(q.Concepts, " ")
	}

	if c.serpAPIKey != "" {
		return c.searchWithSerpAPI(ctx, query, maxResults)
	}

	return c.searchWithScrape(ctx, query, maxResults)
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, maxResults int) ([]evidence.RawHit, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("https://serpapi.com/search?%s", params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}

	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	hits := make([]evidence.RawHit, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		hits = append(hits, evidence.RawHit{
			SourceID: r.Link,
			Title:    r.Title,
			Abstract: r.Snippet,
			Backend:  c.Name(),
		})
	}

	logger.Debug("Web search completed", zap.Int("results", len(hits)))

	return hits, nil
}

func (c *Client) searchWithScrape(ctx context.Context, query string, maxResults int) ([]evidence.RawHit, error) {
	searchQuery := url.QueryEscape(fmt.Sprintf("site:pubmed.ncbi.nlm.nih.gov OR site:ncbi.nlm.nih.gov %s", query))
	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&num=%d", searchQuery, maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	hits := make([]evidence.RawHit, 0)
	doc.Find("div.g").Each(func(i int, s *goquery.Selection) {
		if i >= maxResults {
			return
		}

		title := s.Find("h3").Text()
		link, _ := s.Find("a").Attr("href")
		snippet := s.Find("div.VwiC3b").Text()

		if title != "" && link != "" {
			hits = append(hits, evidence.RawHit{
				SourceID: link,
				Title:    title,
				Abstract: snippet,
				Backend:  c.Name(),
			})
		}
	})

	logger.Debug("Web scrape search completed", zap.Int("results", len(hits)))

	return hits, nil
}
