package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/pkg/logger"
)

// Client queries a PubMed-style eutils endpoint: esearch for IDs, then
// esummary for metadata. Implements evidence.Backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Name() string {
	return "pubmed"
}

func (c *Client) Search(ctx context.Context, q evidence.Query, maxResults int) ([]evidence.RawHit, error) {
	ids, err := c.searchIDs(ctx, q.Text, maxResults)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	hits, err := c.fetchSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	logger.Debug("PubMed search completed",
		zap.String("query", q.Text),
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

func (c *Client) searchIDs(ctx context.Context, query string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Add("db", "pubmed")
	params.Add("term", query)
	params.Add("retmax", strconv.Itoa(maxResults))
	params.Add("retmode", "json")
	if c.apiKey != "" {
		params.Add("api_key", c.apiKey)
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/esearch.fcgi?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var resp struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse esearch response: %w", err)
	}

	return resp.ESearchResult.IDList, nil
}

func (c *Client) fetchSummaries(ctx context.Context, ids []string) ([]evidence.RawHit, error) {
	params := url.Values{}
	params.Add("db", "pubmed")
	params.Add("id", strings.Join(ids, ","))
	params.Add("retmode", "json")
	if c.apiKey != "" {
		params.Add("api_key", c.apiKey)
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/esummary.fcgi?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse esummary response: %w", err)
	}

	hits := make([]evidence.RawHit, 0, len(ids))
	for _, id := range ids {
		raw, ok := resp.Result[id]
		if !ok {
			continue
		}

		var doc struct {
			Title    string `json:"title"`
			PubDate  string `json:"pubdate"`
			PubTypes []string `json:"pubtype"`
			ELocationID string `json:"elocationid"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}

		hits = append(hits, evidence.RawHit{
			SourceID: "pmid:" + id,
			Title:    doc.Title,
			Year:     parseYear(doc.PubDate),
			Keywords: doc.PubTypes,
			DOI:      parseDOI(doc.ELocationID),
			PMID:     id,
			Backend:  c.Name(),
		})
	}

	return hits, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

func parseYear(pubdate string) int {
	fields := strings.Fields(pubdate)
	if len(fields) == 0 {
		return 0
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return year
}

func parseDOI(elocation string) string {
	idx := strings.Index(elocation, "10.")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(elocation[idx:])
}
