// Package websearch provides the Tavily-backed web search used by the
// discovery path.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher performs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

type tavilyClient struct {
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// NewTavily builds a Searcher over the Tavily API.
func NewTavily(apiKey string, timeout time.Duration, logger logging.Logger) (Searcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("websearch: api key is required")
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &tavilyClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(logger),
	}, nil
}

func (c *tavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	body, err := json.Marshal(map[string]any{
		"api_key":     c.apiKey,
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ottoerrors.Wrap(ottoerrors.KindTransport, "web search failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, ottoerrors.Wrap(ottoerrors.KindTransport, "read web search response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ottoerrors.New(ottoerrors.KindTransport,
			fmt.Sprintf("web search returned status %d", resp.StatusCode))
	}

	var parsed struct {
		Results []Result `json:"results"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode web search response: %w", err)
	}
	c.logger.Debug("web search %q returned %d results in %s", query, len(parsed.Results), time.Since(start))
	return parsed.Results, nil
}

// Render flattens results into the text form stored in the knowledge cache.
func Render(results []Result) string {
	var b strings.Builder
	for i, result := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, result.Title, result.URL, result.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
