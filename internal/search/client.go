package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/signal-ai/backend/pkg/logger"
)

// Client talks to the managed full-text search index over HTTP. The index
// holds the same feedback corpus as the primary store and is queried as one
// of the context sources for the assistant.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiToken   string
	indexName  string
}

// Document is one full-text hit, already carrying enough text to cite.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type queryResponse struct {
	Results []Document `json:"results"`
}

func NewClient(endpoint, apiToken, indexName string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		apiToken:   apiToken,
		indexName:  indexName,
	}
}

// Query runs a full-text query against the index and returns up to limit
// documents ordered by descending score.
func (c *Client) Query(ctx context.Context, text string, limit int) ([]Document, error) {
	body, err := json.Marshal(queryRequest{Query: text, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/query", c.endpoint, c.indexName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search index returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	logger.Debug("Search index queried",
		zap.String("index", c.indexName),
		zap.Int("results", len(parsed.Results)),
	)

	return parsed.Results, nil
}
