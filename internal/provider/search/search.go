// Package search defines the web-search contract and a DuckDuckGo instant
// answer adapter.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Provider is the web-search contract.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// DuckDuckGo implements Provider on the instant-answer API. No key needed.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGo builds the adapter. baseURL may be empty for the public API.
func NewDuckDuckGo(baseURL string) *DuckDuckGo {
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com"
	}
	return &DuckDuckGo{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

type ddgTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

type ddgResponse struct {
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// Search implements Provider.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1", d.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search failed: status %d", resp.StatusCode)
	}

	var body ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("web search response malformed: %w", err)
	}

	results := make([]Result, 0, maxResults)
	for _, topic := range body.RelatedTopics {
		if topic.Text == "" {
			continue
		}
		results = append(results, Result{
			Title:   titleFromURL(topic.FirstURL),
			Snippet: topic.Text,
			URL:     topic.FirstURL,
		})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}

func titleFromURL(u string) string {
	if u == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(u, "/"), "/")
	return parts[len(parts)-1]
}
