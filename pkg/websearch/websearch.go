package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dealeros/carbot/agent/contract"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	URL     string        `split_words:"true" required:"true"`
	Token   string        `split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"10s"`
	Limit   int           `split_words:"true" default:"5"`
}

// Client queries a REST web-search endpoint and maps its hits onto ranked
// findings. It implements contract.Research.
type Client struct {
	baseURL    string
	token      string
	limit      int
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("websearch url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("websearch token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(cfg.Token),
		limit:   limit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		URL     string `json:"url"`
	} `json:"results"`
}

// Search runs one query. An empty hit list maps to contract.ErrNoResults so
// callers can fall back to local knowledge.
func (c *Client) Search(ctx context.Context, query string, filters map[string]string) ([]contract.Finding, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", contract.ErrNoResults)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", fmt.Sprint(c.limit))
	for k, v := range filters {
		if k != "" && v != "" {
			params.Set(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute search request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("search http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, contract.ErrNoResults
	}

	findings := make([]contract.Finding, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if i >= c.limit {
			break
		}
		findings = append(findings, contract.Finding{
			Title:   strings.TrimSpace(r.Title),
			Snippet: strings.TrimSpace(r.Snippet),
			URL:     strings.TrimSpace(r.URL),
			Rank:    i + 1,
		})
	}
	return findings, nil
}
