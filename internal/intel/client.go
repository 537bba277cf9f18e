package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client fetches indicators from a CTI feed endpoint. The feed responds with
// {"data": [...]} where each item carries id, type and attributes; the
// indicator value may live either top-level or under attributes.value.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewClient creates a feed client. token is optional; when set it is sent as
// a bearer token.
func NewClient(url, token string) *Client {
	return &Client{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchIndicators retrieves and parses the feed. Items that fail to parse
// are skipped rather than failing the fetch.
func (c *Client) FetchIndicators(ctx context.Context) ([]Indicator, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal feed: %w", err)
	}

	items := make([]Indicator, 0, len(payload.Data))
	for _, raw := range payload.Data {
		var ind Indicator
		if err := json.Unmarshal(raw, &ind); err != nil {
			continue
		}
		if ind.Value == "" {
			if v, ok := ind.Attributes["value"].(string); ok {
				ind.Value = v
			}
		}
		items = append(items, ind)
	}
	return items, nil
}
