package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Source pulls additional raw records from a configured HTTP endpoint so the
// collector can augment the submitted batch. The endpoint returns either a
// JSON array of records or an object with a "data" array.
type Source struct {
	url        string
	httpClient *http.Client
}

// NewSource creates a Source for the given endpoint URL.
func NewSource(url string) *Source {
	return &Source{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch retrieves raw records from the endpoint.
func (s *Source) Fetch(ctx context.Context) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event source returned %d: %s", resp.StatusCode, string(body))
	}

	var records []map[string]any
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}
	var wrapped struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return wrapped.Data, nil
}
