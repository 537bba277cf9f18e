// Package search executes compiled detection queries against an OpenSearch
// backend through its SQL plugin and returns tabular results.
package search

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"
)

const sqlPath = "/_plugins/_sql"

// Config holds backend connection settings.
type Config struct {
	URL      string
	Username string
	Password string
	Insecure bool
}

// ResultSet is the tabular outcome of one query.
type ResultSet struct {
	Columns []string
	Rows    []map[string]any
}

// Client runs SQL queries against OpenSearch.
type Client struct {
	os *opensearch.Client
}

// New creates a Client for the configured backend.
func New(cfg Config) (*Client, error) {
	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.Insecure {
		osCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	return &Client{os: client}, nil
}

// Execute runs one SQL query and converts the schema/datarows response into
// column-keyed rows. Backend unreachability and non-2xx responses are
// returned as errors for the caller's retry policy.
func (c *Client) Execute(ctx context.Context, query string) (*ResultSet, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sqlPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.os.Perform(req)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sql endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Schema []struct {
			Name string `json:"name"`
		} `json:"schema"`
		Datarows [][]any `json:"datarows"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	rs := &ResultSet{
		Columns: make([]string, len(parsed.Schema)),
		Rows:    make([]map[string]any, 0, len(parsed.Datarows)),
	}
	for i, col := range parsed.Schema {
		rs.Columns[i] = col.Name
	}
	for _, dr := range parsed.Datarows {
		row := make(map[string]any, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(dr) {
				row[col] = dr[i]
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}
