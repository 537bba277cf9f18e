// Package intel fetches and caches the threat-intelligence indicator feed
// consumed by the enrichment stage.
package intel

// Indicator is a single threat-intel record. Read-only once fetched.
type Indicator struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Value      string         `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
}
