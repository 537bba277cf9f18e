package hunt

import (
	"context"

	"github.com/linnemanlabs/hunt/internal/intel"
	"github.com/linnemanlabs/hunt/internal/search"
	"github.com/linnemanlabs/hunt/internal/soar"
)

// TextGenerator produces narrative text. Implementations must not block
// indefinitely and must degrade to a deterministic placeholder when the
// backend is unavailable.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Embedder vectorizes text for similarity scoring. Deterministic for the
// same input.
type Embedder interface {
	Embed(text string) []float64
}

// IndicatorSource supplies the threat-intel feed, typically TTL-cached.
type IndicatorSource interface {
	Indicators(ctx context.Context) ([]intel.Indicator, error)
}

// QueryRunner executes a compiled detection query.
type QueryRunner interface {
	Execute(ctx context.Context, query string) (*search.ResultSet, error)
}

// ActionInvoker triggers an automated response action.
type ActionInvoker interface {
	Invoke(ctx context.Context, action string, params map[string]any) (*soar.Result, error)
}

// RawSource pulls extra raw records for the collect stage.
type RawSource interface {
	Fetch(ctx context.Context) ([]map[string]any, error)
}
