package hunt

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/hunt/internal/dedup"
	"github.com/linnemanlabs/hunt/internal/intel"
	"github.com/linnemanlabs/hunt/internal/retry"
	"github.com/linnemanlabs/hunt/internal/search"
	"github.com/linnemanlabs/hunt/internal/soar"
)

// quickRetry never sleeps between attempts.
func quickRetry() retry.Policy {
	return retry.Policy{Attempts: 1}
}

// stubGen returns canned text keyed by call order, or a fixed error.
type stubGen struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int
}

func (g *stubGen) GenerateText(_ context.Context, _ string, _ int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	idx := g.calls
	g.calls++
	if idx < len(g.texts) {
		return g.texts[idx], nil
	}
	return "stub rationale", nil
}

func (g *stubGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// charEmbed mirrors the production embedder's character-derived vectors.
type charEmbed struct{}

func (charEmbed) Embed(text string) []float64 {
	vec := make([]float64, len(text))
	for i := 0; i < len(text); i++ {
		vec[i] = float64(text[i]%97) / 97.0
	}
	return vec
}

// stubFeed serves a fixed indicator set.
type stubFeed struct {
	indicators []intel.Indicator
	err        error
}

func (f *stubFeed) Indicators(context.Context) ([]intel.Indicator, error) {
	return f.indicators, f.err
}

// stubRunner answers every query with the same rows, recording queries run.
type stubRunner struct {
	mu      sync.Mutex
	rows    []map[string]any
	err     error
	queries []string
}

func (r *stubRunner) Execute(_ context.Context, query string) (*search.ResultSet, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &search.ResultSet{Rows: r.rows}, nil
}

// stubInvoker records the last action invocation.
type stubInvoker struct {
	mu     sync.Mutex
	action string
	params map[string]any
	result *soar.Result
	err    error
}

func (i *stubInvoker) Invoke(_ context.Context, action string, params map[string]any) (*soar.Result, error) {
	i.mu.Lock()
	i.action = action
	i.params = params
	i.mu.Unlock()
	if i.err != nil {
		return nil, i.err
	}
	if i.result != nil {
		return i.result, nil
	}
	return &soar.Result{Status: "ok"}, nil
}

// loginFailMessages builds n failed-login records for host.
func loginFailMessages(host string, n int) []Message {
	msgs := make([]Message, 0, n)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		msgs = append(msgs, Message{Content: map[string]any{
			"event": "login_fail",
			"host":  host,
			"user":  "alice",
			"ts":    base.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		}})
	}
	return msgs
}

// fullStages wires every stage with the given collaborators, suitable for
// end-to-end engine tests.
func fullStages(gen TextGenerator, feed IndicatorSource, runner QueryRunner, invoker ActionInvoker) []Stage {
	return []Stage{
		NewCollectStage(dedup.New(), nil, gen, quickRetry(), CollectConfig{DedupTTL: time.Minute}, nil, nil),
		NewIntelStage(feed, charEmbed{}, gen, IntelConfig{}, nil, nil),
		NewHypothesisStage(gen, NewScorer(1), HypothesisConfig{}, nil, nil),
		NewQueryBuildStage(QueryBuildConfig{RowLimit: 100}, nil, nil),
		NewDetectStage(runner, gen, quickRetry(), DetectConfig{}, nil, nil),
		NewCorrelateStage(gen, CorrelateConfig{}, nil, nil),
		NewRespondStage(gen, invoker, quickRetry(), RespondConfig{}, nil, nil),
	}
}
