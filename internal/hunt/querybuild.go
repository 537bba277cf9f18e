package hunt

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// queryTemplate is the single detection template. Hypothesis expressions are
// substituted into the WHERE clause; the row cap comes from configuration.
const queryTemplate = "SELECT * FROM logs WHERE {{query}} LIMIT {{limit}}"

// maxQueryLen is the hard upper bound on a rendered query.
const maxQueryLen = 4000

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// forbiddenTokens reject a rendered query outright. Matched against the
// upper-cased text, so lower-case variants are caught too.
var forbiddenTokens = []string{";", "DROP", "DELETE", "--"}

// QueryBuildConfig tunes the query build stage.
type QueryBuildConfig struct {
	// RowLimit is substituted into the template's LIMIT clause.
	RowLimit int
}

// queryBuildStage renders one detection query per hypothesis and gates the
// result: anything missing FROM/WHERE, carrying a forbidden token, or over
// the length cap is dropped, never emitted. Writes evidence slot `queries`.
type queryBuildStage struct {
	cfg     QueryBuildConfig
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewQueryBuildStage creates the query build stage.
func NewQueryBuildStage(cfg QueryBuildConfig, logger log.Logger, metrics *Metrics) Stage {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = 1000
	}
	return &queryBuildStage{cfg: cfg, logger: logger, metrics: metrics, now: time.Now}
}

func (s *queryBuildStage) ID() StageID { return StageQueryBuild }

func (s *queryBuildStage) Run(ctx context.Context, st *State) Decision {
	compiled := make([]CompiledQuery, 0, len(st.Evidence.Hypotheses))
	for _, h := range st.Evidence.Hypotheses {
		params := map[string]any{"query": h.Expr, "limit": s.cfg.RowLimit}
		rendered := renderTemplate(queryTemplate, params)
		if err := validateQuery(rendered); err != nil {
			if s.metrics != nil {
				s.metrics.QueriesRejected.Inc()
			}
			s.logger.Warn(ctx, "unsafe query rejected", "hypothesis", h.ID, "error", err)
			continue
		}
		compiled = append(compiled, CompiledQuery{
			ID:        h.ID,
			Text:      rendered,
			Params:    params,
			CreatedAt: s.now(),
		})
		if s.metrics != nil {
			s.metrics.QueriesCompiled.Inc()
		}
	}

	st.Evidence.Queries = compiled
	s.logger.Info(ctx, "queries compiled", "compiled", len(compiled), "hypotheses", len(st.Evidence.Hypotheses))
	return Decision{Next: StageDetect}
}

// renderTemplate substitutes {{name}} placeholders from params. A missing
// parameter renders as <name>, which the validator then rejects when it
// breaks query structure.
func renderTemplate(template string, params map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok {
			return "<" + name + ">"
		}
		return fmt.Sprint(v)
	})
}

// validateQuery is the safety gate: structural FROM/WHERE presence, no
// statement separators or destructive keywords, bounded length.
func validateQuery(q string) error {
	upper := strings.ToUpper(q)
	if !strings.Contains(upper, "FROM") || !strings.Contains(upper, "WHERE") {
		return &ValidationError{Reason: "query must contain FROM and WHERE"}
	}
	for _, tok := range forbiddenTokens {
		if strings.Contains(upper, tok) {
			return &ValidationError{Reason: fmt.Sprintf("query contains forbidden token %q", tok)}
		}
	}
	if len(q) > maxQueryLen {
		return &ValidationError{Reason: fmt.Sprintf("query exceeds %d characters", maxQueryLen)}
	}
	return nil
}
