package hunt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/hunt/internal/event"
	"github.com/linnemanlabs/hunt/internal/retry"
	"github.com/linnemanlabs/hunt/internal/taskgroup"
	"github.com/oklog/ulid/v2"
)

// DetectConfig tunes the detect stage.
type DetectConfig struct {
	// Fanout bounds concurrent query executions and alert re-scores.
	Fanout int
	// RescoreTopN is how many top alerts get an external risk re-score.
	RescoreTopN int
	// RescoreTokens caps the risk-assessment generation length.
	RescoreTokens int
}

// detectStage executes the compiled queries (or inspects raw events when
// none compiled) and converts the resulting rows into alerts. The top-N
// alerts are re-scored through the text generator; the rule-based score is
// never lowered by the assessment. Publishes alerts through the decision
// update. Routes to Terminal when nothing alerted.
type detectStage struct {
	runner  QueryRunner
	gen     TextGenerator
	policy  retry.Policy
	cfg     DetectConfig
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewDetectStage creates the detect stage. runner may be nil when no search
// backend is configured; detection then inspects raw events directly.
func NewDetectStage(runner QueryRunner, gen TextGenerator, policy retry.Policy, cfg DetectConfig, logger log.Logger, metrics *Metrics) Stage {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 4
	}
	if cfg.RescoreTopN <= 0 {
		cfg.RescoreTopN = 3
	}
	if cfg.RescoreTokens <= 0 {
		cfg.RescoreTokens = 48
	}
	return &detectStage{
		runner:  runner,
		gen:     gen,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *detectStage) ID() StageID { return StageDetect }

func (s *detectStage) Run(ctx context.Context, st *State) Decision {
	var rows []map[string]any
	if len(st.Evidence.Queries) > 0 && s.runner != nil {
		rows = s.runQueries(ctx, st.Evidence.Queries)
	} else {
		s.logger.Info(ctx, "no compiled queries, inspecting raw events", "events", len(st.Evidence.Raw))
		rows = eventRows(st.Evidence.Raw)
	}

	alerts := s.rowsToAlerts(rows)
	if len(alerts) == 0 {
		s.logger.Info(ctx, "no alerts detected")
		return Decision{Next: Terminal}
	}

	s.rescoreTop(ctx, alerts)

	if s.metrics != nil {
		s.metrics.AlertsEmitted.Add(float64(len(alerts)))
	}
	s.logger.Info(ctx, "alerts detected", "alerts", len(alerts), "rows", len(rows))
	return Decision{Next: StageCorrelate, Update: &Update{Alerts: alerts}}
}

// runQueries fans out compiled queries against the search backend, each
// wrapped in the retry policy. A query that still fails is skipped; its
// siblings' rows survive.
func (s *detectStage) runQueries(ctx context.Context, queries []CompiledQuery) []map[string]any {
	results := taskgroup.Map(ctx, s.cfg.Fanout, queries, func(ctx context.Context, q CompiledQuery) ([]map[string]any, error) {
		var rows []map[string]any
		err := s.policy.Do(ctx, func(ctx context.Context) error {
			rs, qerr := s.runner.Execute(ctx, q.Text)
			if qerr != nil {
				return qerr
			}
			rows = rs.Rows
			return nil
		})
		return rows, err
	})

	var rows []map[string]any
	for i, r := range results {
		if r.Err != nil {
			if s.metrics != nil {
				s.metrics.QueryErrors.Inc()
			}
			s.logger.Warn(ctx, "detection query failed", "query", queries[i].ID, "error", r.Err)
			continue
		}
		if s.metrics != nil {
			s.metrics.QueryRows.Add(float64(len(r.Value)))
		}
		rows = append(rows, r.Value...)
	}
	return rows
}

// rowsToAlerts scores each row: declared severity (default 1) plus derived
// severity, tagged by rule.
func (s *detectStage) rowsToAlerts(rows []map[string]any) []Alert {
	alerts := make([]Alert, 0, len(rows))
	for i, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			id = fmt.Sprintf("alert_%s_%d", ulid.Make(), i)
		}
		score := numField(row, "severity", 1) + numField(row, "derived_severity", 0)
		var tags []string
		if truthy(row["indicator_match"]) {
			tags = append(tags, "ioc")
		}
		if ev, _ := row["event"].(string); ev == "login_fail" {
			tags = append(tags, "auth.failure")
		}
		alerts = append(alerts, Alert{
			ID:        id,
			Evidence:  row,
			Score:     score,
			Tags:      tags,
			CreatedAt: s.now(),
		})
	}
	return alerts
}

// rescoreTop asks the text generator for a 0-10 risk assessment of the top-N
// alerts concurrently and takes the max of rule and assessed score. Alerts
// are already ordered by row arrival; the head of the slice is re-scored.
func (s *detectStage) rescoreTop(ctx context.Context, alerts []Alert) {
	n := s.cfg.RescoreTopN
	if n > len(alerts) {
		n = len(alerts)
	}
	head := alerts[:n]

	results := taskgroup.Map(ctx, s.cfg.Fanout, head, func(ctx context.Context, a Alert) (float64, error) {
		evidence, _ := json.Marshal(a.Evidence)
		prompt := fmt.Sprintf("Given this event evidence, assign a risk score 0-10 and justify briefly: %s", evidence)
		text, err := s.gen.GenerateText(ctx, prompt, s.cfg.RescoreTokens)
		if err != nil {
			return 0, err
		}
		return ParseRiskScore(text, numField(a.Evidence, "derived_severity", 0)), nil
	})

	for i, r := range results {
		if r.Err != nil {
			s.logger.Warn(ctx, "alert re-score failed", "alert", head[i].ID, "error", r.Err)
			continue
		}
		if r.Value > head[i].Score {
			head[i].Score = r.Value
		}
	}
}

// eventRows projects normalized events into the row shape the alert
// converter expects, used when no query compiled. Meta keys ride along but
// never shadow the core fields.
func eventRows(events []event.Normalized) []map[string]any {
	rows := make([]map[string]any, 0, len(events))
	for _, e := range events {
		row := make(map[string]any, len(e.Meta)+6)
		for k, v := range e.Meta {
			row[k] = v
		}
		row["id"] = e.Fingerprint
		row["event"] = e.Type
		row["host"] = e.Host
		row["user"] = e.User
		row["source"] = e.Source
		row["timestamp"] = e.Timestamp
		rows = append(rows, row)
	}
	return rows
}

func numField(row map[string]any, key string, def float64) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
		return def
	default:
		return def
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}
