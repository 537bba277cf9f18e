package hunt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// unknownHost is the grouping key for alerts whose evidence carries no host.
const unknownHost = "unknown"

// CorrelateConfig tunes the correlate stage.
type CorrelateConfig struct {
	// SummaryTokens caps the cluster summary generation length.
	SummaryTokens int
}

// correlateStage groups alerts into one incident per host and, when the run
// produced more than one incident, wraps them in a cluster with a generated
// summary. Writes evidence slot `incident`.
type correlateStage struct {
	gen     TextGenerator
	cfg     CorrelateConfig
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewCorrelateStage creates the correlate stage.
func NewCorrelateStage(gen TextGenerator, cfg CorrelateConfig, logger log.Logger, metrics *Metrics) Stage {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.SummaryTokens <= 0 {
		cfg.SummaryTokens = 120
	}
	return &correlateStage{gen: gen, cfg: cfg, logger: logger, metrics: metrics, now: time.Now}
}

func (s *correlateStage) ID() StageID { return StageCorrelate }

func (s *correlateStage) Run(ctx context.Context, st *State) Decision {
	if len(st.Alerts) == 0 {
		s.logger.Info(ctx, "no alerts to correlate")
		return Decision{Next: Terminal}
	}

	hosts, groups := groupByHost(st.Alerts)

	incidents := make([]Incident, 0, len(hosts))
	for _, host := range hosts {
		group := groups[host]
		severity := group[0].Score
		for _, a := range group[1:] {
			if a.Score > severity {
				severity = a.Score
			}
		}
		incidents = append(incidents, Incident{
			ID:         fmt.Sprintf("incident_%s", ulid.Make()),
			Hosts:      []string{host},
			Alerts:     group,
			Severity:   severity,
			AlertCount: len(group),
			CreatedAt:  s.now(),
		})
		if s.metrics != nil {
			s.metrics.IncidentsTotal.Inc()
		}
	}

	if len(incidents) > 1 {
		cluster := Cluster{
			ID:        fmt.Sprintf("cluster_%s", ulid.Make()),
			Incidents: incidents,
			Severity:  incidents[0].Severity,
			CreatedAt: s.now(),
		}
		for _, in := range incidents[1:] {
			if in.Severity > cluster.Severity {
				cluster.Severity = in.Severity
			}
		}
		cluster.Summary = s.summarize(ctx, &cluster)
		st.Evidence.Incident = &Correlation{Cluster: &cluster}
		if s.metrics != nil {
			s.metrics.ClustersTotal.Inc()
		}
		s.logger.Info(ctx, "cluster created", "cluster", cluster.ID, "incidents", len(incidents))
	} else {
		st.Evidence.Incident = &Correlation{Incident: &incidents[0]}
		s.logger.Info(ctx, "incident created", "incident", incidents[0].ID, "alerts", incidents[0].AlertCount)
	}

	return Decision{Next: StageRespond}
}

// groupByHost buckets alerts by evidence host, preserving first-seen host
// order so output is stable for a given input.
func groupByHost(alerts []Alert) ([]string, map[string][]Alert) {
	var hosts []string
	groups := make(map[string][]Alert)
	for _, a := range alerts {
		host := alertHost(a)
		if _, seen := groups[host]; !seen {
			hosts = append(hosts, host)
		}
		groups[host] = append(groups[host], a)
	}
	return hosts, groups
}

func alertHost(a Alert) string {
	if h, _ := a.Evidence["host"].(string); h != "" {
		return h
	}
	if meta, ok := a.Evidence["meta"].(map[string]any); ok {
		if h, _ := meta["host"].(string); h != "" {
			return h
		}
	}
	return unknownHost
}

func (s *correlateStage) summarize(ctx context.Context, cluster *Cluster) string {
	payload, _ := json.Marshal(cluster)
	prompt := fmt.Sprintf("Summarize this incident cluster briefly for an analyst: %s", payload)
	summary, err := s.gen.GenerateText(ctx, prompt, s.cfg.SummaryTokens)
	if err != nil {
		s.logger.Warn(ctx, "cluster summary generation failed", "cluster", cluster.ID, "error", err)
		return ""
	}
	return summary
}
