package hunt

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the hunt pipeline. A single Metrics
// is registered in main and injected into the engine and stages; nothing is
// process-global.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	StageDuration *prometheus.HistogramVec

	EventsNormalized prometheus.Counter
	EventsDeduped    prometheus.Counter
	EventsAnnotated  prometheus.Counter
	NormalizeErrors  prometheus.Counter

	IntelHits   *prometheus.CounterVec
	IntelErrors prometheus.Counter

	HypothesesGenerated prometheus.Counter
	RefineErrors        prometheus.Counter

	QueriesCompiled prometheus.Counter
	QueriesRejected prometheus.Counter

	QueryRows     prometheus.Counter
	QueryErrors   prometheus.Counter
	AlertsEmitted prometheus.Counter

	IncidentsTotal prometheus.Counter
	ClustersTotal  prometheus.Counter

	SOARInvocations *prometheus.CounterVec
	NotifyErrors    prometheus.Counter
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunt_runs_total",
			Help: "Total pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hunt_run_duration_seconds",
			Help:    "Duration of full pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hunt_stage_duration_seconds",
			Help:    "Duration of individual stage executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"stage"}),
		EventsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_events_normalized_total",
			Help: "Events accepted by the collect stage.",
		}),
		EventsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_events_deduped_total",
			Help: "Events dropped as duplicates within the dedup TTL.",
		}),
		EventsAnnotated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_events_annotated_total",
			Help: "Unknown-type events annotated with a generated note.",
		}),
		NormalizeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_normalize_errors_total",
			Help: "Raw records skipped as malformed.",
		}),
		IntelHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunt_intel_hits_total",
			Help: "Indicator matches by kind (exact, fuzzy).",
		}, []string{"kind"}),
		IntelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_intel_errors_total",
			Help: "Per-event enrichment failures (event kept unenriched).",
		}),
		HypothesesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_hypotheses_generated_total",
			Help: "Candidate hypotheses emitted.",
		}),
		RefineErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_hypothesis_refine_errors_total",
			Help: "Hypothesis rationale refinements that failed.",
		}),
		QueriesCompiled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_queries_compiled_total",
			Help: "Queries that passed the safety gate.",
		}),
		QueriesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_queries_rejected_total",
			Help: "Rendered queries rejected by the safety gate.",
		}),
		QueryRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_query_rows_total",
			Help: "Rows returned by executed detection queries.",
		}),
		QueryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_query_errors_total",
			Help: "Detection queries that failed after retries.",
		}),
		AlertsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_alerts_emitted_total",
			Help: "Alerts emitted by the detect stage.",
		}),
		IncidentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_incidents_total",
			Help: "Incidents created by the correlate stage.",
		}),
		ClustersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_clusters_total",
			Help: "Clusters created by the correlate stage.",
		}),
		SOARInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunt_soar_invocations_total",
			Help: "SOAR action invocations by result.",
		}, []string{"status"}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunt_notify_errors_total",
			Help: "Completion notifications that failed to send.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.EventsNormalized,
		m.EventsDeduped,
		m.EventsAnnotated,
		m.NormalizeErrors,
		m.IntelHits,
		m.IntelErrors,
		m.HypothesesGenerated,
		m.RefineErrors,
		m.QueriesCompiled,
		m.QueriesRejected,
		m.QueryRows,
		m.QueryErrors,
		m.AlertsEmitted,
		m.IncidentsTotal,
		m.ClustersTotal,
		m.SOARInvocations,
		m.NotifyErrors,
	)

	return m
}
