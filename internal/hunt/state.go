package hunt

import (
	"time"

	"github.com/linnemanlabs/hunt/internal/event"
	"github.com/linnemanlabs/hunt/internal/intel"
	"github.com/linnemanlabs/hunt/internal/soar"
)

// Message is one input record submitted to a run. Messages are immutable
// after creation.
type Message struct {
	Role    string         `json:"role,omitempty"`
	Content map[string]any `json:"content"`
}

// EnrichedEvent is a normalized event after threat-intel enrichment.
type EnrichedEvent struct {
	Event          event.Normalized `json:"event"`
	IndicatorMatch bool             `json:"indicator_match,omitempty"`
	Indicator      *intel.Indicator `json:"indicator,omitempty"`
	Confidence     float64          `json:"indicator_confidence,omitempty"`
	Rationale      string           `json:"indicator_rationale,omitempty"`
}

// Hypothesis is a candidate explanation for the observed signals. Score is
// derived by the scorer, never supplied.
type Hypothesis struct {
	ID        string    `json:"id"`
	Expr      string    `json:"query"`
	Support   int       `json:"support"`
	Severity  int       `json:"severity"`
	Rationale string    `json:"rationale,omitempty"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// CompiledQuery is a rendered detection query that passed the safety gate.
type CompiledQuery struct {
	ID        string         `json:"id"`
	Text      string         `json:"query"`
	Params    map[string]any `json:"params,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Alert is one detection finding.
type Alert struct {
	ID        string         `json:"id"`
	Evidence  map[string]any `json:"evidence"`
	Score     float64        `json:"score"`
	Tags      []string       `json:"tags,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Incident groups the alerts sharing one host. Severity is the max alert
// score in the group.
type Incident struct {
	ID         string    `json:"id"`
	Hosts      []string  `json:"hosts"`
	Alerts     []Alert   `json:"alerts"`
	Severity   float64   `json:"severity"`
	AlertCount int       `json:"alert_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Cluster aggregates the incidents of one run when there is more than one.
// Severity is the max incident severity.
type Cluster struct {
	ID        string     `json:"id"`
	Incidents []Incident `json:"incidents"`
	Severity  float64    `json:"severity"`
	Summary   string     `json:"summary,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Correlation is the correlate stage's output: exactly one of Incident or
// Cluster is set.
type Correlation struct {
	Incident *Incident `json:"incident,omitempty"`
	Cluster  *Cluster  `json:"cluster,omitempty"`
}

// ID returns the identifier of whichever record is set.
func (c *Correlation) ID() string {
	switch {
	case c == nil:
		return ""
	case c.Cluster != nil:
		return c.Cluster.ID
	case c.Incident != nil:
		return c.Incident.ID
	}
	return ""
}

// Severity returns the severity of whichever record is set.
func (c *Correlation) Severity() float64 {
	switch {
	case c == nil:
		return 0
	case c.Cluster != nil:
		return c.Cluster.Severity
	case c.Incident != nil:
		return c.Incident.Severity
	}
	return 0
}

// Story is the analyst-facing narrative produced by the respond stage.
type Story struct {
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Evidence holds the named slots the stages write. Each slot is written at
// most once per run, by its owning stage only.
type Evidence struct {
	Raw        []event.Normalized `json:"raw,omitempty"`
	Enriched   []EnrichedEvent    `json:"enriched,omitempty"`
	Hypotheses []Hypothesis       `json:"hypotheses,omitempty"`
	Queries    []CompiledQuery    `json:"queries,omitempty"`
	Incident   *Correlation       `json:"incident,omitempty"`
	SOARResult *soar.Result       `json:"soar_result,omitempty"`
}

// State is the investigation state one run mutates. It is owned exclusively
// by the currently executing stage and never shared across runs.
type State struct {
	Messages []Message `json:"messages"`
	Evidence Evidence  `json:"evidence"`
	Alerts   []Alert   `json:"alerts,omitempty"`
	Story    *Story    `json:"story,omitempty"`
}

// NewState creates the initial state for one run.
func NewState(messages []Message) *State {
	return &State{Messages: messages}
}

// Clone returns a snapshot copy safe to hand to stream consumers while the
// run keeps mutating the original. Slot contents are shared (stages never
// rewrite a slot once published); the containers are copied.
func (s *State) Clone() *State {
	cp := &State{
		Messages: append([]Message(nil), s.Messages...),
		Evidence: Evidence{
			Raw:        append([]event.Normalized(nil), s.Evidence.Raw...),
			Enriched:   append([]EnrichedEvent(nil), s.Evidence.Enriched...),
			Hypotheses: append([]Hypothesis(nil), s.Evidence.Hypotheses...),
			Queries:    append([]CompiledQuery(nil), s.Evidence.Queries...),
			Incident:   s.Evidence.Incident,
			SOARResult: s.Evidence.SOARResult,
		},
		Alerts: append([]Alert(nil), s.Alerts...),
	}
	if s.Story != nil {
		st := *s.Story
		cp.Story = &st
	}
	return cp
}
