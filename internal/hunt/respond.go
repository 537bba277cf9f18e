package hunt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/hunt/internal/retry"
)

// RespondConfig tunes the respond stage.
type RespondConfig struct {
	// Action is the SOAR action invoked per correlation.
	Action string
	// StoryTokens caps the narrative generation length.
	StoryTokens int
}

// respondStage closes out a run: it narrates the correlation for analysts
// and triggers the configured response action. A failed action invocation
// is recorded and logged but never blocks the narrative. Writes evidence
// slot `soar_result` and publishes the story through the decision update.
// Always routes to Terminal.
type respondStage struct {
	gen     TextGenerator
	invoker ActionInvoker
	policy  retry.Policy
	cfg     RespondConfig
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewRespondStage creates the respond stage. invoker may be nil when no
// response backend is configured; the stage then only narrates.
func NewRespondStage(gen TextGenerator, invoker ActionInvoker, policy retry.Policy, cfg RespondConfig, logger log.Logger, metrics *Metrics) Stage {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Action == "" {
		cfg.Action = "isolate_host"
	}
	if cfg.StoryTokens <= 0 {
		cfg.StoryTokens = 180
	}
	return &respondStage{
		gen:     gen,
		invoker: invoker,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *respondStage) ID() StageID { return StageRespond }

func (s *respondStage) Run(ctx context.Context, st *State) Decision {
	corr := st.Evidence.Incident
	if corr == nil {
		s.logger.Info(ctx, "nothing to respond to")
		return Decision{Next: Terminal}
	}

	payload, _ := json.Marshal(corr)
	prompt := fmt.Sprintf("Create a concise incident summary for analysts from this structured incident: %s", payload)
	summary, err := s.gen.GenerateText(ctx, prompt, s.cfg.StoryTokens)
	if err != nil {
		s.logger.Warn(ctx, "story generation failed", "correlation", corr.ID(), "error", err)
		return Decision{Next: Terminal}
	}
	story := &Story{Summary: summary, GeneratedAt: s.now()}

	if s.invoker == nil {
		s.logger.Info(ctx, "no response backend configured, story only", "correlation", corr.ID())
		return Decision{Next: Terminal, Update: &Update{Story: story}}
	}

	params := map[string]any{
		"incident_id": corr.ID(),
		"severity":    corr.Severity(),
	}
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		result, ierr := s.invoker.Invoke(ctx, s.cfg.Action, params)
		if ierr != nil {
			return ierr
		}
		st.Evidence.SOARResult = result
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.SOARInvocations.WithLabelValues("failed").Inc()
		}
		s.logger.Error(ctx, err, "response action failed", "action", s.cfg.Action, "correlation", corr.ID())
	} else {
		if s.metrics != nil {
			s.metrics.SOARInvocations.WithLabelValues(st.Evidence.SOARResult.Status).Inc()
		}
		s.logger.Info(ctx, "response action invoked",
			"action", s.cfg.Action,
			"correlation", corr.ID(),
			"status", st.Evidence.SOARResult.Status,
		)
	}

	return Decision{Next: Terminal, Update: &Update{Story: story}}
}
