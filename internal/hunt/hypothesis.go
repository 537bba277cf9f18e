package hunt

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/hunt/internal/taskgroup"
)

// Threshold rules for candidate hypotheses.
const (
	bruteforceMinFailures = 3
	iocMinHits            = 1

	severityBruteforce = 5
	severityKnownIOC   = 4
	severityAnomaly    = 2
)

// HypothesisConfig tunes the hypothesis stage.
type HypothesisConfig struct {
	// Fanout bounds concurrent rationale refinements.
	Fanout int
	// RefineTokens caps the rationale generation length.
	RefineTokens int
}

// hypothesisStage turns enriched-event signal counts into ranked candidate
// hypotheses. Rationales are refined concurrently through the text
// generator; a refinement failure keeps the unrefined candidate. Writes
// evidence slot `hypotheses`.
type hypothesisStage struct {
	gen     TextGenerator
	scorer  *Scorer
	cfg     HypothesisConfig
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewHypothesisStage creates the hypothesis stage.
func NewHypothesisStage(gen TextGenerator, scorer *Scorer, cfg HypothesisConfig, logger log.Logger, metrics *Metrics) Stage {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 4
	}
	if cfg.RefineTokens <= 0 {
		cfg.RefineTokens = 120
	}
	return &hypothesisStage{
		gen:     gen,
		scorer:  scorer,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *hypothesisStage) ID() StageID { return StageHypothesis }

func (s *hypothesisStage) Run(ctx context.Context, st *State) Decision {
	signals := aggregateSignals(st.Evidence.Enriched)
	candidates := s.candidates(signals)

	refined := taskgroup.Map(ctx, s.cfg.Fanout, candidates, func(ctx context.Context, h Hypothesis) (Hypothesis, error) {
		prompt := fmt.Sprintf("Given hypothesis %s (query %q, support %d, severity %d), propose a concise one-sentence rationale.",
			h.ID, h.Expr, h.Support, h.Severity)
		text, err := s.gen.GenerateText(ctx, prompt, s.cfg.RefineTokens)
		if err != nil {
			return h, err
		}
		h.Rationale = text
		return h, nil
	})

	hyps := make([]Hypothesis, 0, len(refined))
	for i, r := range refined {
		if r.Err != nil {
			if s.metrics != nil {
				s.metrics.RefineErrors.Inc()
			}
			s.logger.Warn(ctx, "hypothesis refinement failed", "hypothesis", candidates[i].ID, "error", r.Err)
			hyps = append(hyps, candidates[i])
			continue
		}
		hyps = append(hyps, r.Value)
	}

	for i := range hyps {
		hyps[i].Score = s.scorer.Score(hyps[i].Severity, hyps[i].Support)
	}
	sortByScore(hyps)

	st.Evidence.Hypotheses = hyps
	if s.metrics != nil {
		s.metrics.HypothesesGenerated.Add(float64(len(hyps)))
	}
	s.logger.Info(ctx, "hypotheses generated", "count", len(hyps), "signals", len(signals))
	return Decision{Next: StageQueryBuild}
}

// aggregateSignals counts events per type and indicator hits across the
// enriched batch.
func aggregateSignals(enriched []EnrichedEvent) map[string]int {
	counts := make(map[string]int)
	for _, e := range enriched {
		counts[e.Event.Type]++
		if e.IndicatorMatch {
			counts["indicator_hits"]++
		}
	}
	return counts
}

// candidates applies the fixed threshold rules. The generic anomaly
// candidate is always emitted so an empty batch still exercises the rest of
// the pipeline.
func (s *hypothesisStage) candidates(signals map[string]int) []Hypothesis {
	now := s.now()
	var cand []Hypothesis
	if n := signals["login_fail"]; n >= bruteforceMinFailures {
		cand = append(cand, Hypothesis{
			ID:        "bruteforce",
			Expr:      "event = 'login_fail'",
			Support:   n,
			Severity:  severityBruteforce,
			CreatedAt: now,
		})
	}
	if n := signals["indicator_hits"]; n >= iocMinHits {
		cand = append(cand, Hypothesis{
			ID:        "known_ioc",
			Expr:      "indicator_match = true",
			Support:   n,
			Severity:  severityKnownIOC,
			CreatedAt: now,
		})
	}
	cand = append(cand, Hypothesis{
		ID:        "anomaly",
		Expr:      "derived_severity >= 2",
		Support:   signals["login_fail"],
		Severity:  severityAnomaly,
		CreatedAt: now,
	})
	return cand
}
