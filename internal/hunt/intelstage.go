package hunt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/hunt/internal/event"
	"github.com/linnemanlabs/hunt/internal/intel"
	"github.com/linnemanlabs/hunt/internal/llm"
	"github.com/linnemanlabs/hunt/internal/taskgroup"
)

// fuzzyConfidence is assigned to substring matches, which are weaker than
// exact value matches.
const fuzzyConfidence = 0.35

// rationaleTokens caps the generated one-line match rationale.
const rationaleTokens = 80

// IntelConfig tunes the intel stage.
type IntelConfig struct {
	// Fanout bounds concurrent per-event enrichments.
	Fanout int
	// SimilarityFloor is the minimum cosine similarity for an exact match
	// to carry a generated rationale.
	SimilarityFloor float64
}

// intelStage enriches collected events against the indicator feed. A feed
// fetch failure degrades the run rather than ending it: every event passes
// through unenriched. Writes evidence slot `enriched`.
type intelStage struct {
	source   IndicatorSource
	embedder Embedder
	gen      TextGenerator
	cfg      IntelConfig
	logger   log.Logger
	metrics  *Metrics
}

// NewIntelStage creates the intel stage. source may be nil when no feed is
// configured; events then pass through unenriched. gen supplies the
// rationale for high-similarity matches.
func NewIntelStage(source IndicatorSource, embedder Embedder, gen TextGenerator, cfg IntelConfig, logger log.Logger, metrics *Metrics) Stage {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 8
	}
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = 0.5
	}
	return &intelStage{
		source:   source,
		embedder: embedder,
		gen:      gen,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

func (s *intelStage) ID() StageID { return StageIntel }

func (s *intelStage) Run(ctx context.Context, st *State) Decision {
	var indicators []intel.Indicator
	if s.source != nil {
		var err error
		indicators, err = s.source.Indicators(ctx)
		if err != nil {
			if s.metrics != nil {
				s.metrics.IntelErrors.Inc()
			}
			s.logger.Warn(ctx, "indicator feed unavailable, continuing unenriched", "error", err)
			indicators = nil
		}
	}

	results := taskgroup.Map(ctx, s.cfg.Fanout, st.Evidence.Raw, func(ctx context.Context, ev event.Normalized) (EnrichedEvent, error) {
		return s.enrich(ctx, ev, indicators), nil
	})

	enriched := make([]EnrichedEvent, 0, len(results))
	matched := 0
	for i, r := range results {
		if r.Err != nil {
			// enrich never returns an error itself; this is panic recovery
			// from the task group. Keep the event unenriched.
			if s.metrics != nil {
				s.metrics.IntelErrors.Inc()
			}
			s.logger.Error(ctx, r.Err, "event enrichment failed", "fingerprint", st.Evidence.Raw[i].Fingerprint)
			enriched = append(enriched, EnrichedEvent{Event: st.Evidence.Raw[i]})
			continue
		}
		if r.Value.IndicatorMatch {
			matched++
		}
		enriched = append(enriched, r.Value)
	}

	st.Evidence.Enriched = enriched
	s.logger.Info(ctx, "intel enrichment complete",
		"events", len(enriched),
		"matched", matched,
		"indicators", len(indicators),
	)
	return Decision{Next: StageHypothesis}
}

// enrich matches one event against the feed: first exact indicator values
// on the host or meta ip, then fuzzy substring matches over the host and
// the stringified meta. The first hit of the stronger kind is taken.
func (s *intelStage) enrich(ctx context.Context, ev event.Normalized, indicators []intel.Indicator) EnrichedEvent {
	out := EnrichedEvent{Event: ev}

	host := ev.Host
	if host == "unknown" {
		host = ""
	}
	metaIP, _ := ev.Meta["ip"].(string)
	var metaText string
	if len(ev.Meta) > 0 {
		metaText = fmt.Sprint(ev.Meta)
	}
	if host == "" && metaIP == "" && metaText == "" {
		return out
	}

	for i := range indicators {
		ind := &indicators[i]
		if ind.Value == "" {
			continue
		}
		if (host != "" && ind.Value == host) || (metaIP != "" && ind.Value == metaIP) {
			out.IndicatorMatch = true
			out.Indicator = ind
			out.Confidence = 1.0
			if s.embedder != nil {
				base := host
				if base == "" {
					base = metaText
				}
				sim := llm.Cosine(s.embedder.Embed(base), s.embedder.Embed(ind.Value))
				out.Confidence = sim
				if sim > s.cfg.SimilarityFloor {
					out.Rationale = s.rationale(ctx, ev, ind)
				}
			}
			if s.metrics != nil {
				s.metrics.IntelHits.WithLabelValues("exact").Inc()
			}
			return out
		}
	}

	for i := range indicators {
		ind := &indicators[i]
		if ind.Value == "" {
			continue
		}
		if (host != "" && strings.Contains(host, ind.Value)) || (metaText != "" && strings.Contains(metaText, ind.Value)) {
			out.IndicatorMatch = true
			out.Indicator = ind
			out.Confidence = fuzzyConfidence
			if s.metrics != nil {
				s.metrics.IntelHits.WithLabelValues("fuzzy").Inc()
			}
			return out
		}
	}

	return out
}

// rationale asks the generator for a one-line justification of a
// high-similarity match. A generation failure leaves the match without a
// rationale.
func (s *intelStage) rationale(ctx context.Context, ev event.Normalized, ind *intel.Indicator) string {
	if s.gen == nil {
		return ""
	}
	payload, _ := json.Marshal(ev)
	p := string(payload)
	if len(p) > 300 {
		p = p[:300]
	}
	prompt := fmt.Sprintf("Provide a one-line rationale for why this event matches indicator %s: event=%s", ind.ID, p)
	text, err := s.gen.GenerateText(ctx, prompt, rationaleTokens)
	if err != nil {
		s.logger.Warn(ctx, "match rationale generation failed", "indicator", ind.ID, "error", err)
		return ""
	}
	return text
}
