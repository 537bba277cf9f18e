package hunt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/hunt/internal/dedup"
	"github.com/linnemanlabs/hunt/internal/event"
	"github.com/linnemanlabs/hunt/internal/retry"
)

// noteTokens caps the generated note for ambiguous events.
const noteTokens = 64

// CollectConfig tunes the collect stage.
type CollectConfig struct {
	// DedupTTL is how long an event fingerprint suppresses duplicates.
	DedupTTL time.Duration
	// MaxBatch caps the events accepted into one run.
	MaxBatch int
	// MaxAttempts bounds retries of the normalization pass.
	MaxAttempts int
}

// collectStage normalizes raw input records into events, drops duplicates
// via the shared dedup cache, and optionally augments the batch from an
// external source. Writes evidence slot `raw`.
type collectStage struct {
	cache   *dedup.Cache
	source  RawSource
	gen     TextGenerator
	policy  retry.Policy
	cfg     CollectConfig
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewCollectStage creates the collect stage. source may be nil when no
// external event source is configured. gen annotates events of unknown type
// with a short note; nil disables the annotation.
func NewCollectStage(cache *dedup.Cache, source RawSource, gen TextGenerator, policy retry.Policy, cfg CollectConfig, logger log.Logger, metrics *Metrics) Stage {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	return &collectStage{
		cache:   cache,
		source:  source,
		gen:     gen,
		policy:  policy,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *collectStage) ID() StageID { return StageCollect }

func (s *collectStage) Run(ctx context.Context, st *State) Decision {
	records := make([]map[string]any, 0, len(st.Messages))
	for _, m := range st.Messages {
		records = append(records, m.Content)
	}

	// configuration-driven pull from an external source, on top of the
	// submitted batch
	if s.source != nil {
		var extra []map[string]any
		err := s.policy.Do(ctx, func(ctx context.Context) error {
			var ferr error
			extra, ferr = s.source.Fetch(ctx)
			return ferr
		})
		if err != nil {
			s.logger.Warn(ctx, "extra event source fetch failed", "error", err)
		} else {
			records = append(records, extra...)
		}
	}

	var events []event.Normalized
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		events, err = s.normalizePass(records)
		if err == nil {
			break
		}
		s.logger.Error(ctx, err, "normalization pass failed", "attempt", attempt)
	}
	if err != nil {
		s.logger.Warn(ctx, "collect giving up after failed normalization", "attempts", s.cfg.MaxAttempts)
		return Decision{Next: Terminal}
	}

	if len(events) > s.cfg.MaxBatch {
		s.logger.Warn(ctx, "collect batch truncated", "events", len(events), "max", s.cfg.MaxBatch)
		events = events[:s.cfg.MaxBatch]
	}

	s.annotate(ctx, events)

	st.Evidence.Raw = events
	s.logger.Info(ctx, "collected events", "accepted", len(events), "submitted", len(records))
	return Decision{Next: StageIntel}
}

// annotate adds a generated note to events of unknown type, giving analysts
// a starting point for otherwise ambiguous payloads. A generation failure
// leaves the event unannotated.
func (s *collectStage) annotate(ctx context.Context, events []event.Normalized) {
	if s.gen == nil {
		return
	}
	for i := range events {
		if events[i].Type != "unknown" {
			continue
		}
		payload, _ := json.Marshal(events[i])
		p := string(payload)
		if len(p) > 400 {
			p = p[:400]
		}
		prompt := fmt.Sprintf("Shortly describe what a suspicious event might be for payload: %s", p)
		note, err := s.gen.GenerateText(ctx, prompt, noteTokens)
		if err != nil {
			s.logger.Warn(ctx, "event note generation failed", "fingerprint", events[i].Fingerprint, "error", err)
			continue
		}
		if events[i].Meta == nil {
			events[i].Meta = map[string]any{}
		}
		events[i].Meta["llm_note"] = note
		if s.metrics != nil {
			s.metrics.EventsAnnotated.Inc()
		}
	}
}

// normalizePass normalizes every record, skipping malformed ones and
// dropping fingerprints already live in the dedup cache. The whole pass
// fails only on an unexpected panic, which the retry loop above absorbs.
func (s *collectStage) normalizePass(records []map[string]any) (events []event.Normalized, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalization panic: %v", r)
		}
	}()

	now := s.now()
	for _, raw := range records {
		n, nerr := event.Normalize(raw, now)
		if nerr != nil {
			if s.metrics != nil {
				s.metrics.NormalizeErrors.Inc()
			}
			continue
		}
		if !s.cache.CheckAndSet("evt:"+n.Fingerprint, true, s.cfg.DedupTTL) {
			if s.metrics != nil {
				s.metrics.EventsDeduped.Inc()
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.EventsNormalized.Inc()
		}
		events = append(events, n)
	}
	return events, nil
}
