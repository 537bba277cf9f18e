package hunt

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Run outcomes reported on the runs metric.
const (
	OutcomeAlerts = "alerts"
	OutcomeClean  = "clean"
	OutcomeFailed = "failed"
)

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	ID          string       `json:"id"`
	Alerts      []Alert      `json:"alerts"`
	Story       *Story       `json:"story,omitempty"`
	Correlation *Correlation `json:"correlation,omitempty"`
	Outcome     string       `json:"outcome"`
	Duration    float64      `json:"duration_seconds"`
	CompletedAt time.Time    `json:"completed_at"`
}

// Notifier delivers a completed run to an external channel.
type Notifier interface {
	Send(ctx context.Context, result *RunResult) error
}

// Service is the business boundary for hunt runs: it assigns run ids, drives
// the engine, and notifies on runs that produced a correlation.
type Service struct {
	engine   *Engine
	notifier Notifier
	logger   log.Logger
	metrics  *Metrics
}

// NewService creates a hunt service. notifier may be nil.
func NewService(engine *Engine, notifier Notifier, logger log.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes the pipeline synchronously over the submitted records.
func (s *Service) Run(ctx context.Context, messages []Message) (*RunResult, error) {
	id := ulid.Make().String()
	L := s.logger.With("hunt_id", id)
	start := time.Now()

	st, err := s.engine.Invoke(ctx, NewState(messages))
	if err != nil {
		s.countRun(OutcomeFailed)
		L.Error(ctx, err, "hunt run failed")
		return nil, err
	}

	result := s.buildResult(id, st, start)
	s.countRun(result.Outcome)
	L.Info(ctx, "hunt run complete",
		"outcome", result.Outcome,
		"alerts", len(result.Alerts),
		"duration", result.Duration,
	)

	s.maybeNotify(ctx, L, result)
	return result, nil
}

// Stream executes the pipeline and forwards per-stage snapshots. The
// returned id identifies the run; the channel closes when the run ends.
func (s *Service) Stream(ctx context.Context, messages []Message) (string, <-chan Snapshot) {
	id := ulid.Make().String()
	L := s.logger.With("hunt_id", id)
	start := time.Now()

	in := s.engine.Stream(ctx, NewState(messages))
	out := make(chan Snapshot)
	go func() {
		defer close(out)
		var last *State
		failed := false
		for snap := range in {
			if snap.Err != nil {
				failed = true
				L.Error(ctx, snap.Err, "hunt stream failed")
			}
			if snap.State != nil {
				last = snap.State
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}

		if failed || last == nil {
			s.countRun(OutcomeFailed)
			return
		}
		result := s.buildResult(id, last, start)
		s.countRun(result.Outcome)
		L.Info(ctx, "hunt stream complete", "outcome", result.Outcome, "alerts", len(result.Alerts))
		s.maybeNotify(ctx, L, result)
	}()
	return id, out
}

func (s *Service) buildResult(id string, st *State, start time.Time) *RunResult {
	outcome := OutcomeClean
	if len(st.Alerts) > 0 {
		outcome = OutcomeAlerts
	}
	return &RunResult{
		ID:          id,
		Alerts:      st.Alerts,
		Story:       st.Story,
		Correlation: st.Evidence.Incident,
		Outcome:     outcome,
		Duration:    time.Since(start).Seconds(),
		CompletedAt: time.Now(),
	}
}

// maybeNotify posts runs that produced a correlation. Delivery is off the
// request path and survives request cancellation.
func (s *Service) maybeNotify(ctx context.Context, L log.Logger, result *RunResult) {
	if s.notifier == nil || result.Correlation == nil {
		return
	}
	go func(ctx context.Context) {
		if err := s.notifier.Send(ctx, result); err != nil {
			if s.metrics != nil {
				s.metrics.NotifyErrors.Inc()
			}
			L.Error(ctx, err, "completion notification failed")
		}
	}(context.WithoutCancel(ctx))
}

func (s *Service) countRun(outcome string) {
	if s.metrics != nil {
		s.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	}
}
