package hunt

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxDispatches bounds one run. The graph is linear with early exits, so a
// run can never legitimately dispatch more stages than the graph holds;
// anything past the bound is a routing invariant violation.
var maxDispatches = len(pipelineOrder) + 1

// Engine owns the stage graph and drives runs over it. One Engine serves
// many runs; per-run state is never shared.
type Engine struct {
	stages  map[StageID]Stage
	logger  log.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewEngine builds the engine from the given stages. The stage set must
// cover the full pipeline graph exactly; a missing, duplicate, or unknown
// stage id is a configuration error reported here, not at run time.
func NewEngine(logger log.Logger, metrics *Metrics, stages ...Stage) (*Engine, error) {
	if logger == nil {
		logger = log.Nop()
	}

	byID := make(map[StageID]Stage, len(stages))
	for _, s := range stages {
		id := s.ID()
		if id == Terminal {
			return nil, &PipelineError{Stage: id, Err: fmt.Errorf("stage registered for terminal marker")}
		}
		if !knownStage(id) {
			return nil, &PipelineError{Stage: id, Err: fmt.Errorf("unknown stage id %d", int(id))}
		}
		if _, dup := byID[id]; dup {
			return nil, &PipelineError{Stage: id, Err: fmt.Errorf("duplicate stage")}
		}
		byID[id] = s
	}
	for _, id := range pipelineOrder {
		if _, ok := byID[id]; !ok {
			return nil, &PipelineError{Stage: id, Err: fmt.Errorf("stage not registered")}
		}
	}

	return &Engine{
		stages:  byID,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("hunt/engine"),
	}, nil
}

func knownStage(id StageID) bool {
	for _, known := range pipelineOrder {
		if id == known {
			return true
		}
	}
	return false
}

// Invoke runs the pipeline to completion synchronously, mutating and
// returning st. Stage-level failures route to Terminal inside the stages;
// only an engine invariant violation is returned as an error.
func (e *Engine) Invoke(ctx context.Context, st *State) (*State, error) {
	err := e.run(ctx, st, nil)
	return st, err
}

// Snapshot is one element of a streamed run: the state as of the completed
// stage. Err is set only when the engine itself failed.
type Snapshot struct {
	Stage StageID `json:"stage"`
	State *State  `json:"state,omitempty"`
	Err   error   `json:"-"`
}

// Stream runs the pipeline and emits a state snapshot after each completed
// stage. The channel is closed when the run reaches Terminal or ctx is
// cancelled. Each call is a fresh run; a stream is not resumable.
func (e *Engine) Stream(ctx context.Context, st *State) <-chan Snapshot {
	ch := make(chan Snapshot)
	go func() {
		defer close(ch)
		err := e.run(ctx, st, func(id StageID, snap *State) bool {
			select {
			case ch <- Snapshot{Stage: id, State: snap}:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			select {
			case ch <- Snapshot{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

// run dispatches stages starting at the entry stage until a decision routes
// to Terminal. emit, when non-nil, is called after every completed stage and
// may abort the run by returning false.
func (e *Engine) run(ctx context.Context, st *State, emit func(StageID, *State) bool) error {
	start := time.Now()
	current := pipelineOrder[0]

	for dispatched := 0; ; dispatched++ {
		if dispatched >= maxDispatches {
			return &PipelineError{Stage: current, Err: fmt.Errorf("dispatch budget exhausted, routing loop suspected")}
		}

		stage, ok := e.stages[current]
		if !ok {
			return &PipelineError{Stage: current, Err: fmt.Errorf("decision routed to unregistered stage")}
		}

		stageCtx, span := e.tracer.Start(ctx, "hunt.stage."+current.String(),
			trace.WithAttributes(attribute.String("hunt.stage", current.String())),
		)
		stageStart := time.Now()
		decision := stage.Run(stageCtx, st)
		elapsed := time.Since(stageStart)
		span.SetAttributes(attribute.String("hunt.next", decision.Next.String()))
		span.End()

		e.applyUpdate(st, decision.Update)

		if e.metrics != nil {
			e.metrics.StageDuration.WithLabelValues(current.String()).Observe(elapsed.Seconds())
		}
		e.logger.Info(ctx, "stage complete",
			"stage", current.String(),
			"next", decision.Next.String(),
			"duration", elapsed.Seconds(),
		)

		if emit != nil && !emit(current, st.Clone()) {
			return ctx.Err()
		}

		if decision.Next == Terminal {
			break
		}
		current = decision.Next
	}

	if e.metrics != nil {
		e.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// applyUpdate commits a decision's partial update. Equivalent to the stage
// mutating st directly; no diffing or merging happens here.
func (e *Engine) applyUpdate(st *State, u *Update) {
	if u == nil {
		return
	}
	if u.Alerts != nil {
		st.Alerts = u.Alerts
	}
	if u.Story != nil {
		st.Story = u.Story
	}
}
