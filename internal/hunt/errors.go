package hunt

import (
	"fmt"
)

// ValidationError marks a malformed input record or an unsafe compiled
// query. Items failing validation are skipped and counted, never fatal.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// PipelineError is a hard failure of the engine itself: a graph
// configuration error or a routing invariant violation. It is the only
// error class surfaced to callers of Invoke/Stream.
type PipelineError struct {
	Stage StageID
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
