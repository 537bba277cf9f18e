package hunt

import "context"

// StageID identifies a node in the pipeline graph. The set is closed:
// routing decisions may only target these values or Terminal.
type StageID int

const (
	// Terminal is the sentinel routing target that ends a run.
	Terminal StageID = iota
	StageCollect
	StageIntel
	StageHypothesis
	StageQueryBuild
	StageDetect
	StageCorrelate
	StageRespond
)

// pipelineOrder is the default linear edge set; each stage's happy-path
// decision targets its successor, ending at Terminal.
var pipelineOrder = []StageID{
	StageCollect,
	StageIntel,
	StageHypothesis,
	StageQueryBuild,
	StageDetect,
	StageCorrelate,
	StageRespond,
}

func (id StageID) String() string {
	switch id {
	case Terminal:
		return "terminal"
	case StageCollect:
		return "collect"
	case StageIntel:
		return "intel"
	case StageHypothesis:
		return "hypothesis"
	case StageQueryBuild:
		return "query_build"
	case StageDetect:
		return "detect"
	case StageCorrelate:
		return "correlate"
	case StageRespond:
		return "respond"
	}
	return "unknown"
}

// Update is an optional partial state update declared by a routing decision.
// Applying it is equivalent to the stage writing the fields in place; the
// engine does not diff or merge.
type Update struct {
	Alerts []Alert
	Story  *Story
}

// Decision routes the run after a stage completes: the next stage to
// dispatch (or Terminal for early exit) plus an optional update.
type Decision struct {
	Next   StageID
	Update *Update
}

// Stage is one unit of pipeline work. Run reads and writes its designated
// evidence slots on st and returns a routing decision. Failures inside a
// stage route to Terminal; they never propagate past the engine.
type Stage interface {
	ID() StageID
	Run(ctx context.Context, st *State) Decision
}
