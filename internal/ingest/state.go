package ingest

// State is a pipeline run state.
type State int

const (
	StateIdle State = iota
	StateParsing
	StateResolving
	StateFiltering
	StateWriting
	StateCommitted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:      "Idle",
	StateParsing:   "Parsing",
	StateResolving: "Resolving",
	StateFiltering: "Filtering",
	StateWriting:   "Writing",
	StateCommitted: "Committed",
	StateFailed:    "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

// transitions lists the allowed moves of the run state machine.
var transitions = map[State][]State{
	StateIdle:      {StateParsing},
	StateParsing:   {StateResolving, StateCommitted, StateFailed},
	StateResolving: {StateFiltering, StateFailed},
	StateFiltering: {StateWriting, StateFailed},
	StateWriting:   {StateCommitted, StateFailed},
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
