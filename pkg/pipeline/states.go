package pipeline

// State is a job's position in the restoration lifecycle.
type State string

const (
	StateQueued     State = "QUEUED"
	StateAnalyzing  State = "ANALYZING"
	StatePlanning   State = "PLANNING"
	StateEditing    State = "EDITING"
	StateValidating State = "VALIDATING"
	StateDecided    State = "DECIDED"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// transitions is the fixed forward graph. VALIDATING has two exits:
// DECIDED for a verdict, EDITING for the retry loop. The fault edge
// to FAILED from any non-terminal state is handled in CanTransitionTo
// rather than enumerated here.
var transitions = map[State][]State{
	StateQueued:     {StateAnalyzing},
	StateAnalyzing:  {StatePlanning},
	StatePlanning:   {StateEditing},
	StateEditing:    {StateValidating},
	StateValidating: {StateDecided, StateEditing},
	StateDecided:    {StateCompleted, StateFailed},
}

// IsTerminal reports whether no further transitions are permitted.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo reports whether target is reachable from s.
func (s State) CanTransitionTo(target State) bool {
	if s.IsTerminal() {
		return false
	}
	if target == StateFailed {
		return true
	}
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Reason constants for transitions the machine itself initiates.
const (
	ReasonCancelled  = "cancelled"
	ReasonStageFault = "stage_fault"
)
