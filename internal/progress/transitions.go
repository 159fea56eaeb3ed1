package progress

import "fmt"

// validEdges enumerates the state machine's legal transitions. "any ->
// idle" is modeled as a wildcard checked separately in isValidTransition.
var validEdges = map[State][]State{
	StateIdle:      {StateQueued},
	StateQueued:    {StateRunning},
	StateRunning:   {StatePaused, StateCompleted, StateFailed},
	StatePaused:    {StateRunning},
	StateCompleted: {},
	StateFailed:    {},
}

func isValidTransition(from, to State) bool {
	if to == StateIdle {
		return true // explicit reset, legal from any state
	}
	for _, allowed := range validEdges[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition reports a state machine edge that isn't legal.
type ErrInvalidTransition struct {
	Source   string
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("progress: %s: illegal transition %s -> %s", e.Source, e.From, e.To)
}
