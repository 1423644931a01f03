package engine

// State is the phase of a Scheduler.
type State int

const (
	StateIdle State = iota
	StateConfiguringLayers
	StateDrawing
	StateRetrying
	StateAdvancing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguringLayers:
		return "configuring_layers"
	case StateDrawing:
		return "drawing"
	case StateRetrying:
		return "retrying"
	case StateAdvancing:
		return "advancing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}
