package capture

// State is a capture loop lifecycle state
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateStopping
	StateFaulted
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFaulted:
		return "faulted"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}
