package jsbridge

// State is the lifecycle stage of an Executor.
type State int32

const (
	StateConstructed State = iota
	StateReady
	StateRunning
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}
