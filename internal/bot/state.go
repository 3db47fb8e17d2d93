package bot

// RunState is the lifecycle stage of one instance. States only move
// forward, in declaration order; skipping ahead is allowed.
type RunState int

const (
	StateCreated RunState = iota
	StateInitializing
	StatePolling
	StateStopping
	StateStopped
)

func (s RunState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StatePolling:
		return "polling"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
