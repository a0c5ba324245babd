// Package lifecycle runs the gateway process through a validated state
// machine with start and stop hooks.
//
// The flow for a healthy process is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed. A [Service] whose start hooks
// fail ends in Failed and must not serve traffic; the binary exits instead.
//
// Lifecycle operations create spans under the tracer scope
// "github.com/StricklySoft/identity-gateway/pkg/lifecycle".
package lifecycle

// State is the lifecycle state of a [Service]. The zero value is not a
// valid state; services start in [StateUnknown].
type State string

const (
	// StateUnknown is the state of a service that was never started.
	StateUnknown State = "unknown"

	// StateStarting is set while the start hooks run.
	StateStarting State = "starting"

	// StateRunning is the only state in which [Service.Health] succeeds.
	StateRunning State = "running"

	// StateStopping is set while the stop hooks run.
	StateStopping State = "stopping"

	StateStopped State = "stopped"

	// StateFailed records that a hook failed. The error is logged before
	// the transition.
	StateFailed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is [StateStopped] or [StateFailed].
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions is the transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//
// Stopped and Failed are final. A process restarts by exiting.
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
}

// ValidTransition reports whether the state machine allows from → to.
// Same-state transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
