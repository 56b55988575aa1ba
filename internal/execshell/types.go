package execshell

import "time"

// Command is one request submitted to a CommandDriver.
type Command struct {
	// ID identifies the request in logs and events.
	ID   string
	Text string
}

// Result is the outcome of a command.
type Result struct {
	Output       string
	ExitStatus   int
	// SessionEnded reports that the shell exited while handling the command, as with `exit 3`.
	SessionEnded bool
	Duration     time.Duration
}

// State is the lifecycle state of a CommandDriver.
type State int32

// Driver lifecycle states.
const (
	StateUninitialized State = iota
	StateReady
	StateExecuting
	StateTerminated
)

const (
	stateUninitializedNameConstant = "uninitialized"
	stateReadyNameConstant         = "ready"
	stateExecutingNameConstant     = "executing"
	stateTerminatedNameConstant    = "terminated"
)

// String returns the lowercase name of the state.
func (state State) String() string {
	switch state {
	case StateReady:
		return stateReadyNameConstant
	case StateExecuting:
		return stateExecutingNameConstant
	case StateTerminated:
		return stateTerminatedNameConstant
	default:
		return stateUninitializedNameConstant
	}
}
