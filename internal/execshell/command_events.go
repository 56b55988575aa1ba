package execshell

// CommandEventObserver receives lifecycle notifications for commands executed by a CommandDriver.
type CommandEventObserver interface {
	// CommandStarted notifies observers that command execution is beginning.
	CommandStarted(command Command)
	// CommandCompleted notifies observers that the shell reported an exit status for the command.
	CommandCompleted(command Command, result Result)
	// CommandExecutionFailed reports commands that ended without an exit status from the shell.
	CommandExecutionFailed(command Command, failure error)
}

// SessionEventObserver is optionally implemented by a CommandEventObserver that also tracks
// shell sessions started and stopped by the driver.
type SessionEventObserver interface {
	SessionStarted(processIdentifier int)
	SessionStopped(processIdentifier int)
}

// noopCommandEventObserver discards all command events.
type noopCommandEventObserver struct{}

// CommandStarted implements CommandEventObserver for the no-op observer.
func (noopCommandEventObserver) CommandStarted(Command) {}

// CommandCompleted implements CommandEventObserver for the no-op observer.
func (noopCommandEventObserver) CommandCompleted(Command, Result) {}

// CommandExecutionFailed implements CommandEventObserver for the no-op observer.
func (noopCommandEventObserver) CommandExecutionFailed(Command, error) {}

// MultiObserver fans command and session events out to several observers in order.
type MultiObserver struct {
	observers []CommandEventObserver
}

// NewMultiObserver combines observers, skipping nil entries.
func NewMultiObserver(observers ...CommandEventObserver) *MultiObserver {
	combined := make([]CommandEventObserver, 0, len(observers))
	for _, observer := range observers {
		if observer != nil {
			combined = append(combined, observer)
		}
	}
	return &MultiObserver{observers: combined}
}

// CommandStarted implements CommandEventObserver.
func (multiObserver *MultiObserver) CommandStarted(command Command) {
	for _, observer := range multiObserver.observers {
		observer.CommandStarted(command)
	}
}

// CommandCompleted implements CommandEventObserver.
func (multiObserver *MultiObserver) CommandCompleted(command Command, result Result) {
	for _, observer := range multiObserver.observers {
		observer.CommandCompleted(command, result)
	}
}

// CommandExecutionFailed implements CommandEventObserver.
func (multiObserver *MultiObserver) CommandExecutionFailed(command Command, failure error) {
	for _, observer := range multiObserver.observers {
		observer.CommandExecutionFailed(command, failure)
	}
}

// SessionStarted implements SessionEventObserver for the observers that support it.
func (multiObserver *MultiObserver) SessionStarted(processIdentifier int) {
	for _, observer := range multiObserver.observers {
		if sessionObserver, observesSessions := observer.(SessionEventObserver); observesSessions {
			sessionObserver.SessionStarted(processIdentifier)
		}
	}
}

// SessionStopped implements SessionEventObserver for the observers that support it.
func (multiObserver *MultiObserver) SessionStopped(processIdentifier int) {
	for _, observer := range multiObserver.observers {
		if sessionObserver, observesSessions := observer.(SessionEventObserver); observesSessions {
			sessionObserver.SessionStopped(processIdentifier)
		}
	}
}
