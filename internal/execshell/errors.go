package execshell

import (
	"errors"
	"fmt"
)

const (
	commandExecutionErrorTemplateConstant = "command %s failed: %v"
)

var (
	// ErrLoggerNotConfigured indicates that a CommandDriver was constructed without a logger.
	ErrLoggerNotConfigured   = errors.New("command driver logger not configured")
	// ErrLauncherNotConfigured indicates that a CommandDriver was constructed without a session launcher.
	ErrLauncherNotConfigured = errors.New("shell session launcher not configured")
	// ErrCommandRejected indicates a command refused before it reached the shell.
	ErrCommandRejected       = errors.New("command rejected")
)

// CommandExecutionError ties a failure to the command that caused it.
type CommandExecutionError struct {
	Command Command
	Cause   error
}

// Error describes the failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, executionError.Command.ID, executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}
