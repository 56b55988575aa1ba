package execshell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/temirov/shellwire/internal/channel"
	"github.com/temirov/shellwire/internal/delimiter"
	"github.com/temirov/shellwire/internal/guard"
	"github.com/temirov/shellwire/internal/session"
)

const (
	executeOperationConstant                    = "execute"
	shellLoggerNameConstant                     = "shell"
	delimiterConfigurationErrorTemplateConstant = "configure delimiter generator: %w"
	channelConfigurationErrorTemplateConstant   = "configure command channel: %w"
	commandRejectedErrorTemplateConstant        = "%w: %w"
	sessionStartedMessageConstant               = "shell session started"
	sessionStoppedMessageConstant               = "shell session stopped"
	sessionTerminateFailedMessageConstant       = "shell session termination failed"
	degradedDelimiterMessageConstant            = "delimiter generator seeded without operating system entropy"
	commandCompletedMessageConstant             = "command completed"
	commandFailedMessageConstant                = "command failed"
	commandRejectedMessageConstant              = "command rejected"
	processIdentifierFieldConstant              = "pid"
	programFieldConstant                        = "program"
	commandIdentifierFieldConstant              = "command_id"
	commandFieldConstant                        = "command"
	exitStatusFieldConstant                     = "exit_status"
	sessionEndedFieldConstant                   = "session_ended"
	durationFieldConstant                       = "duration"
	reasonFieldConstant                         = "reason"
	stopReasonShutdownConstant                  = "shutdown"
	stopReasonRestartConstant                   = "restart"
	stopReasonSessionEndedConstant              = "session_ended"
	stopReasonSendFailedConstant                = "send_failed"
	stopReasonTimeoutConstant                   = "timeout"
)

// Dependencies are the collaborators of a CommandDriver.
type Dependencies struct {
	Logger   *zap.Logger
	Launcher session.Launcher
	Observer CommandEventObserver
}

// CommandDriver runs commands one at a time in a persistent shell and returns their output and
// exit status.
type CommandDriver struct {
	logger        *zap.Logger
	configuration Configuration
	launcher      session.Launcher
	observer      CommandEventObserver
	generator     *delimiter.Generator
	validator     *guard.Validator
	formatter     CommandMessageFormatter

	executionMutex sync.Mutex

	stateMutex sync.Mutex
	state      State
	active     *activeSession
}

// activeSession groups a running shell with the channel and the diagnostic log writer bound to it.
type activeSession struct {
	shellSession     session.Session
	commandChannel   *channel.CommandChannel
	diagnosticWriter *zapio.Writer
}

// NewCommandDriver validates its dependencies and starts the shell session. A failed spawn is
// returned as *session.SpawnError.
func NewCommandDriver(executionContext context.Context, configuration Configuration, dependencies Dependencies) (*CommandDriver, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Launcher == nil {
		return nil, ErrLauncherNotConfigured
	}

	sanitizedConfiguration := configuration.Sanitize()

	generator, generatorError := delimiter.NewGenerator(sanitizedConfiguration.delimiterOptions())
	if generatorError != nil {
		return nil, fmt.Errorf(delimiterConfigurationErrorTemplateConstant, generatorError)
	}
	if generator.Degraded() {
		dependencies.Logger.Warn(degradedDelimiterMessageConstant)
	}

	observer := dependencies.Observer
	if observer == nil {
		observer = noopCommandEventObserver{}
	}

	driver := &CommandDriver{
		logger:        dependencies.Logger,
		configuration: sanitizedConfiguration,
		launcher:      dependencies.Launcher,
		observer:      observer,
		generator:     generator,
		validator:     guard.NewValidator(sanitizedConfiguration.guardOptions()),
		formatter:     CommandMessageFormatter{},
		state:         StateUninitialized,
	}

	if startError := driver.startSession(executionContext); startError != nil {
		return nil, startError
	}

	return driver, nil
}

// Execute sends command to the shell and waits for its output and exit status.
//
// Calls are serialized. When the shell exits while running the command, as with `exit 3`, the
// exit code becomes the result status and the driver is terminated. A timeout or a lost stream
// also terminates the driver; Restart starts a fresh shell.
func (driver *CommandDriver) Execute(executionContext context.Context, commandText string) (Result, error) {
	driver.executionMutex.Lock()
	defer driver.executionMutex.Unlock()

	command := Command{ID: uuid.NewString(), Text: commandText}

	driver.stateMutex.Lock()
	if driver.state != StateReady {
		driver.stateMutex.Unlock()
		return Result{ExitStatus: channel.UnknownExitStatus}, CommandExecutionError{
			Command: command,
			Cause:   channel.NewChannelError(channel.KindSessionClosed, executeOperationConstant, nil),
		}
	}
	driver.state = StateExecuting
	current := driver.active
	driver.stateMutex.Unlock()

	driver.observer.CommandStarted(command)

	if validationError := driver.validator.Validate(commandText); validationError != nil {
		driver.transitionState(StateExecuting, StateReady)
		failure := CommandExecutionError{Command: command, Cause: fmt.Errorf(commandRejectedErrorTemplateConstant, ErrCommandRejected, validationError)}
		driver.logger.Info(commandRejectedMessageConstant, zap.String(commandIdentifierFieldConstant, command.ID), zap.Error(validationError))
		driver.observer.CommandExecutionFailed(command, failure)
		return Result{ExitStatus: channel.UnknownExitStatus}, failure
	}

	startTime := time.Now()
	response, _, exchangeError := current.commandChannel.Exchange(executionContext, commandText, driver.generator.Generate())
	result := Result{Output: response.Output, ExitStatus: response.ExitStatus, Duration: time.Since(startTime)}

	if exchangeError == nil {
		driver.transitionState(StateExecuting, StateReady)
		driver.logCompletion(command, result)
		driver.observer.CommandCompleted(command, result)
		return result, nil
	}

	failureKind, _ := channel.KindOf(exchangeError)
	switch failureKind {
	case channel.KindParseFailed:
		driver.transitionState(StateExecuting, StateReady)
	case channel.KindReadFailed:
		exitState, exited := current.shellSession.WaitExit(driver.configuration.ExitGracePeriod)
		driver.stopAfterFailure(current, stopReasonSessionEndedConstant)
		result.SessionEnded = true
		if exited && !exitState.Signaled {
			result.ExitStatus = exitState.Code
			driver.logCompletion(command, result)
			driver.observer.CommandCompleted(command, result)
			return result, nil
		}
	case channel.KindTimeout:
		driver.stopAfterFailure(current, stopReasonTimeoutConstant)
		result.SessionEnded = true
	default:
		driver.stopAfterFailure(current, stopReasonSendFailedConstant)
		result.SessionEnded = true
	}

	failure := CommandExecutionError{Command: command, Cause: exchangeError}
	driver.logger.Warn(
		commandFailedMessageConstant,
		zap.String(commandIdentifierFieldConstant, command.ID),
		zap.String(commandFieldConstant, driver.formatter.FormatCommandLabel(command)),
		zap.Bool(sessionEndedFieldConstant, result.SessionEnded),
		zap.Error(exchangeError),
	)
	driver.observer.CommandExecutionFailed(command, failure)
	return result, failure
}

// Shutdown terminates the shell session. Calling it again, or after the session already ended,
// returns nil.
func (driver *CommandDriver) Shutdown() error {
	driver.stateMutex.Lock()
	if driver.state == StateTerminated || driver.active == nil {
		driver.state = StateTerminated
		driver.stateMutex.Unlock()
		return nil
	}
	driver.state = StateTerminated
	current := driver.active
	driver.stateMutex.Unlock()

	return driver.stopSession(current, stopReasonShutdownConstant)
}

// Restart terminates the current shell session, if any, and starts a new one.
func (driver *CommandDriver) Restart(executionContext context.Context) error {
	driver.executionMutex.Lock()
	defer driver.executionMutex.Unlock()

	driver.stateMutex.Lock()
	previous := driver.active
	previouslyRunning := driver.state != StateTerminated && previous != nil
	driver.state = StateTerminated
	driver.stateMutex.Unlock()

	if previouslyRunning {
		if stopError := driver.stopSession(previous, stopReasonRestartConstant); stopError != nil {
			driver.logger.Warn(sessionTerminateFailedMessageConstant, zap.Error(stopError))
		}
	}

	return driver.startSession(executionContext)
}

// State reports the lifecycle state of the driver.
func (driver *CommandDriver) State() State {
	driver.stateMutex.Lock()
	defer driver.stateMutex.Unlock()
	return driver.state
}

// PID returns the process identifier of the current shell, or zero before a session started.
func (driver *CommandDriver) PID() int {
	driver.stateMutex.Lock()
	defer driver.stateMutex.Unlock()
	if driver.active == nil {
		return 0
	}
	return driver.active.shellSession.PID()
}

func (driver *CommandDriver) startSession(executionContext context.Context) error {
	if executionContext == nil {
		executionContext = context.Background()
	}

	diagnosticWriter := &zapio.Writer{Log: driver.logger.Named(shellLoggerNameConstant), Level: zap.WarnLevel}
	sessionOptions := driver.configuration.sessionOptions()
	sessionOptions.DiagnosticOutput = diagnosticWriter

	shellSession, launchError := driver.launcher.Launch(executionContext, sessionOptions)
	if launchError != nil {
		return launchError
	}

	commandChannel, channelError := channel.NewCommandChannel(shellSession.Input(), shellSession.Output(), driver.configuration.channelOptions())
	if channelError != nil {
		_ = shellSession.Terminate()
		return fmt.Errorf(channelConfigurationErrorTemplateConstant, channelError)
	}

	driver.stateMutex.Lock()
	driver.active = &activeSession{shellSession: shellSession, commandChannel: commandChannel, diagnosticWriter: diagnosticWriter}
	driver.state = StateReady
	driver.stateMutex.Unlock()

	driver.logger.Info(
		sessionStartedMessageConstant,
		zap.Int(processIdentifierFieldConstant, shellSession.PID()),
		zap.String(programFieldConstant, driver.configuration.Program),
	)
	if sessionObserver, observesSessions := driver.observer.(SessionEventObserver); observesSessions {
		sessionObserver.SessionStarted(shellSession.PID())
	}
	return nil
}

// stopAfterFailure stops the session unless Shutdown already did.
func (driver *CommandDriver) stopAfterFailure(current *activeSession, reason string) {
	if !driver.transitionState(StateExecuting, StateTerminated) {
		return
	}
	if stopError := driver.stopSession(current, reason); stopError != nil {
		driver.logger.Warn(sessionTerminateFailedMessageConstant, zap.Error(stopError))
	}
}

func (driver *CommandDriver) stopSession(current *activeSession, reason string) error {
	terminateError := current.shellSession.Terminate()

	// The writer is fed by the process's stderr until the process is reaped.
	go func() {
		<-current.shellSession.Done()
		_ = current.diagnosticWriter.Close()
	}()

	driver.logger.Info(
		sessionStoppedMessageConstant,
		zap.Int(processIdentifierFieldConstant, current.shellSession.PID()),
		zap.String(reasonFieldConstant, reason),
	)
	if sessionObserver, observesSessions := driver.observer.(SessionEventObserver); observesSessions {
		sessionObserver.SessionStopped(current.shellSession.PID())
	}
	return terminateError
}

func (driver *CommandDriver) transitionState(expected State, next State) bool {
	driver.stateMutex.Lock()
	defer driver.stateMutex.Unlock()
	if driver.state != expected {
		return false
	}
	driver.state = next
	return true
}

func (driver *CommandDriver) logCompletion(command Command, result Result) {
	driver.logger.Debug(
		commandCompletedMessageConstant,
		zap.String(commandIdentifierFieldConstant, command.ID),
		zap.String(commandFieldConstant, driver.formatter.FormatCommandLabel(command)),
		zap.Int(exitStatusFieldConstant, result.ExitStatus),
		zap.Bool(sessionEndedFieldConstant, result.SessionEnded),
		zap.Duration(durationFieldConstant, result.Duration),
	)
}
