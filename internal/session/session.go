package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultProgram is the interpreter started when Options.Program is empty.
const DefaultProgram = "/bin/bash"

// UnknownExitCode is reported when the child was killed by a signal or has not been reaped.
const UnknownExitCode = -1

const (
	inputPipeOperationConstant            = "create input pipe"
	outputPipeOperationConstant           = "create output pipe"
	startOperationConstant                = "start"
	contextOperationConstant              = "prepare"
	environmentAssignmentTemplateConstant = "%s=%s"
	spawnErrorTemplateConstant            = "spawn %s: %s: %v"
	terminateErrorTemplateConstant        = "terminate process group %d: %w"
	waitDelayConstant                     = 2 * time.Second
)

const (
	stateStartingNameConstant   = "starting"
	stateRunningNameConstant    = "running"
	stateTerminatedNameConstant = "terminated"
)

// State is the lifecycle state of a ShellSession.
type State int32

// Session lifecycle states.
const (
	StateStarting State = iota
	StateRunning
	StateTerminated
)

// String returns the lowercase name of the state.
func (state State) String() string {
	switch state {
	case StateStarting:
		return stateStartingNameConstant
	case StateRunning:
		return stateRunningNameConstant
	default:
		return stateTerminatedNameConstant
	}
}

// ExitState records how the child process ended.
type ExitState struct {
	Code     int
	Signaled bool
}

// SpawnError reports a failure to start the shell process.
type SpawnError struct {
	Program string
	Op      string
	Err     error
}

// Error describes the failure.
func (spawnError *SpawnError) Error() string {
	return fmt.Sprintf(spawnErrorTemplateConstant, spawnError.Program, spawnError.Op, spawnError.Err)
}

// Unwrap exposes the underlying cause.
func (spawnError *SpawnError) Unwrap() error {
	return spawnError.Err
}

// Options configure the spawned shell.
type Options struct {
	Program            string
	Arguments          []string
	WorkingDirectory   string
	Environment        map[string]string
	InheritEnvironment bool
	// DiagnosticOutput receives the shell's own standard error. Nil discards it.
	DiagnosticOutput   io.Writer
}

// OutputStream is the caller side of the shell's standard output.
type OutputStream interface {
	io.Reader
	SetReadDeadline(deadline time.Time) error
}

// Session is a running shell as seen by a command driver.
type Session interface {
	PID() int
	Input() io.WriteCloser
	Output() OutputStream
	State() State
	Done() <-chan struct{}
	Terminate() error
	WaitExit(timeout time.Duration) (ExitState, bool)
}

// Launcher starts shell sessions.
type Launcher interface {
	Launch(executionContext context.Context, options Options) (Session, error)
}

// ProcessLauncher starts shells as operating system processes.
type ProcessLauncher struct{}

// NewProcessLauncher constructs a ProcessLauncher.
func NewProcessLauncher() *ProcessLauncher {
	return &ProcessLauncher{}
}

// Launch implements Launcher.
func (launcher *ProcessLauncher) Launch(executionContext context.Context, options Options) (Session, error) {
	shellSession, startError := Start(executionContext, options)
	if startError != nil {
		return nil, startError
	}
	return shellSession, nil
}

// ShellSession owns one shell child process and the caller ends of its standard input and output.
type ShellSession struct {
	command *exec.Cmd
	pid     int
	input   *os.File
	output  *os.File

	mutex         sync.Mutex
	state         State
	exitState     ExitState
	done          chan struct{}
	terminateOnce sync.Once
	terminateErr  error
}

// Start spawns the shell with its standard input and output connected to fresh pipes.
// The child runs in its own process group so Terminate reaches the commands it started.
func Start(executionContext context.Context, options Options) (*ShellSession, error) {
	program := options.Program
	if len(program) == 0 {
		program = DefaultProgram
	}

	if executionContext != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return nil, &SpawnError{Program: program, Op: contextOperationConstant, Err: contextError}
		}
	}

	childInput, callerInput, inputPipeError := os.Pipe()
	if inputPipeError != nil {
		return nil, &SpawnError{Program: program, Op: inputPipeOperationConstant, Err: inputPipeError}
	}

	callerOutput, childOutput, outputPipeError := os.Pipe()
	if outputPipeError != nil {
		closeFiles(childInput, callerInput)
		return nil, &SpawnError{Program: program, Op: outputPipeOperationConstant, Err: outputPipeError}
	}

	command := exec.Command(program, options.Arguments...)
	command.Stdin = childInput
	command.Stdout = childOutput
	command.Stderr = options.DiagnosticOutput
	command.Dir = options.WorkingDirectory
	command.Env = buildEnvironment(options.InheritEnvironment, options.Environment)
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	command.WaitDelay = waitDelayConstant

	if startError := command.Start(); startError != nil {
		closeFiles(childInput, callerInput, callerOutput, childOutput)
		return nil, &SpawnError{Program: program, Op: startOperationConstant, Err: startError}
	}

	closeFiles(childInput, childOutput)

	shellSession := &ShellSession{
		command: command,
		pid:     command.Process.Pid,
		input:   callerInput,
		output:  callerOutput,
		state:   StateRunning,
		done:    make(chan struct{}),
	}
	go shellSession.reap()

	return shellSession, nil
}

// PID returns the process identifier of the shell.
func (shellSession *ShellSession) PID() int {
	return shellSession.pid
}

// Input returns the stream the shell reads commands from.
func (shellSession *ShellSession) Input() io.WriteCloser {
	return shellSession.input
}

// Output returns the stream carrying the shell's standard output.
func (shellSession *ShellSession) Output() OutputStream {
	return shellSession.output
}

// State reports the lifecycle state.
func (shellSession *ShellSession) State() State {
	shellSession.mutex.Lock()
	defer shellSession.mutex.Unlock()
	return shellSession.state
}

// Done is closed once the shell process has been reaped.
func (shellSession *ShellSession) Done() <-chan struct{} {
	return shellSession.done
}

// Terminate sends SIGTERM to the shell's process group and closes the caller's streams.
// It does not wait for the process to exit and is safe to call more than once.
func (shellSession *ShellSession) Terminate() error {
	shellSession.terminateOnce.Do(func() {
		shellSession.mutex.Lock()
		shellSession.state = StateTerminated
		shellSession.mutex.Unlock()

		select {
		case <-shellSession.done:
		default:
			killError := unix.Kill(-shellSession.pid, unix.SIGTERM)
			if killError != nil && !errors.Is(killError, unix.ESRCH) {
				shellSession.terminateErr = fmt.Errorf(terminateErrorTemplateConstant, shellSession.pid, killError)
			}
		}

		closeFiles(shellSession.input, shellSession.output)
	})
	return shellSession.terminateErr
}

// WaitExit waits up to timeout for the shell to be reaped. A non-positive timeout only checks.
// The boolean result is false when the process has not exited yet.
func (shellSession *ShellSession) WaitExit(timeout time.Duration) (ExitState, bool) {
	if timeout <= 0 {
		select {
		case <-shellSession.done:
			return shellSession.recordedExitState(), true
		default:
			return ExitState{Code: UnknownExitCode}, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-shellSession.done:
		return shellSession.recordedExitState(), true
	case <-timer.C:
		return ExitState{Code: UnknownExitCode}, false
	}
}

func (shellSession *ShellSession) recordedExitState() ExitState {
	shellSession.mutex.Lock()
	defer shellSession.mutex.Unlock()
	return shellSession.exitState
}

func (shellSession *ShellSession) reap() {
	// The exit status is read from ProcessState; Wait errors only repeat it or report ErrWaitDelay.
	_ = shellSession.command.Wait()
	exitState := exitStateOf(shellSession.command.ProcessState)

	shellSession.mutex.Lock()
	shellSession.exitState = exitState
	shellSession.state = StateTerminated
	shellSession.mutex.Unlock()

	close(shellSession.done)
}

func exitStateOf(processState *os.ProcessState) ExitState {
	if processState == nil {
		return ExitState{Code: UnknownExitCode}
	}
	if waitStatus, isWaitStatus := processState.Sys().(syscall.WaitStatus); isWaitStatus && waitStatus.Signaled() {
		return ExitState{Code: UnknownExitCode, Signaled: true}
	}
	return ExitState{Code: processState.ExitCode()}
}

func buildEnvironment(inheritEnvironment bool, overrides map[string]string) []string {
	environment := []string{}
	if inheritEnvironment {
		environment = append(environment, os.Environ()...)
	}

	overrideKeys := make([]string, 0, len(overrides))
	for overrideKey := range overrides {
		overrideKeys = append(overrideKeys, overrideKey)
	}
	sort.Strings(overrideKeys)

	for _, overrideKey := range overrideKeys {
		environment = append(environment, fmt.Sprintf(environmentAssignmentTemplateConstant, overrideKey, overrides[overrideKey]))
	}
	return environment
}

func closeFiles(files ...*os.File) {
	for _, file := range files {
		if file != nil {
			_ = file.Close()
		}
	}
}
