package execshell_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellwire/internal/execshell"
	"github.com/temirov/shellwire/internal/session"
)

const (
	testFakeProcessIdentifierConstant = 4242
	testFrameOpenLineConstant         = "{ :"
	testFrameCloseLineConstant        = "} 2>&1 </dev/null"
	testFrameStatusTemplateConstant   = "%s\n%s\n%s\n"
)

// fakeResponse scripts how the fake shell answers one command.
type fakeResponse struct {
	output      string
	status      string
	closeStream bool
	exitCode    int
	signaled    bool
	hang        bool
}

type fakeResponder func(command string) fakeResponse

// fakeShellSession speaks the default framing over real pipes without starting a process.
type fakeShellSession struct {
	processIdentifier int
	callerInput       *os.File
	shellInput        *os.File
	shellOutput       *os.File
	callerOutput      *os.File
	responder         fakeResponder

	mutex            sync.Mutex
	state            session.State
	exitState        session.ExitState
	done             chan struct{}
	finishOnce       sync.Once
	terminateCount   int
	receivedCommands []string
}

func newFakeShellSession(testInstance *testing.T, processIdentifier int, responder fakeResponder) *fakeShellSession {
	testInstance.Helper()
	shellInput, callerInput, inputError := os.Pipe()
	require.NoError(testInstance, inputError)
	callerOutput, shellOutput, outputError := os.Pipe()
	require.NoError(testInstance, outputError)

	fakeSession := &fakeShellSession{
		processIdentifier: processIdentifier,
		callerInput:       callerInput,
		shellInput:        shellInput,
		shellOutput:       shellOutput,
		callerOutput:      callerOutput,
		responder:         responder,
		state:             session.StateRunning,
		done:              make(chan struct{}),
	}
	testInstance.Cleanup(func() {
		_ = fakeSession.Terminate()
		_ = shellInput.Close()
	})
	go fakeSession.serve()
	return fakeSession
}

func (fakeSession *fakeShellSession) serve() {
	reader := bufio.NewReader(fakeSession.shellInput)
	for {
		command, delimiter, readError := readFrame(reader)
		if readError != nil {
			return
		}

		fakeSession.mutex.Lock()
		fakeSession.receivedCommands = append(fakeSession.receivedCommands, command)
		fakeSession.mutex.Unlock()

		response := fakeSession.responder(command)
		switch {
		case response.hang:
			continue
		case response.closeStream:
			_, _ = io.WriteString(fakeSession.shellOutput, response.output)
			fakeSession.finish(session.ExitState{Code: response.exitCode, Signaled: response.signaled})
			return
		default:
			_, _ = io.WriteString(fakeSession.shellOutput, response.output+"\n")
			_, _ = fmt.Fprintf(fakeSession.shellOutput, testFrameStatusTemplateConstant, "", response.status, delimiter)
		}
	}
}

// readFrame parses one default frame and returns the command and the delimiter.
func readFrame(reader *bufio.Reader) (string, string, error) {
	var commandLines []string
	insideCommand := false
	for {
		line, readError := reader.ReadString('\n')
		if readError != nil {
			return "", "", readError
		}
		line = strings.TrimSuffix(line, "\n")
		switch {
		case !insideCommand && line == testFrameOpenLineConstant:
			insideCommand = true
		case insideCommand && line == testFrameCloseLineConstant:
			insideCommand = false
		case insideCommand:
			commandLines = append(commandLines, line)
		default:
			fields := strings.Fields(line)
			return strings.Join(commandLines, "\n"), fields[len(fields)-1], nil
		}
	}
}

func (fakeSession *fakeShellSession) finish(exitState session.ExitState) {
	fakeSession.finishOnce.Do(func() {
		fakeSession.mutex.Lock()
		fakeSession.exitState = exitState
		fakeSession.state = session.StateTerminated
		fakeSession.mutex.Unlock()
		_ = fakeSession.shellOutput.Close()
		close(fakeSession.done)
	})
}

func (fakeSession *fakeShellSession) PID() int {
	return fakeSession.processIdentifier
}

func (fakeSession *fakeShellSession) Input() io.WriteCloser {
	return fakeSession.callerInput
}

func (fakeSession *fakeShellSession) Output() session.OutputStream {
	return fakeSession.callerOutput
}

func (fakeSession *fakeShellSession) State() session.State {
	fakeSession.mutex.Lock()
	defer fakeSession.mutex.Unlock()
	return fakeSession.state
}

func (fakeSession *fakeShellSession) Done() <-chan struct{} {
	return fakeSession.done
}

func (fakeSession *fakeShellSession) Terminate() error {
	fakeSession.mutex.Lock()
	fakeSession.terminateCount++
	firstTermination := fakeSession.terminateCount == 1
	fakeSession.mutex.Unlock()

	if firstTermination {
		_ = fakeSession.callerInput.Close()
		_ = fakeSession.callerOutput.Close()
	}
	fakeSession.finish(session.ExitState{Code: session.UnknownExitCode, Signaled: true})
	return nil
}

func (fakeSession *fakeShellSession) WaitExit(timeout time.Duration) (session.ExitState, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-fakeSession.done:
		fakeSession.mutex.Lock()
		defer fakeSession.mutex.Unlock()
		return fakeSession.exitState, true
	case <-timer.C:
		return session.ExitState{Code: session.UnknownExitCode}, false
	}
}

func (fakeSession *fakeShellSession) commands() []string {
	fakeSession.mutex.Lock()
	defer fakeSession.mutex.Unlock()
	return append([]string{}, fakeSession.receivedCommands...)
}

func (fakeSession *fakeShellSession) terminations() int {
	fakeSession.mutex.Lock()
	defer fakeSession.mutex.Unlock()
	return fakeSession.terminateCount
}

// fakeLauncher hands out fake sessions and records the options it was given.
type fakeLauncher struct {
	testInstance *testing.T
	responder    fakeResponder
	launchError  error

	mutex           sync.Mutex
	launchedOptions []session.Options
	sessions        []*fakeShellSession
}

func (launcher *fakeLauncher) Launch(executionContext context.Context, options session.Options) (session.Session, error) {
	launcher.mutex.Lock()
	defer launcher.mutex.Unlock()
	launcher.launchedOptions = append(launcher.launchedOptions, options)
	if launcher.launchError != nil {
		return nil, launcher.launchError
	}
	fakeSession := newFakeShellSession(launcher.testInstance, testFakeProcessIdentifierConstant+len(launcher.sessions), launcher.responder)
	launcher.sessions = append(launcher.sessions, fakeSession)
	return fakeSession, nil
}

func (launcher *fakeLauncher) lastSession() *fakeShellSession {
	launcher.mutex.Lock()
	defer launcher.mutex.Unlock()
	return launcher.sessions[len(launcher.sessions)-1]
}

func (launcher *fakeLauncher) launchCount() int {
	launcher.mutex.Lock()
	defer launcher.mutex.Unlock()
	return len(launcher.launchedOptions)
}

// recordingObserver captures command and session events.
type recordingObserver struct {
	mutex           sync.Mutex
	events          []string
	results         []execshell.Result
	failures        []error
	sessionsStarted []int
	sessionsStopped []int
}

func (observer *recordingObserver) CommandStarted(command execshell.Command) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.events = append(observer.events, "started:"+command.Text)
}

func (observer *recordingObserver) CommandCompleted(command execshell.Command, result execshell.Result) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.events = append(observer.events, "completed:"+command.Text)
	observer.results = append(observer.results, result)
}

func (observer *recordingObserver) CommandExecutionFailed(command execshell.Command, failure error) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.events = append(observer.events, "failed:"+command.Text)
	observer.failures = append(observer.failures, failure)
}

func (observer *recordingObserver) SessionStarted(processIdentifier int) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.sessionsStarted = append(observer.sessionsStarted, processIdentifier)
}

func (observer *recordingObserver) SessionStopped(processIdentifier int) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.sessionsStopped = append(observer.sessionsStopped, processIdentifier)
}

func (observer *recordingObserver) recordedEvents() []string {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	return append([]string{}, observer.events...)
}

func echoResponder(command string) fakeResponse {
	return fakeResponse{output: command, status: "0"}
}
