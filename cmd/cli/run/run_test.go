package run_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	runcmd "github.com/temirov/shellwire/cmd/cli/run"
	"github.com/temirov/shellwire/internal/execshell"
	"github.com/temirov/shellwire/internal/session"
	"github.com/temirov/shellwire/internal/utils"
	flagutils "github.com/temirov/shellwire/internal/utils/flags"
)

const (
	runScriptFileNameConstant  = "commands.yaml"
	runMetricsFileNameConstant = "metrics.prom"
	runScriptContentConstant   = "commands:\n  - name: greet\n    run: echo from-script\n  - GREETING=hi\n"
	runUsageSnippetConstant    = "Usage:"
)

type runCommandOutcome struct {
	standardOutput string
	standardError  string
	executionError error
}

func executeRunCommand(testInstance *testing.T, builder runcmd.CommandBuilder, standardInput string, arguments ...string) runCommandOutcome {
	testInstance.Helper()

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	var outputBuffer bytes.Buffer
	var errorBuffer bytes.Buffer
	command.SilenceUsage = true
	command.SilenceErrors = true
	command.SetOut(&outputBuffer)
	command.SetErr(&errorBuffer)
	command.SetIn(strings.NewReader(standardInput))
	command.SetContext(context.Background())
	command.SetArgs(flagutils.NormalizeToggleArguments(arguments))

	executionError := command.Execute()
	return runCommandOutcome{
		standardOutput: outputBuffer.String(),
		standardError:  errorBuffer.String(),
		executionError: executionError,
	}
}

func requireBash(testInstance *testing.T) {
	testInstance.Helper()
	if _, lookupError := exec.LookPath(session.DefaultProgram); lookupError != nil {
		testInstance.Skip("bash is not available")
	}
}

func TestRunCommandPrintsOutputAndStatus(testInstance *testing.T) {
	requireBash(testInstance)

	testCases := []struct {
		name           string
		standardInput  string
		arguments      []string
		expectedOutput string
		expectedError  error
	}{
		{
			name:           "shell_state_persists",
			arguments:      []string{"X=1", "echo $X", "false"},
			expectedOutput: "0\n1\n0\n1\n",
		},
		{
			name:           "multi_line_output",
			arguments:      []string{"printf 'a\\nb\\n'"},
			expectedOutput: "a\nb\n0\n",
		},
		{
			name:           "fail_fast_stops_at_non_zero_status",
			arguments:      []string{"--fail-fast=yes", "false", "echo never"},
			expectedOutput: "1\n",
			expectedError:  runcmd.ErrCommandFailed,
		},
		{
			name:           "exit_ends_the_run",
			arguments:      []string{"exit 3", "echo never"},
			expectedOutput: "3\n",
			expectedError:  runcmd.ErrSessionEnded,
		},
		{
			name:           "exit_as_last_command",
			arguments:      []string{"echo done", "exit 0"},
			expectedOutput: "done\n0\n0\n",
		},
		{
			name:           "standard_input_commands",
			standardInput:  "echo a\n\n# skipped\necho b\n",
			arguments:      []string{"--stdin"},
			expectedOutput: "a\n0\nb\n0\n",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			outcome := executeRunCommand(testInstance, runcmd.CommandBuilder{}, testCase.standardInput, testCase.arguments...)

			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, outcome.executionError, testCase.expectedError)
			} else {
				require.NoError(testInstance, outcome.executionError)
			}
			require.Equal(testInstance, testCase.expectedOutput, outcome.standardOutput)
		})
	}
}

func TestRunCommandReportsRejectedCommands(testInstance *testing.T) {
	requireBash(testInstance)

	outcome := executeRunCommand(testInstance, runcmd.CommandBuilder{}, "", `echo "unterminated`, "echo ok")
	require.NoError(testInstance, outcome.executionError)
	require.Equal(testInstance, "ok\n0\n", outcome.standardOutput)
	require.Contains(testInstance, outcome.standardError, execshell.ErrCommandRejected.Error())

	failFastOutcome := executeRunCommand(testInstance, runcmd.CommandBuilder{}, "", "--fail-fast", "--block", "rm", "rm -rf /tmp/never", "echo never")
	require.ErrorIs(testInstance, failFastOutcome.executionError, execshell.ErrCommandRejected)
	require.Empty(testInstance, failFastOutcome.standardOutput)
}

func TestRunCommandLoadsScriptAndWritesMetrics(testInstance *testing.T) {
	requireBash(testInstance)

	temporaryDirectory := testInstance.TempDir()
	scriptPath := filepath.Join(temporaryDirectory, runScriptFileNameConstant)
	require.NoError(testInstance, os.WriteFile(scriptPath, []byte(runScriptContentConstant), 0o600))
	metricsPath := filepath.Join(temporaryDirectory, runMetricsFileNameConstant)

	outcome := executeRunCommand(testInstance, runcmd.CommandBuilder{}, "",
		"--script", scriptPath,
		"--metrics-output", metricsPath,
		"echo $GREETING",
	)
	require.NoError(testInstance, outcome.executionError)
	require.Equal(testInstance, "from-script\n0\n0\nhi\n0\n", outcome.standardOutput)

	metricsContent, readError := os.ReadFile(metricsPath)
	require.NoError(testInstance, readError)
	require.Contains(testInstance, string(metricsContent), `shellwire_commands_total{exit_status="0",outcome="success"} 3`)
	require.Contains(testInstance, string(metricsContent), "shellwire_sessions_started_total 1")
}

func TestRunCommandAppliesConfigurationAndFlags(testInstance *testing.T) {
	requireBash(testInstance)

	workingDirectory := testInstance.TempDir()
	resolvedWorkingDirectory, resolveError := filepath.EvalSymlinks(workingDirectory)
	require.NoError(testInstance, resolveError)

	builder := runcmd.CommandBuilder{
		ShellConfigurationProvider: func() execshell.Configuration {
			configuration := execshell.DefaultConfiguration()
			configuration.Environment = []string{"SHELLWIRE_TEST_VALUE=configured"}
			return configuration
		},
		ConfigurationProvider: func() runcmd.CommandConfiguration {
			return runcmd.CommandConfiguration{FailFast: true}
		},
	}

	outcome := executeRunCommand(testInstance, builder, "",
		"--workdir", resolvedWorkingDirectory,
		"echo $SHELLWIRE_TEST_VALUE",
		"pwd -P",
		"false",
		"echo never",
	)
	require.ErrorIs(testInstance, outcome.executionError, runcmd.ErrCommandFailed)
	require.Equal(testInstance, "configured\n0\n"+resolvedWorkingDirectory+"\n0\n1\n", outcome.standardOutput)
}

func TestRunCommandTimesOut(testInstance *testing.T) {
	requireBash(testInstance)

	outcome := executeRunCommand(testInstance, runcmd.CommandBuilder{}, "", "--timeout", "200ms", "sleep 5", "echo never")
	require.Error(testInstance, outcome.executionError)
	require.Contains(testInstance, outcome.executionError.Error(), "command 1")
	require.Equal(testInstance, "-1\n", outcome.standardOutput)
}

func TestRunCommandLogsHumanReadableEvents(testInstance *testing.T) {
	requireBash(testInstance)

	observerCore, observedLogs := observer.New(zapcore.InfoLevel)
	builder := runcmd.CommandBuilder{
		LoggerProvider:               func() *zap.Logger { return zap.New(observerCore) },
		HumanReadableLoggingProvider: func() bool { return true },
	}

	outcome := executeRunCommand(testInstance, builder, "", "echo visible")
	require.NoError(testInstance, outcome.executionError)

	messages := make([]string, 0, observedLogs.Len())
	for _, entry := range observedLogs.All() {
		messages = append(messages, entry.Message)
	}
	require.Contains(testInstance, messages, `Running "echo visible"`)
	require.Contains(testInstance, messages, `Completed "echo visible"`)
}

func TestRunCommandTagsLogsWithRunIdentifier(testInstance *testing.T) {
	requireBash(testInstance)

	observerCore, observedLogs := observer.New(zapcore.DebugLevel)
	builder := runcmd.CommandBuilder{
		LoggerProvider: func() *zap.Logger { return zap.New(observerCore) },
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	contextAccessor := utils.NewCommandContextAccessor()
	executionContext := contextAccessor.WithRunIdentifier(context.Background())
	runIdentifier, _ := contextAccessor.RunIdentifier(executionContext)

	command.SetOut(io.Discard)
	command.SetContext(executionContext)
	command.SetArgs([]string{"true"})
	require.NoError(testInstance, command.Execute())

	scheduledEntries := observedLogs.FilterMessage("running commands").All()
	require.Len(testInstance, scheduledEntries, 1)
	require.Equal(testInstance, runIdentifier, scheduledEntries[0].ContextMap()["run_id"])
}

type closedOutput struct {
	writeCount int
}

func (output *closedOutput) Write(data []byte) (int, error) {
	output.writeCount++
	return 0, os.ErrClosed
}

func TestRunCommandStopsWhenOutputFails(testInstance *testing.T) {
	requireBash(testInstance)

	builder := runcmd.CommandBuilder{}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	output := &closedOutput{}
	command.SilenceUsage = true
	command.SilenceErrors = true
	command.SetOut(output)
	command.SetContext(context.Background())
	command.SetArgs([]string{"echo one", "echo two"})

	executionError := command.Execute()
	require.ErrorIs(testInstance, executionError, os.ErrClosed)
	require.Equal(testInstance, 1, output.writeCount)
}

func TestRunCommandRequiresCommands(testInstance *testing.T) {
	outcome := executeRunCommand(testInstance, runcmd.CommandBuilder{}, "")
	require.ErrorIs(testInstance, outcome.executionError, runcmd.ErrNoCommands)
	require.Contains(testInstance, outcome.standardOutput, runUsageSnippetConstant)
}

func TestRunCommandReportsScriptErrors(testInstance *testing.T) {
	outcome := executeRunCommand(testInstance, runcmd.CommandBuilder{}, "", "--script", filepath.Join(testInstance.TempDir(), "missing.yaml"))
	require.ErrorIs(testInstance, outcome.executionError, os.ErrNotExist)
}

func TestRunCommandReportsSpawnErrors(testInstance *testing.T) {
	outcome := executeRunCommand(testInstance, runcmd.CommandBuilder{}, "", "--shell", "/nonexistent/shellwire-shell", "true")

	var spawnError *session.SpawnError
	require.ErrorAs(testInstance, outcome.executionError, &spawnError)
	require.Equal(testInstance, "/nonexistent/shellwire-shell", spawnError.Program)
}

func TestApplyShellFlags(testInstance *testing.T) {
	configured := execshell.DefaultConfiguration()
	configured.BlockedCommands = []string{"reboot"}
	configured.ReadTimeout = time.Minute

	testCases := []struct {
		name      string
		arguments []string
		assert    func(*testing.T, execshell.Configuration)
	}{
		{
			name: "configuration_applies_without_flags",
			assert: func(testInstance *testing.T, configuration execshell.Configuration) {
				require.Equal(testInstance, session.DefaultProgram, configuration.Program)
				require.Equal(testInstance, time.Minute, configuration.ReadTimeout)
				require.True(testInstance, configuration.ValidateSyntax)
				require.Equal(testInstance, []string{"reboot"}, configuration.BlockedCommands)
			},
		},
		{
			name:      "flags_override_configuration",
			arguments: []string{"--shell", "/bin/sh", "--timeout", "0s", "--validate-syntax", "no", "--legacy-framing", "--block", "git  push"},
			assert: func(testInstance *testing.T, configuration execshell.Configuration) {
				require.Equal(testInstance, "/bin/sh", configuration.Program)
				require.Zero(testInstance, configuration.ReadTimeout)
				require.False(testInstance, configuration.ValidateSyntax)
				require.True(testInstance, configuration.LegacyFraming)
				require.Equal(testInstance, []string{"reboot", "git push"}, configuration.BlockedCommands)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			command := &cobra.Command{}
			values := flagutils.BindShellFlags(command, flagutils.ShellFlagValues{Program: session.DefaultProgram, ValidateSyntax: true})
			require.NoError(testInstance, command.ParseFlags(flagutils.NormalizeToggleArguments(testCase.arguments)))

			testCase.assert(testInstance, runcmd.ApplyShellFlags(command, configured, values))
		})
	}
}

func TestDefaultConfigurationValues(testInstance *testing.T) {
	require.Equal(testInstance, map[string]any{
		"run.fail_fast":      false,
		"run.metrics_output": "",
	}, runcmd.DefaultConfigurationValues("run"))
}
