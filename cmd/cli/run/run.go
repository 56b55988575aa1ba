package run

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/shellwire/internal/execshell"
	"github.com/temirov/shellwire/internal/metrics"
	"github.com/temirov/shellwire/internal/script"
	"github.com/temirov/shellwire/internal/session"
	"github.com/temirov/shellwire/internal/ui"
	"github.com/temirov/shellwire/internal/utils"
	flagutils "github.com/temirov/shellwire/internal/utils/flags"
)

const (
	commandUseConstant                     = "run [command...]"
	commandShortDescriptionConstant        = "Run commands in one persistent shell session"
	commandLongDescriptionConstant         = "run starts a shell, sends every command through the same session so variables and the working directory carry over, and prints each command's output followed by its exit status."
	commandExampleConstant                 = "  shellwire run 'X=1' 'echo $X'\n  shellwire run --script commands.yaml --fail-fast\n  printf 'pwd\\nls\\n' | shellwire run --stdin"
	noCommandsMessageConstant              = "no commands to run; pass them as arguments, with --script, or with --stdin"
	loadScriptErrorTemplateConstant        = "unable to load command script: %w"
	readStandardInputErrorTemplateConstant = "unable to read commands from standard input: %w"
	startDriverErrorTemplateConstant       = "unable to start shell session: %w"
	executeErrorTemplateConstant           = "command %d: %w"
	commandFailedErrorTemplateConstant     = "%w: command %d exited with status %d"
	sessionEndedErrorTemplateConstant      = "%w: %d command(s) not run"
	writeMetricsErrorTemplateConstant      = "unable to write metrics to %s: %w"
	outputTemplateConstant                 = "%s\n"
	exitStatusTemplateConstant             = "%d\n"
	rejectedCommandTemplateConstant        = "%v\n"
	shutdownFailedMessageConstant          = "shell shutdown failed"
	commandsScheduledMessageConstant       = "running commands"
	commandCountFieldConstant              = "command_count"
	metricsWrittenMessageConstant          = "metrics written"
	metricsPathFieldConstant               = "path"
	runIdentifierFieldConstant             = "run_id"
	configurationFileFieldConstant         = "config_file"
	writeOutputErrorTemplateConstant       = "unable to write command output: %w"
	metricsFileModeConstant                = 0o644
)

// ErrNoCommands indicates that run was invoked without any command source.
var ErrNoCommands = errors.New(noCommandsMessageConstant)

// ErrCommandFailed indicates a command exited with a non-zero status while fail-fast was enabled.
var ErrCommandFailed = errors.New("command failed")

// ErrSessionEnded indicates that a command ended the shell before the remaining commands ran.
var ErrSessionEnded = errors.New("shell session ended before all commands ran")

// CommandBuilder assembles the run command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	Launcher                     session.Launcher
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	ShellConfigurationProvider   ShellConfigurationProvider
}

// Build constructs the run command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:     commandUseConstant,
		Short:   commandShortDescriptionConstant,
		Long:    commandLongDescriptionConstant,
		Example: commandExampleConstant,
	}

	shellDefaults := execshell.DefaultConfiguration()
	shellFlags := flagutils.BindShellFlags(command, flagutils.ShellFlagValues{
		Program:        shellDefaults.Program,
		ValidateSyntax: shellDefaults.ValidateSyntax,
	})
	executionFlags := flagutils.BindExecutionFlags(command, flagutils.ExecutionFlagValues{})

	command.RunE = func(cobraCommand *cobra.Command, arguments []string) error {
		return builder.run(cobraCommand, arguments, shellFlags, executionFlags)
	}

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string, shellFlags *flagutils.ShellFlagValues, executionFlags *flagutils.ExecutionFlagValues) error {
	commandConfiguration := builder.resolveConfiguration()
	if flagutils.Changed(command, flagutils.FailFastFlagName) {
		commandConfiguration.FailFast = executionFlags.FailFast
	}
	if flagutils.Changed(command, flagutils.MetricsOutputFlagName) {
		commandConfiguration.MetricsOutputPath = strings.TrimSpace(executionFlags.MetricsOutputPath)
	}

	commandTexts, collectError := collectCommands(command, arguments, executionFlags)
	if collectError != nil {
		return collectError
	}
	if len(commandTexts) == 0 {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return ErrNoCommands
	}

	logger := builder.contextualLogger(command)
	shellConfiguration := ApplyShellFlags(command, builder.resolveShellConfiguration(), shellFlags)

	commandMetrics := metrics.NewCommandMetrics()
	observers := []execshell.CommandEventObserver{commandMetrics}
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		observers = append(observers, ui.NewConsoleCommandEventLogger(logger))
	}

	launcher := builder.Launcher
	if launcher == nil {
		launcher = session.NewProcessLauncher()
	}

	executionContext := command.Context()
	driver, driverError := execshell.NewCommandDriver(executionContext, shellConfiguration, execshell.Dependencies{
		Logger:   logger,
		Launcher: launcher,
		Observer: execshell.NewMultiObserver(observers...),
	})
	if driverError != nil {
		return fmt.Errorf(startDriverErrorTemplateConstant, driverError)
	}

	logger.Debug(commandsScheduledMessageConstant, zap.Int(commandCountFieldConstant, len(commandTexts)))

	runError := executeCommands(command, driver, commandTexts, commandConfiguration.FailFast)

	if shutdownError := driver.Shutdown(); shutdownError != nil {
		logger.Warn(shutdownFailedMessageConstant, zap.Error(shutdownError))
	}

	if metricsError := writeMetrics(commandMetrics, commandConfiguration.MetricsOutputPath); metricsError != nil {
		return errors.Join(runError, metricsError)
	}
	if len(commandConfiguration.MetricsOutputPath) > 0 {
		logger.Debug(metricsWrittenMessageConstant, zap.String(metricsPathFieldConstant, commandConfiguration.MetricsOutputPath))
	}

	return runError
}

// executeCommands prints every output followed by its exit status. Rejected commands are reported
// on the error stream and skipped. The run stops when the session ends, when the driver fails, or
// with failFast on the first rejected command or non-zero status.
func executeCommands(command *cobra.Command, driver *execshell.CommandDriver, commandTexts []string, failFast bool) error {
	outputWriter := utils.NewFlushingWriter(command.OutOrStdout())
	errorWriter := utils.NewFlushingWriter(command.ErrOrStderr())
	executionContext := command.Context()

	for commandIndex, commandText := range commandTexts {
		commandNumber := commandIndex + 1
		result, executionError := driver.Execute(executionContext, commandText)
		if errors.Is(executionError, execshell.ErrCommandRejected) {
			if failFast {
				return fmt.Errorf(executeErrorTemplateConstant, commandNumber, executionError)
			}
			fmt.Fprintf(errorWriter, rejectedCommandTemplateConstant, executionError)
			continue
		}

		printResult(outputWriter, result)
		if writeError := outputWriter.Err(); writeError != nil {
			return fmt.Errorf(writeOutputErrorTemplateConstant, writeError)
		}

		if executionError != nil {
			return fmt.Errorf(executeErrorTemplateConstant, commandNumber, executionError)
		}
		if result.SessionEnded {
			if remaining := len(commandTexts) - commandNumber; remaining > 0 {
				return fmt.Errorf(sessionEndedErrorTemplateConstant, ErrSessionEnded, remaining)
			}
			return nil
		}
		if failFast && result.ExitStatus != 0 {
			return fmt.Errorf(commandFailedErrorTemplateConstant, ErrCommandFailed, commandNumber, result.ExitStatus)
		}
	}

	return nil
}

func printResult(writer io.Writer, result execshell.Result) {
	if len(result.Output) > 0 {
		fmt.Fprintf(writer, outputTemplateConstant, result.Output)
	}
	fmt.Fprintf(writer, exitStatusTemplateConstant, result.ExitStatus)
}

func collectCommands(command *cobra.Command, arguments []string, executionFlags *flagutils.ExecutionFlagValues) ([]string, error) {
	var commandTexts []string

	if scriptPath := strings.TrimSpace(executionFlags.ScriptPath); len(scriptPath) > 0 {
		loadedScript, loadError := script.Load(scriptPath)
		if loadError != nil {
			return nil, fmt.Errorf(loadScriptErrorTemplateConstant, loadError)
		}
		commandTexts = append(commandTexts, loadedScript.Texts()...)
	}

	commandTexts = append(commandTexts, arguments...)

	if executionFlags.ReadStdin {
		standardInputScript, readError := script.ReadLines(command.InOrStdin())
		if readError != nil {
			return nil, fmt.Errorf(readStandardInputErrorTemplateConstant, readError)
		}
		commandTexts = append(commandTexts, standardInputScript.Texts()...)
	}

	return commandTexts, nil
}

func writeMetrics(commandMetrics *metrics.CommandMetrics, outputPath string) error {
	if len(outputPath) == 0 {
		return nil
	}
	metricsFile, openError := os.OpenFile(outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, metricsFileModeConstant)
	if openError != nil {
		return fmt.Errorf(writeMetricsErrorTemplateConstant, outputPath, openError)
	}
	writeError := commandMetrics.WriteText(metricsFile)
	closeError := metricsFile.Close()
	if combinedError := errors.Join(writeError, closeError); combinedError != nil {
		return fmt.Errorf(writeMetricsErrorTemplateConstant, outputPath, combinedError)
	}
	return nil
}

// contextualLogger tags the provided logger with the run identifier and configuration file carried on the command context.
func (builder *CommandBuilder) contextualLogger(command *cobra.Command) *zap.Logger {
	logger := resolveLogger(builder.LoggerProvider)
	contextAccessor := utils.NewCommandContextAccessor()
	executionContext := command.Context()

	if runIdentifier, available := contextAccessor.RunIdentifier(executionContext); available {
		logger = logger.With(zap.String(runIdentifierFieldConstant, runIdentifier))
	}
	if configurationFilePath, available := contextAccessor.ConfigurationFilePath(executionContext); available && len(configurationFilePath) > 0 {
		logger = logger.With(zap.String(configurationFileFieldConstant, configurationFilePath))
	}
	return logger
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

func (builder *CommandBuilder) resolveShellConfiguration() execshell.Configuration {
	if builder.ShellConfigurationProvider == nil {
		return execshell.DefaultConfiguration()
	}
	return builder.ShellConfigurationProvider()
}
