package run

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/shellwire/internal/execshell"
	flagutils "github.com/temirov/shellwire/internal/utils/flags"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// ShellConfigurationProvider yields the configured shell session settings.
type ShellConfigurationProvider func() execshell.Configuration

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	logger := provider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// ApplyShellFlags overrides configuration values with the shell flags set on the command line.
// Blocked command flags extend the configured deny list instead of replacing it.
func ApplyShellFlags(command *cobra.Command, configuration execshell.Configuration, values *flagutils.ShellFlagValues) execshell.Configuration {
	if values == nil {
		return configuration.Sanitize()
	}

	updated := configuration
	if flagutils.Changed(command, flagutils.ShellFlagName) {
		updated.Program = values.Program
	}
	if flagutils.Changed(command, flagutils.ShellArgumentFlagName) {
		updated.Arguments = append([]string{}, values.Arguments...)
	}
	if flagutils.Changed(command, flagutils.WorkingDirectoryFlagName) {
		updated.WorkingDirectory = values.WorkingDirectory
	}
	if flagutils.Changed(command, flagutils.TimeoutFlagName) {
		updated.ReadTimeout = values.ReadTimeout
	}
	if flagutils.Changed(command, flagutils.ValidateSyntaxFlagName) {
		updated.ValidateSyntax = values.ValidateSyntax
	}
	if flagutils.Changed(command, flagutils.LegacyFramingFlagName) {
		updated.LegacyFraming = values.LegacyFraming
	}
	if flagutils.Changed(command, flagutils.BlockFlagName) {
		updated.BlockedCommands = append(append([]string{}, configuration.BlockedCommands...), values.BlockedCommands...)
	}

	return updated.Sanitize()
}

func displayCommandHelp(command *cobra.Command) error {
	if command == nil {
		return nil
	}
	return command.Help()
}
