package flags

import (
	"time"

	"github.com/spf13/cobra"
)

const (
	// ShellFlagName selects the shell program.
	ShellFlagName = "shell"
	// ShellFlagUsage describes the shell flag.
	ShellFlagUsage = "Shell program started for the session"
	// ShellArgumentFlagName passes extra arguments to the shell program.
	ShellArgumentFlagName = "shell-arg"
	// ShellArgumentFlagUsage describes the shell argument flag.
	ShellArgumentFlagUsage = "Argument passed to the shell program (repeatable)"
	// WorkingDirectoryFlagName selects the session working directory.
	WorkingDirectoryFlagName = "workdir"
	// WorkingDirectoryFlagUsage describes the working directory flag.
	WorkingDirectoryFlagUsage = "Working directory of the shell session"
	// TimeoutFlagName bounds each command.
	TimeoutFlagName = "timeout"
	// TimeoutFlagUsage describes the timeout flag.
	TimeoutFlagUsage = "Maximum time to wait for each command, 0 waits forever"
	// ValidateSyntaxFlagName toggles the pre-send syntax check.
	ValidateSyntaxFlagName = "validate-syntax"
	// ValidateSyntaxFlagUsage describes the syntax validation flag.
	ValidateSyntaxFlagUsage = "Reject commands that do not parse as complete shell statements"
	// LegacyFramingFlagName switches to the echo -e status trailer.
	LegacyFramingFlagName = "legacy-framing"
	// LegacyFramingFlagUsage describes the legacy framing flag.
	LegacyFramingFlagUsage = "Frame commands with a plain 2>&1 redirect and an echo -e status trailer"
	// BlockFlagName adds deny list entries.
	BlockFlagName = "block"
	// BlockFlagUsage describes the block flag.
	BlockFlagUsage = "Command or command prefix that is never sent to the shell (repeatable)"
)

// ShellFlagValues stores shell session flag values.
type ShellFlagValues struct {
	Program          string
	Arguments        []string
	WorkingDirectory string
	ReadTimeout      time.Duration
	ValidateSyntax   bool
	LegacyFraming    bool
	BlockedCommands  []string
}

// BindShellFlags attaches the shell session flags to the provided command.
func BindShellFlags(command *cobra.Command, defaults ShellFlagValues) *ShellFlagValues {
	values := ShellFlagValues{
		Program:          defaults.Program,
		Arguments:        append([]string{}, defaults.Arguments...),
		WorkingDirectory: defaults.WorkingDirectory,
		ReadTimeout:      defaults.ReadTimeout,
		BlockedCommands:  append([]string{}, defaults.BlockedCommands...),
	}
	if command == nil {
		return &values
	}

	flagSet := command.Flags()
	flagSet.StringVar(&values.Program, ShellFlagName, defaults.Program, ShellFlagUsage)
	flagSet.StringArrayVar(&values.Arguments, ShellArgumentFlagName, values.Arguments, ShellArgumentFlagUsage)
	flagSet.StringVar(&values.WorkingDirectory, WorkingDirectoryFlagName, defaults.WorkingDirectory, WorkingDirectoryFlagUsage)
	flagSet.DurationVar(&values.ReadTimeout, TimeoutFlagName, defaults.ReadTimeout, TimeoutFlagUsage)
	AddToggleFlag(flagSet, &values.ValidateSyntax, ValidateSyntaxFlagName, "", defaults.ValidateSyntax, ValidateSyntaxFlagUsage)
	AddToggleFlag(flagSet, &values.LegacyFraming, LegacyFramingFlagName, "", defaults.LegacyFraming, LegacyFramingFlagUsage)
	flagSet.StringArrayVar(&values.BlockedCommands, BlockFlagName, values.BlockedCommands, BlockFlagUsage)

	return &values
}

// Changed reports whether the named flag was set on the command line.
func Changed(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}
	flag := command.Flags().Lookup(flagName)
	if flag == nil {
		return false
	}
	return flag.Changed
}
