// Package flags provides helpers for binding standardized flags to Cobra commands.
package flags

import (
	"github.com/spf13/cobra"
)

const (
	// ScriptFlagName names the YAML command script flag.
	ScriptFlagName = "script"
	// ScriptFlagUsage describes the script flag.
	ScriptFlagUsage = "YAML file listing the commands to run"
	// StdinFlagName names the standard input source flag.
	StdinFlagName = "stdin"
	// StdinFlagUsage describes the stdin flag.
	StdinFlagUsage = "Read commands from standard input, one per line"
	// FailFastFlagName names the fail-fast flag.
	FailFastFlagName = "fail-fast"
	// FailFastFlagUsage describes the fail-fast flag.
	FailFastFlagUsage = "Stop at the first command with a non-zero exit status"
	// MetricsOutputFlagName names the metrics output flag.
	MetricsOutputFlagName = "metrics-output"
	// MetricsOutputFlagUsage describes the metrics output flag.
	MetricsOutputFlagUsage = "File receiving driver metrics in Prometheus text format after the run"
)

// ExecutionFlagValues stores the flags controlling where commands come from and how a run ends.
type ExecutionFlagValues struct {
	ScriptPath        string
	ReadStdin         bool
	FailFast          bool
	MetricsOutputPath string
}

// BindExecutionFlags attaches the execution flags to the provided command.
func BindExecutionFlags(command *cobra.Command, defaults ExecutionFlagValues) *ExecutionFlagValues {
	values := defaults
	if command == nil {
		return &values
	}

	flagSet := command.Flags()
	flagSet.StringVar(&values.ScriptPath, ScriptFlagName, defaults.ScriptPath, ScriptFlagUsage)
	AddToggleFlag(flagSet, &values.ReadStdin, StdinFlagName, "", defaults.ReadStdin, StdinFlagUsage)
	AddToggleFlag(flagSet, &values.FailFast, FailFastFlagName, "", defaults.FailFast, FailFastFlagUsage)
	flagSet.StringVar(&values.MetricsOutputPath, MetricsOutputFlagName, defaults.MetricsOutputPath, MetricsOutputFlagUsage)

	return &values
}
