package run

import "strings"

const (
	failFastConfigurationKeyConstant      = "fail_fast"
	metricsOutputConfigurationKeyConstant = "metrics_output"
	configurationKeySeparatorConstant     = "."
)

// CommandConfiguration captures configuration values for run.
type CommandConfiguration struct {
	FailFast          bool   `mapstructure:"fail_fast"`
	MetricsOutputPath string `mapstructure:"metrics_output"`
}

// DefaultCommandConfiguration provides the default run command settings.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		FailFast:          false,
		MetricsOutputPath: "",
	}
}

// DefaultConfigurationValues returns the viper defaults for run under the provided key prefix.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	keyPrefix := strings.TrimSpace(prefix)
	if len(keyPrefix) > 0 {
		keyPrefix += configurationKeySeparatorConstant
	}
	return map[string]any{
		keyPrefix + failFastConfigurationKeyConstant:      defaults.FailFast,
		keyPrefix + metricsOutputConfigurationKeyConstant: defaults.MetricsOutputPath,
	}
}

// Sanitize normalizes configuration values.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.MetricsOutputPath = strings.TrimSpace(configuration.MetricsOutputPath)
	return sanitized
}
