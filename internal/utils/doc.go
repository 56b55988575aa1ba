// Package utils exposes reusable helpers consumed by the CLI.
//
// It houses ConfigurationLoader and LoggerFactory abstractions that integrate Viper,
// environment variables, rotating log files, and zap logging, together with the
// command context accessor and the flushing writer used for command output.
package utils
