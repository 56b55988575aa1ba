// Package ui provides helpers for formatting human-readable console output.
//
// ConsoleCommandEventLogger turns driver lifecycle events into concise messages so
// command feedback stays readable for CLI users while detailed telemetry continues to
// flow through structured loggers.
package ui
