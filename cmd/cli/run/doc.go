// Package run provides the run command, which executes a list of shell commands in a single
// persistent shell session and reports each output and exit status.
package run
