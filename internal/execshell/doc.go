// Package execshell drives a persistent shell through CommandDriver.
//
// The driver starts one shell session, validates each command, frames it with a fresh
// delimiter and returns the captured output together with the exit status the shell
// echoed. Commands run strictly one after another; lifecycle events are reported to a
// CommandEventObserver so console output and metrics stay decoupled from execution.
package execshell
