// Package delimiter generates the random end-of-response markers injected after every
// command sent to a persistent shell.
//
// A marker is drawn uniformly from a restricted alphabet so it can be echoed by the
// shell without quoting and is long enough that legitimate command output never
// contains it by accident.
package delimiter
