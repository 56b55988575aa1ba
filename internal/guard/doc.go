// Package guard validates commands before they reach a persistent shell.
//
// A command that leaves a quote, block or here-document open would absorb the status echo
// appended after it and the response would never terminate, so such commands are refused
// up front. Deny lists of commands and argument prefixes are applied to every simple command
// found in the parsed syntax tree.
package guard
