// Package script loads ordered command lists for the run command, either from a YAML
// document or from one command per line.
package script
