// Package session spawns and owns the long-lived shell process behind a command driver.
package session
