// Package channel implements the framing protocol spoken with a persistent shell.
//
// Every command is wrapped so the shell prints the command output, the exit status of the
// command on its own line, and a per-request delimiter line. CommandChannel writes the frame
// and reads the response stream until the delimiter line terminates the buffer; ParseResponse
// splits the buffer back into output and status.
package channel
