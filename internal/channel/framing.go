package channel

import (
	"errors"
	"fmt"
	"strings"
)

// DelimiterPlaceholder marks where the delimiter is substituted into Framing.StatusEcho.
const DelimiterPlaceholder = "@DELIMITER@"

const (
	defaultOpenConstant        = "{ :\n"
	defaultCloseConstant       = "\n} 2>&1 </dev/null\n"
	defaultStatusEchoConstant  = "printf '\\n%s\\n%s\\n' \"$?\" " + DelimiterPlaceholder + "\n"
	legacyCloseConstant        = " 2>&1\n"
	legacyStatusEchoConstant   = "echo -e $?\"\\n\"" + DelimiterPlaceholder + "\n"
	lastStatusVariableConstant = "$?"

	framingMissingTemplateConstant = "status echo %q must contain %s"
)

// ErrInvalidFraming indicates a Framing that cannot report both the status and the delimiter.
var ErrInvalidFraming = errors.New("invalid framing")

// Framing describes how a raw command is wrapped before it is written to the shell.
// The frame is Open + command + Close + StatusEcho, with DelimiterPlaceholder in StatusEcho
// replaced by the request delimiter.
type Framing struct {
	Open            string
	Close           string
	StatusEcho      string
	// StatusOnOwnLine reports that StatusEcho prints a newline before the status, so one
	// trailing newline of the output belongs to the frame rather than to the command.
	StatusOnOwnLine bool
}

// DefaultFraming groups the command so stderr of every statement joins stdout and the command
// cannot read framing bytes from the shell's stdin. The status line is always preceded by a
// newline so output without a trailing newline stays separable.
func DefaultFraming() Framing {
	return Framing{
		Open:            defaultOpenConstant,
		Close:           defaultCloseConstant,
		StatusEcho:      defaultStatusEchoConstant,
		StatusOnOwnLine: true,
	}
}

// LegacyFraming appends the redirection and an echo of the status directly after the command.
// Output that does not end in a newline merges with the status line under this framing.
func LegacyFraming() Framing {
	return Framing{
		Close:      legacyCloseConstant,
		StatusEcho: legacyStatusEchoConstant,
	}
}

// Validate reports whether the status echo carries the exit status and the delimiter.
func (framing Framing) Validate() error {
	for _, requiredFragment := range []string{DelimiterPlaceholder, lastStatusVariableConstant} {
		if !strings.Contains(framing.StatusEcho, requiredFragment) {
			return fmt.Errorf("%w: "+framingMissingTemplateConstant, ErrInvalidFraming, framing.StatusEcho, requiredFragment)
		}
	}
	return nil
}

// Frame returns the bytes written to the shell for command.
func (framing Framing) Frame(command string, delimiter string) []byte {
	statusEcho := strings.ReplaceAll(framing.StatusEcho, DelimiterPlaceholder, delimiter)

	var builder strings.Builder
	builder.Grow(len(framing.Open) + len(command) + len(framing.Close) + len(statusEcho))
	builder.WriteString(framing.Open)
	builder.WriteString(command)
	builder.WriteString(framing.Close)
	builder.WriteString(statusEcho)
	return []byte(builder.String())
}
