package channel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	lineTerminatorConstant          = "\n"
	unknownExitStatusTokenConstant  = "-1"
	negativeSignConstant            = '-'
	parseOperationConstant          = "parse"
	missingDelimiterMessageConstant = "response does not end with the delimiter line"
	invalidStatusTemplateConstant   = "status token %q is not an integer"
)

// UnknownExitStatus is reported when the shell did not echo a status.
const UnknownExitStatus = -1

var errMissingDelimiter = errors.New(missingDelimiterMessageConstant)

// Response is a parsed command response.
type Response struct {
	Output     string
	ExitStatus int
}

// SynthesizedTrailer is appended to a truncated response so it still parses with UnknownExitStatus.
func SynthesizedTrailer(delimiterLine string) string {
	return lineTerminatorConstant + unknownExitStatusTokenConstant + lineTerminatorConstant + delimiterLine
}

// ParseResponse splits raw into the command output and its exit status as framed by DefaultFraming.
func ParseResponse(raw string, delimiterLine string) (Response, error) {
	return DefaultFraming().ParseResponse(raw, delimiterLine)
}

// ParseResponse splits raw into the command output and its exit status.
//
// raw must end with delimiterLine. The line before the delimiter holds the status token and
// everything before that line is output. With StatusOnOwnLine one trailing newline of the
// output belongs to the frame and is removed.
func (framing Framing) ParseResponse(raw string, delimiterLine string) (Response, error) {
	if len(delimiterLine) == 0 || !strings.HasSuffix(raw, delimiterLine) {
		return Response{ExitStatus: UnknownExitStatus}, NewChannelError(KindParseFailed, parseOperationConstant, errMissingDelimiter)
	}

	body := strings.TrimSuffix(raw, delimiterLine)
	body = strings.TrimSuffix(body, lineTerminatorConstant)

	output := ""
	statusToken := body
	if separatorIndex := strings.LastIndex(body, lineTerminatorConstant); separatorIndex >= 0 {
		output = body[:separatorIndex]
		statusToken = body[separatorIndex+len(lineTerminatorConstant):]
	}
	if framing.StatusOnOwnLine {
		output = strings.TrimSuffix(output, lineTerminatorConstant)
	}

	exitStatus, statusError := parseStatusToken(statusToken)
	if statusError != nil {
		return Response{Output: output, ExitStatus: UnknownExitStatus}, NewChannelError(KindParseFailed, parseOperationConstant, statusError)
	}

	return Response{Output: output, ExitStatus: exitStatus}, nil
}

func parseStatusToken(statusToken string) (int, error) {
	digits := statusToken
	if len(digits) > 0 && digits[0] == negativeSignConstant {
		digits = digits[1:]
	}
	if len(digits) == 0 || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, fmt.Errorf(invalidStatusTemplateConstant, statusToken)
	}
	exitStatus, conversionError := strconv.Atoi(statusToken)
	if conversionError != nil {
		return 0, fmt.Errorf(invalidStatusTemplateConstant+": %w", statusToken, conversionError)
	}
	return exitStatus, nil
}
