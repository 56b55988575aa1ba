package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
	messageStageSessionEnded
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	sessionEndedTemplateConstant            = "%s ended the shell session with exit code %d"
	commandLabelTemplateConstant            = "%q"
	outputSuffixTemplateConstant            = ": %s"
	continuationMarkerConstant              = "..."
	lineTerminatorConstant                  = "\n"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	maximumLabelLengthConstant              = 60
	maximumOutputSuffixLengthConstant       = 120
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command Command) string {
	return formatter.buildMessage(command, Result{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a command that exited with status zero.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command Command) string {
	return formatter.buildMessage(command, Result{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command with a non-zero exit status
// or one that ended the shell session.
func (formatter CommandMessageFormatter) BuildFailureMessage(command Command, result Result) string {
	if result.SessionEnded {
		return formatter.buildMessage(command, result, nil, messageStageSessionEnded)
	}
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing a command without an exit status.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command Command, failure error) string {
	return formatter.buildMessage(command, Result{}, failure, messageStageExecutionFailure)
}

// FormatCommandLabel returns the quoted first line of the command, shortened for display.
func (formatter CommandMessageFormatter) FormatCommandLabel(command Command) string {
	commandText := strings.TrimSpace(command.Text)
	truncated := false
	if lineEnd := strings.Index(commandText, lineTerminatorConstant); lineEnd >= 0 {
		commandText = strings.TrimSpace(commandText[:lineEnd])
		truncated = true
	}
	commandText, shortened := truncate(commandText, maximumLabelLengthConstant)
	if truncated || shortened {
		commandText += continuationMarkerConstant
	}
	return fmt.Sprintf(commandLabelTemplateConstant, commandText)
}

func (formatter CommandMessageFormatter) buildMessage(command Command, result Result, failure error, stage messageStage) string {
	commandLabel := formatter.FormatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitStatus, formatter.formatOutputSuffix(result.Output))
	case messageStageSessionEnded:
		return fmt.Sprintf(sessionEndedTemplateConstant, commandLabel, result.ExitStatus)
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	}
}

// formatOutputSuffix appends the last output line, which usually carries the error message.
func (formatter CommandMessageFormatter) formatOutputSuffix(output string) string {
	trimmedOutput := strings.TrimSpace(output)
	if len(trimmedOutput) == 0 {
		return emptyStringConstant
	}
	if lastLineStart := strings.LastIndex(trimmedOutput, lineTerminatorConstant); lastLineStart >= 0 {
		trimmedOutput = trimmedOutput[lastLineStart+len(lineTerminatorConstant):]
	}
	lastLine, shortened := truncate(trimmedOutput, maximumOutputSuffixLengthConstant)
	if shortened {
		lastLine += continuationMarkerConstant
	}
	return fmt.Sprintf(outputSuffixTemplateConstant, lastLine)
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func truncate(text string, maximumRunes int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= maximumRunes {
		return text, false
	}
	return string(runes[:maximumRunes]), true
}
