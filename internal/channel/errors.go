package channel

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the command channel.
type Kind int

// Channel failure kinds.
const (
	KindSendFailed Kind = iota + 1
	KindReadFailed
	KindParseFailed
	KindSessionClosed
	KindTimeout
)

const (
	kindSendFailedNameConstant    = "send_failed"
	kindReadFailedNameConstant    = "read_failed"
	kindParseFailedNameConstant   = "parse_failed"
	kindSessionClosedNameConstant = "session_closed"
	kindTimeoutNameConstant       = "timeout"
	kindUnknownNameConstant       = "unknown"

	channelErrorTemplateConstant          = "%s: %s"
	channelErrorWithCauseTemplateConstant = "%s: %s: %v"
)

var (
	// ErrSendFailed indicates that a framed command could not be written in full.
	ErrSendFailed    = errors.New("command send failed")
	// ErrReadFailed indicates that the response stream closed or failed before the delimiter arrived.
	ErrReadFailed    = errors.New("response read failed")
	// ErrParseFailed indicates a response trailer that does not follow the framing protocol.
	ErrParseFailed   = errors.New("response parse failed")
	// ErrSessionClosed indicates use of a channel or driver whose shell session has ended.
	ErrSessionClosed = errors.New("shell session closed")
	// ErrTimeout indicates that the delimiter did not arrive before the deadline.
	ErrTimeout       = errors.New("response timed out")
)

var kindSentinels = map[Kind]error{
	KindSendFailed:    ErrSendFailed,
	KindReadFailed:    ErrReadFailed,
	KindParseFailed:   ErrParseFailed,
	KindSessionClosed: ErrSessionClosed,
	KindTimeout:       ErrTimeout,
}

var kindNames = map[Kind]string{
	KindSendFailed:    kindSendFailedNameConstant,
	KindReadFailed:    kindReadFailedNameConstant,
	KindParseFailed:   kindParseFailedNameConstant,
	KindSessionClosed: kindSessionClosedNameConstant,
	KindTimeout:       kindTimeoutNameConstant,
}

// String returns the snake_case name of the kind.
func (kind Kind) String() string {
	if name, exists := kindNames[kind]; exists {
		return name
	}
	return kindUnknownNameConstant
}

// ChannelError describes a failed channel operation.
type ChannelError struct {
	Kind Kind
	Op   string
	Err  error
}

// NewChannelError constructs a ChannelError for the operation.
func NewChannelError(kind Kind, operation string, cause error) *ChannelError {
	return &ChannelError{Kind: kind, Op: operation, Err: cause}
}

// Error describes the failure.
func (channelError *ChannelError) Error() string {
	sentinel := kindSentinels[channelError.Kind]
	message := kindUnknownNameConstant
	if sentinel != nil {
		message = sentinel.Error()
	}
	if channelError.Err == nil {
		return fmt.Sprintf(channelErrorTemplateConstant, channelError.Op, message)
	}
	return fmt.Sprintf(channelErrorWithCauseTemplateConstant, channelError.Op, message, channelError.Err)
}

// Unwrap exposes the underlying cause.
func (channelError *ChannelError) Unwrap() error {
	return channelError.Err
}

// Is matches the sentinel error of the failure kind.
func (channelError *ChannelError) Is(target error) bool {
	sentinel, exists := kindSentinels[channelError.Kind]
	return exists && target == sentinel
}

// KindOf reports the Kind of the first ChannelError in the chain of err.
func KindOf(err error) (Kind, bool) {
	var channelError *ChannelError
	if !errors.As(err, &channelError) {
		return 0, false
	}
	return channelError.Kind, true
}
