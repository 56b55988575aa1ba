package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// DefaultChunkSize is the number of bytes requested per read of the response stream.
const DefaultChunkSize = 1024

const (
	sendOperationConstant            = "send"
	receiveOperationConstant         = "receive"
	maximumEmptyReadsConstant        = 100
	missingWriterMessageConstant     = "command channel requires a writer"
	missingReaderMessageConstant     = "command channel requires a reader"
	emptyDelimiterMessageConstant    = "delimiter line must not be empty"
	negativeChunkSizeMessageConstant = "chunk size must not be negative"
)

var (
	// ErrWriterNotConfigured indicates a channel constructed without an input stream.
	ErrWriterNotConfigured = errors.New(missingWriterMessageConstant)
	// ErrReaderNotConfigured indicates a channel constructed without an output stream.
	ErrReaderNotConfigured = errors.New(missingReaderMessageConstant)
	// ErrInvalidChunkSize indicates a negative chunk size.
	ErrInvalidChunkSize    = errors.New(negativeChunkSizeMessageConstant)

	errEmptyDelimiter = errors.New(emptyDelimiterMessageConstant)
	interruptDeadline = time.Unix(1, 0)
)

// Stream is the readable side of a shell session. SetReadDeadline must unblock a pending Read.
type Stream interface {
	io.Reader
	SetReadDeadline(deadline time.Time) error
}

// Options configure a CommandChannel.
type Options struct {
	Framing     Framing
	ChunkSize   int
	ReadTimeout time.Duration
}

// CommandChannel writes framed commands to a shell and reads responses back until the
// request delimiter is observed. A channel carries one request at a time.
type CommandChannel struct {
	writer      io.Writer
	reader      Stream
	framing     Framing
	chunkSize   int
	readTimeout time.Duration
}

// NewCommandChannel constructs a channel over the shell's input writer and output stream.
// A zero Framing selects DefaultFraming and a zero ChunkSize selects DefaultChunkSize.
func NewCommandChannel(writer io.Writer, reader Stream, options Options) (*CommandChannel, error) {
	if writer == nil {
		return nil, ErrWriterNotConfigured
	}
	if reader == nil {
		return nil, ErrReaderNotConfigured
	}

	framing := options.Framing
	if framing == (Framing{}) {
		framing = DefaultFraming()
	}
	if validationError := framing.Validate(); validationError != nil {
		return nil, validationError
	}

	chunkSize := options.ChunkSize
	if chunkSize < 0 {
		return nil, ErrInvalidChunkSize
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	return &CommandChannel{
		writer:      writer,
		reader:      reader,
		framing:     framing,
		chunkSize:   chunkSize,
		readTimeout: options.ReadTimeout,
	}, nil
}

// Framing returns the framing applied by Send.
func (commandChannel *CommandChannel) Framing() Framing {
	return commandChannel.framing
}

// Send writes the framed command in a single write. Failures are not retried.
func (commandChannel *CommandChannel) Send(command string, delimiter string) error {
	frame := commandChannel.framing.Frame(command, delimiter)
	bytesWritten, writeError := commandChannel.writer.Write(frame)
	if writeError != nil {
		return NewChannelError(KindSendFailed, sendOperationConstant, writeError)
	}
	if bytesWritten != len(frame) {
		return NewChannelError(KindSendFailed, sendOperationConstant, io.ErrShortWrite)
	}
	return nil
}

// ReceiveUntil reads the response stream until the accumulated text ends with delimiterLine.
//
// When the stream ends first, SynthesizedTrailer is appended so the text still parses and the
// error is of KindReadFailed. When executionContext or the read timeout expires first, the
// partial text is returned unmodified with an error of KindTimeout.
func (commandChannel *CommandChannel) ReceiveUntil(executionContext context.Context, delimiterLine string) (string, error) {
	if len(delimiterLine) == 0 {
		return "", NewChannelError(KindReadFailed, receiveOperationConstant, errEmptyDelimiter)
	}
	if executionContext == nil {
		executionContext = context.Background()
	}

	receiveContext := executionContext
	if commandChannel.readTimeout > 0 {
		var cancelReceive context.CancelFunc
		receiveContext, cancelReceive = context.WithTimeout(executionContext, commandChannel.readTimeout)
		defer cancelReceive()
	}

	// A deadline left over from an interrupted receive would fail the first read.
	_ = commandChannel.reader.SetReadDeadline(time.Time{})

	interruptFinished := make(chan struct{})
	stopInterrupt := context.AfterFunc(receiveContext, func() {
		defer close(interruptFinished)
		_ = commandChannel.reader.SetReadDeadline(interruptDeadline)
	})
	defer func() {
		if !stopInterrupt() {
			<-interruptFinished
		}
	}()

	delimiterBytes := []byte(delimiterLine)
	var buffer bytes.Buffer
	chunk := make([]byte, commandChannel.chunkSize)
	emptyReads := 0

	for {
		bytesRead, readError := commandChannel.reader.Read(chunk)
		if bytesRead > 0 {
			emptyReads = 0
			buffer.Write(chunk[:bytesRead])
			if bytes.HasSuffix(buffer.Bytes(), delimiterBytes) {
				return buffer.String(), nil
			}
		}

		if readError != nil {
			if receiveContext.Err() != nil && errors.Is(readError, os.ErrDeadlineExceeded) {
				return buffer.String(), NewChannelError(KindTimeout, receiveOperationConstant, context.Cause(receiveContext))
			}
			buffer.WriteString(SynthesizedTrailer(delimiterLine))
			return buffer.String(), NewChannelError(KindReadFailed, receiveOperationConstant, readError)
		}

		if bytesRead == 0 {
			emptyReads++
			if emptyReads >= maximumEmptyReadsConstant {
				buffer.WriteString(SynthesizedTrailer(delimiterLine))
				return buffer.String(), NewChannelError(KindReadFailed, receiveOperationConstant, io.ErrNoProgress)
			}
		}
	}
}

// Exchange sends command and returns its parsed response. The raw text read so far is
// returned alongside any error.
func (commandChannel *CommandChannel) Exchange(executionContext context.Context, command string, delimiter string) (Response, string, error) {
	if sendError := commandChannel.Send(command, delimiter); sendError != nil {
		return Response{ExitStatus: UnknownExitStatus}, "", sendError
	}

	delimiterLine := delimiter + lineTerminatorConstant
	raw, receiveError := commandChannel.ReceiveUntil(executionContext, delimiterLine)
	if receiveError != nil {
		if kind, _ := KindOf(receiveError); kind == KindReadFailed {
			response, _ := commandChannel.framing.ParseResponse(raw, delimiterLine)
			return Response{Output: response.Output, ExitStatus: UnknownExitStatus}, raw, receiveError
		}
		return Response{Output: raw, ExitStatus: UnknownExitStatus}, raw, receiveError
	}

	response, parseError := commandChannel.framing.ParseResponse(raw, delimiterLine)
	return response, raw, parseError
}
