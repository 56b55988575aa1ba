package utils

import (
	"io"
	"sync"
)

// FlushingWriter makes command output visible as soon as it is written and remembers the first write
// failure, so a caller streaming many results can stop once its destination is gone.
type FlushingWriter struct {
	writer     io.Writer
	mutex      sync.Mutex
	firstError error
}

// NewFlushingWriter wraps the provided writer. Wrapping an existing FlushingWriter returns it unchanged.
func NewFlushingWriter(writer io.Writer) *FlushingWriter {
	if existing, alreadyWrapped := writer.(*FlushingWriter); alreadyWrapped {
		return existing
	}
	return &FlushingWriter{writer: writer}
}

// Write delegates to the underlying writer and flushes it when possible. After a failure every later
// write returns the same error without touching the underlying writer.
func (flushingWriter *FlushingWriter) Write(data []byte) (int, error) {
	if flushingWriter == nil || flushingWriter.writer == nil {
		return len(data), nil
	}

	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()

	if flushingWriter.firstError != nil {
		return 0, flushingWriter.firstError
	}

	bytesWritten, writeError := flushingWriter.writer.Write(data)
	if writeError == nil {
		if flushableWriter, implementsFlush := flushingWriter.writer.(interface{ Flush() error }); implementsFlush {
			writeError = flushableWriter.Flush()
		}
	}
	flushingWriter.firstError = writeError

	return bytesWritten, writeError
}

// Err reports the first write or flush failure.
func (flushingWriter *FlushingWriter) Err() error {
	if flushingWriter == nil {
		return nil
	}
	flushingWriter.mutex.Lock()
	defer flushingWriter.mutex.Unlock()
	return flushingWriter.firstError
}
