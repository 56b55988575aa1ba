package utils_test

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellwire/internal/utils"
)

type failingWriter struct {
	writeCount int
}

var errWriterClosed = errors.New("writer closed")

func (writer *failingWriter) Write(data []byte) (int, error) {
	writer.writeCount++
	return 0, errWriterClosed
}

func TestFlushingWriterFlushesBufferedWriter(testInstance *testing.T) {
	var destination bytes.Buffer
	bufferedWriter := bufio.NewWriter(&destination)
	flushingWriter := utils.NewFlushingWriter(bufferedWriter)

	_, writeError := flushingWriter.Write([]byte("0\n"))
	require.NoError(testInstance, writeError)
	require.Equal(testInstance, "0\n", destination.String())
	require.NoError(testInstance, flushingWriter.Err())
	require.Same(testInstance, flushingWriter, utils.NewFlushingWriter(flushingWriter))
}

func TestFlushingWriterKeepsFirstError(testInstance *testing.T) {
	destination := &failingWriter{}
	flushingWriter := utils.NewFlushingWriter(destination)

	_, firstError := flushingWriter.Write([]byte("first"))
	_, secondError := flushingWriter.Write([]byte("second"))

	require.ErrorIs(testInstance, firstError, errWriterClosed)
	require.ErrorIs(testInstance, secondError, errWriterClosed)
	require.ErrorIs(testInstance, flushingWriter.Err(), errWriterClosed)
	require.Equal(testInstance, 1, destination.writeCount)
}

func TestFlushingWriterDiscardsWithoutDestination(testInstance *testing.T) {
	flushingWriter := utils.NewFlushingWriter(nil)

	bytesWritten, writeError := flushingWriter.Write([]byte("ignored"))
	require.NoError(testInstance, writeError)
	require.Equal(testInstance, len("ignored"), bytesWritten)

	var nilWriter *utils.FlushingWriter
	require.NoError(testInstance, nilWriter.Err())
}
