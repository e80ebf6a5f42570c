package report

import (
	"io"

	"github.com/nao1215/cspgen/internal/model"
)

// Writer defines the interface for session output.
// Implementations write crawl results in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or buffers
// with the same API.
type Writer interface {
	// Write outputs the session to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(session *model.Session) (int, error)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
