package report

import (
	"io"

	"github.com/nao1215/cspgen/internal/csp"
	"github.com/nao1215/cspgen/internal/model"
)

// WebConfigWriter outputs the IIS web.config snippet that sets the
// Content-Security-Policy response header.
type WebConfigWriter struct {
	baseWriter
}

// NewWebConfigWriter creates a WebConfigWriter that outputs to the given writer.
func NewWebConfigWriter(output io.Writer) *WebConfigWriter {
	return &WebConfigWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the web.config document.
func (w *WebConfigWriter) Write(session *model.Session) (int, error) {
	return w.output.Write(csp.RenderWebConfig(session.Policy))
}
