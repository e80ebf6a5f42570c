package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/cspgen/internal/csp"
	"github.com/nao1215/cspgen/internal/model"
)

// JSONWriter outputs the policy as the csp_policy.json document: an object
// keyed by directive name in canonical order, each value the ordered token
// list.
//
// With WithSessionDetails the whole session is written instead, which
// includes per-page outcomes and origin evidence. The history command uses
// that form for machine-readable output.
type JSONWriter struct {
	baseWriter

	// details switches from the policy document to the full session.
	details bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithSessionDetails writes the full session rather than only the policy.
func WithSessionDetails(details bool) JSONWriterOption {
	return func(w *JSONWriter) {
		w.details = details
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the policy (or the session) as indented JSON.
func (w *JSONWriter) Write(session *model.Session) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.details {
		data, err = json.MarshalIndent(session, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = csp.RenderJSON(session.Policy)
	}
	if err != nil {
		return 0, err
	}

	return w.output.Write(data)
}
