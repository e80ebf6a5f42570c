package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/cspgen/internal/model"
)

// SimpleWriter outputs the human-readable summary printed after a run:
// the artifact paths, the origins per directive and the page counts.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because the summary is commonly captured by CI logs.
type SimpleWriter struct {
	baseWriter

	// verbose lists every failed page with its error.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary.
func (w *SimpleWriter) Write(session *model.Session) (int, error) {
	var sb strings.Builder

	w.writeArtifacts(&sb, session)
	w.writeDirectives(&sb, session)
	w.writeCounts(&sb, session)

	return io.WriteString(w.output, sb.String())
}

// writeArtifacts lists the files written for the session.
func (w *SimpleWriter) writeArtifacts(sb *strings.Builder, session *model.Session) {
	if len(session.Artifacts) == 0 {
		return
	}
	sb.WriteString("CSP policy written to:\n")
	for _, path := range session.Artifacts {
		fmt.Fprintf(sb, "    - %s\n", path)
	}
	sb.WriteString("\n")
}

// writeDirectives lists the tokens of every directive in canonical order.
func (w *SimpleWriter) writeDirectives(sb *strings.Builder, session *model.Session) {
	sb.WriteString("Domains by directive:\n")
	directives := session.Policy.Directives()
	if len(directives) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, d := range directives {
		fmt.Fprintf(sb, "  %s: %s\n", d, strings.Join(session.Policy.Sources(d), ", "))
	}
	sb.WriteString("\n")
}

// writeCounts writes the page totals and, in verbose mode, each failure.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, session *model.Session) {
	failures := session.Failures()
	fmt.Fprintf(sb, "Pages: %d attempted, %d succeeded, %d failed (max %d)\n",
		session.PagesAttempted(), session.PagesSucceeded(), len(failures), session.MaxPages)

	if session.Interrupted {
		sb.WriteString("Status: INTERRUPTED (partial policy)\n")
	}

	if !w.verbose {
		return
	}
	for _, f := range failures {
		fmt.Fprintf(sb, "  [!] %s: %s\n", f.URL, f.Error)
	}
}
