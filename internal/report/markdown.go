package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/cspgen/internal/csp"
	"github.com/nao1215/cspgen/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MarkdownWriter outputs an audit report in Markdown format.
// The report explains every token of the policy with the page and resource
// on which it was first observed, so a reviewer can check each origin
// before the header is deployed.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the session report in Markdown format.
func (w *MarkdownWriter) Write(session *model.Session) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, session)
	w.writePolicy(md, session)
	w.writeDirectives(md, session)
	w.writePages(md, session)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report title and the run overview.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, session *model.Session) {
	md.H1("Content Security Policy Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", inlineCode(session.StartURL)},
			{"Origin ('self')", inlineCode(session.OriginHost)},
			{"Crawl Date", session.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", session.Duration().Round(time.Millisecond).String()},
			{"Pages Attempted", strconv.Itoa(session.PagesAttempted()) + " / " + strconv.Itoa(session.MaxPages)},
			{"Pages Succeeded", strconv.Itoa(session.PagesSucceeded())},
			{"Skipped References", strconv.Itoa(session.SkippedReferences)},
			{"Status", statusText(session)},
		},
	})
	md.PlainText("")

	failures := len(session.Failures())
	switch {
	case session.Interrupted:
		md.Cautionf("The crawl was interrupted after %d page(s). The policy only covers the pages visited.",
			session.PagesAttempted())
	case failures > 0:
		md.Warningf("%d page(s) could not be fetched or parsed. Resources on those pages are not in the policy.",
			failures)
	case externalTokenCount(session.Policy) == 0:
		md.Tip("No third-party origins were observed. Every directive allows only 'self'.")
	default:
		md.Note("Review every third-party origin below before deploying the header.")
	}
	md.PlainText("")
}

// writePolicy writes the header value and a chart of origins per directive.
func (w *MarkdownWriter) writePolicy(md *markdown.Markdown, session *model.Session) {
	md.H2("Policy")
	md.PlainText("")

	header := csp.RenderHeader(session.Policy)
	if header == "" {
		md.PlainText("No directives were collected.")
		md.PlainText("")
		return
	}
	md.CodeBlocks(markdown.SyntaxHighlight("text"), csp.HeaderName+": "+header)
	md.PlainText("")

	if externalTokenCount(session.Policy) == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Third-party Origins per Directive"),
		piechart.WithShowData(true),
	)
	for _, d := range session.Policy.Directives() {
		if n := externalCount(session.Policy.Sources(d)); n > 0 {
			chart.LabelAndIntValue(string(d), uint64(n)) //nolint:gosec // n is positive
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeDirectives writes one evidence table per directive.
func (w *MarkdownWriter) writeDirectives(md *markdown.Markdown, session *model.Session) {
	md.H2("Directives")
	md.PlainText("")

	directives := session.Policy.Directives()
	if len(directives) == 0 {
		md.PlainText("No directives were collected.")
		md.PlainText("")
		return
	}

	for _, d := range directives {
		md.H3(directiveLabel(d) + " (`" + string(d) + "`)")
		md.PlainText("")

		evidence := make(map[string]model.OriginEvidence)
		for _, e := range session.EvidenceFor(d) {
			evidence[e.Token] = e
		}

		sources := session.Policy.Sources(d)
		rows := make([][]string, 0, len(sources))
		for _, token := range sources {
			e, ok := evidence[token]
			if !ok || e.Count == 0 {
				rows = append(rows, []string{inlineCode(token), "-", "-", "-"})
				continue
			}
			rows = append(rows, []string{
				inlineCode(token),
				strconv.Itoa(e.Count),
				escapePipes(truncateString(e.FirstPage, 60)),
				escapePipes(truncateString(e.FirstResource, 60)),
			})
		}

		md.Table(markdown.TableSet{
			Header: []string{"Source", "References", "First Seen On", "First Resource"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writePages writes the crawl log and the failure details.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, session *model.Session) {
	md.H2("Pages")
	md.PlainText("")

	if len(session.Pages) == 0 {
		md.PlainText("No pages were fetched.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(session.Pages))
	for i, p := range session.Pages {
		code := "-"
		if p.StatusCode != 0 {
			code = strconv.Itoa(p.StatusCode)
		}
		rows[i] = []string{
			escapePipes(truncateString(p.URL, 70)),
			strconv.Itoa(p.Depth),
			string(p.Status),
			code,
			strconv.Itoa(p.References),
			strconv.Itoa(p.Links),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Status", "HTTP", "References", "Links"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, f := range session.Failures() {
		md.Details(f.URL, f.Error)
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [cspgen](https://github.com/nao1215/cspgen)*")
}

// directiveLabel turns "script-src" into "Script Src".
func directiveLabel(d model.Directive) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(d), "-", " "))
}

// statusText returns the status text based on session state.
func statusText(session *model.Session) string {
	if session.Interrupted {
		return "⚠️ Interrupted (partial policy)"
	}
	if n := len(session.Failures()); n > 0 {
		return "✅ Complete (" + strconv.Itoa(n) + " page failure(s))"
	}
	return "✅ Complete"
}

// externalTokenCount returns the number of non-'self' tokens in p.
func externalTokenCount(p *model.Policy) int {
	n := 0
	for _, d := range p.Directives() {
		n += externalCount(p.Sources(d))
	}
	return n
}

func externalCount(sources []string) int {
	n := 0
	for _, s := range sources {
		if s != model.SourceSelf {
			n++
		}
	}
	return n
}

// inlineCode wraps s in a code span for a table cell. The fence is longer
// than any backtick run inside s, and pipes are escaped so the cell stays
// intact.
func inlineCode(s string) string {
	fence := "`"
	for strings.Contains(s, fence) {
		fence += "`"
	}
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return escapePipes(fence + s + fence)
}

// escapePipes escapes the column separator of a table cell.
func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if s == "" {
		return "-"
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
