// Package report renders a crawl session into output artifacts.
//
// Writers:
//   - JSONWriter: the csp_policy.json audit document
//   - WebConfigWriter: the IIS web.config snippet
//   - MarkdownWriter: an optional csp_report.md with per-origin evidence
//   - SimpleWriter: the short text summary printed after a run
//
// WriteArtifacts writes the file artifacts into an output directory.
// Every artifact is attempted even when an earlier one fails; the failures
// are joined and each one names its file.
//
// Writers implement the Writer interface, so the history command can pick
// one at run time.
package report
