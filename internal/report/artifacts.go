package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/cspgen/internal/model"
)

// Artifact file names written into the output directory.
const (
	// PolicyFileName is the JSON audit document.
	PolicyFileName = "csp_policy.json"

	// WebConfigFileName is the IIS configuration snippet.
	WebConfigFileName = "web.config"

	// MarkdownFileName is the optional audit report.
	MarkdownFileName = "csp_report.md"
)

// ErrArtifactWrite indicates that the output directory or an artifact file
// could not be written. It is fatal for a run.
var ErrArtifactWrite = errors.New("failed to write artifact")

// ArtifactOptions selects the optional artifacts.
type ArtifactOptions struct {
	// Markdown additionally writes MarkdownFileName.
	Markdown bool
}

// artifact pairs a file name with the writer that renders it.
type artifact struct {
	name   string
	render func(*bytes.Buffer) Writer
}

// WriteArtifacts renders session into dir, creating dir if needed, and
// returns the paths written in order.
//
// Every artifact is attempted. Failures are joined and each one names its
// file, so a partially writable directory still reports exactly what is
// missing.
func WriteArtifacts(dir string, session *model.Session, opts ArtifactOptions) ([]string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifactWrite, dir, err)
	}

	artifacts := []artifact{
		{name: PolicyFileName, render: func(b *bytes.Buffer) Writer { return NewJSONWriter(b) }},
		{name: WebConfigFileName, render: func(b *bytes.Buffer) Writer { return NewWebConfigWriter(b) }},
	}
	if opts.Markdown {
		artifacts = append(artifacts, artifact{
			name:   MarkdownFileName,
			render: func(b *bytes.Buffer) Writer { return NewMarkdownWriter(b) },
		})
	}

	written := make([]string, 0, len(artifacts))
	var errs []error
	for _, a := range artifacts {
		path := filepath.Join(dir, a.name)

		var buf bytes.Buffer
		if _, err := a.render(&buf).Write(session); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrArtifactWrite, path, err))
			continue
		}
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil { //nolint:gosec // deployable artifact
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrArtifactWrite, path, err))
			continue
		}
		written = append(written, path)
	}

	return written, errors.Join(errs...)
}
