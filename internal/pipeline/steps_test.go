package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/cspgen/internal/config"
	"github.com/nao1215/cspgen/internal/crawler"
	"github.com/nao1215/cspgen/internal/database"
	"github.com/nao1215/cspgen/internal/model"
	"github.com/nao1215/cspgen/internal/report"
)

// newSiteServer serves a two page site referencing one CDN script.
func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head>
<script src="https://cdn.example.net/app.js"></script>
<link rel="stylesheet" href="/site.css">
</head><body><a href="/about">About</a></body></html>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><img src="https://img.example.org/a.png"></body></html>`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// newTestConfig returns a config crawling startURL into a temp directory.
func newTestConfig(t *testing.T, startURL string) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.StartURL = startURL
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.DBDir = filepath.Join(t.TempDir(), "db")
	cfg.CrawlDelay = 0
	return cfg
}

// TestDefaultPipeline tests the full crawl, write and summary flow.
func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	t.Run("crawls and writes artifacts", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		cfg := newTestConfig(t, server.URL)

		var stdout bytes.Buffer
		p := DefaultPipeline(cfg, nil, WithPipelineSummaryOutput(&stdout))
		if got := p.StepNames(); strings.Join(got, ",") != "crawl,artifacts,summary" {
			t.Fatalf("unexpected steps %v", got)
		}

		session := model.NewSession(cfg.StartURL, cfg.MaxPages)
		if err := p.Execute(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if session.PagesAttempted() != 2 {
			t.Errorf("expected 2 pages, got %d", session.PagesAttempted())
		}
		if !session.Policy.Has(model.ScriptSrc, "cdn.example.net") ||
			!session.Policy.Has(model.ImgSrc, "img.example.org") ||
			!session.Policy.Has(model.StyleSrc, model.SourceSelf) {
			t.Errorf("unexpected policy %v", session.Policy)
		}

		for _, name := range []string{report.PolicyFileName, report.WebConfigFileName} {
			if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); err != nil {
				t.Errorf("expected %s to be written: %v", name, err)
			}
		}
		if len(session.Artifacts) != 2 {
			t.Errorf("expected 2 artifacts recorded, got %v", session.Artifacts)
		}
		if !strings.Contains(stdout.String(), "script-src: cdn.example.net, 'self'") {
			t.Errorf("unexpected summary: %s", stdout.String())
		}
	})

	t.Run("saves history and markdown when enabled", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		cfg := newTestConfig(t, server.URL)
		cfg.SaveToDB = true
		cfg.MarkdownReport = true

		p := DefaultPipeline(cfg, nil, WithPipelineSummaryOutput(nil))
		if got := p.StepNames(); strings.Join(got, ",") != "crawl,artifacts,history" {
			t.Fatalf("unexpected steps %v", got)
		}

		session := model.NewSession(cfg.StartURL, cfg.MaxPages)
		if err := p.Execute(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := os.Stat(filepath.Join(cfg.OutputDir, report.MarkdownFileName)); err != nil {
			t.Errorf("expected markdown report: %v", err)
		}

		db, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("expected history database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), "")
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 || runs[0].PagesAttempted != 2 {
			t.Errorf("unexpected runs %+v", runs)
		}
	})

	t.Run("unreachable start URL writes nothing", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		t.Cleanup(server.Close)
		cfg := newTestConfig(t, server.URL)

		p := DefaultPipeline(cfg, nil, WithPipelineSummaryOutput(nil))
		err := p.Execute(context.Background(), model.NewSession(cfg.StartURL, cfg.MaxPages))
		if !errors.Is(err, crawler.ErrStartURLUnreachable) {
			t.Fatalf("expected ErrStartURLUnreachable, got %v", err)
		}
		if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
			t.Error("output directory should not be created")
		}
	})

	t.Run("cancelled crawl still writes the partial policy", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		cfg := newTestConfig(t, server.URL)

		crawlCtx, cancel := context.WithCancel(context.Background())
		cancel()

		p := DefaultPipeline(cfg, nil,
			WithPipelineCrawlContext(crawlCtx),
			WithPipelineSummaryOutput(nil),
		)
		session := model.NewSession(cfg.StartURL, cfg.MaxPages)
		if err := p.Execute(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !session.Interrupted {
			t.Error("expected session to be interrupted")
		}

		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, report.PolicyFileName))
		if err != nil {
			t.Fatalf("expected policy to be written: %v", err)
		}
		if string(data) != "{}\n" {
			t.Errorf("expected empty policy, got %q", data)
		}
	})

	t.Run("max pages zero writes an empty policy", func(t *testing.T) {
		t.Parallel()

		server := newSiteServer(t)
		cfg := newTestConfig(t, server.URL)
		cfg.MaxPages = 0

		p := DefaultPipeline(cfg, nil, WithPipelineSummaryOutput(nil))
		session := model.NewSession(cfg.StartURL, cfg.MaxPages)
		if err := p.Execute(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if session.PagesAttempted() != 0 || !session.Policy.IsEmpty() {
			t.Errorf("expected no pages and an empty policy, got %d pages", session.PagesAttempted())
		}
	})
}

// TestArtifactStep tests artifact writing failures.
func TestArtifactStep(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	step := NewArtifactStep(file)
	if step.Name() != StepArtifacts {
		t.Errorf("unexpected name %q", step.Name())
	}

	session := model.NewSession("https://example.com/", 1)
	err := step.Do(context.Background(), session)
	if !errors.Is(err, report.ErrArtifactWrite) {
		t.Errorf("expected ErrArtifactWrite, got %v", err)
	}
	if len(session.Artifacts) != 0 {
		t.Errorf("expected no artifacts, got %v", session.Artifacts)
	}
}

// TestHistoryStep tests that history failures never fail the run.
func TestHistoryStep(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	step := NewHistoryStep(file, nil)
	if err := step.Do(context.Background(), model.NewSession("https://example.com/", 1)); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

// TestSummaryStep tests the summary output.
func TestSummaryStep(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	session := model.NewSession("https://example.com/", 3)
	session.Policy.Add(model.FontSrc, "fonts.gstatic.com")

	if err := NewSummaryStep(&buf, false).Do(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "font-src: fonts.gstatic.com") {
		t.Errorf("unexpected summary %q", buf.String())
	}
}
