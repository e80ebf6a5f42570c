package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/nao1215/cspgen/internal/config"
	"github.com/nao1215/cspgen/internal/crawler"
	"github.com/nao1215/cspgen/internal/csp"
	"github.com/nao1215/cspgen/internal/database"
	"github.com/nao1215/cspgen/internal/model"
	"github.com/nao1215/cspgen/internal/report"
)

// Step names recorded in model.Session.PerformedSteps.
const (
	StepCrawl     = "crawl"
	StepArtifacts = "artifacts"
	StepHistory   = "history"
	StepSummary   = "summary"
)

// CrawlStep crawls the site and fills the session policy.
//
// Design decision: The crawl can run on its own context. An interrupt then
// stops only the crawl, and the steps after it still write the policy
// collected so far.
type CrawlStep struct {
	// spider performs the crawl.
	spider *crawler.Spider

	// crawlCtx replaces the pipeline context for the crawl when set.
	crawlCtx context.Context //nolint:containedctx // crawl-scoped cancellation
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlContext runs the crawl on ctx instead of the pipeline context.
func WithCrawlContext(ctx context.Context) CrawlStepOption {
	return func(s *CrawlStep) {
		s.crawlCtx = ctx
	}
}

// NewCrawlStep creates a new crawl step.
func NewCrawlStep(spider *crawler.Spider, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{spider: spider}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return StepCrawl
}

// Do executes the crawl. An unreachable start URL is returned as an error;
// every other page failure is recorded in the session.
func (s *CrawlStep) Do(ctx context.Context, session *model.Session) error {
	if s.crawlCtx != nil {
		ctx = s.crawlCtx
	}
	return s.spider.CrawlInto(ctx, session)
}

// ArtifactStep writes csp_policy.json, web.config and optionally the
// markdown report into the output directory.
type ArtifactStep struct {
	// outputDir receives the artifacts.
	outputDir string

	// options selects the optional artifacts.
	options report.ArtifactOptions

	// logger for structured logging.
	logger *slog.Logger
}

// ArtifactStepOption configures an ArtifactStep.
type ArtifactStepOption func(*ArtifactStep)

// WithMarkdownReport enables the markdown report.
func WithMarkdownReport(enabled bool) ArtifactStepOption {
	return func(s *ArtifactStep) {
		s.options.Markdown = enabled
	}
}

// WithArtifactLogger sets a custom logger for the artifact step.
func WithArtifactLogger(logger *slog.Logger) ArtifactStepOption {
	return func(s *ArtifactStep) {
		s.logger = logger
	}
}

// NewArtifactStep creates a step writing into outputDir.
func NewArtifactStep(outputDir string, opts ...ArtifactStepOption) *ArtifactStep {
	s := &ArtifactStep{
		outputDir: outputDir,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ArtifactStep) Name() string {
	return StepArtifacts
}

// Do writes the artifacts. Paths written are recorded in the session even
// when another artifact failed.
func (s *ArtifactStep) Do(_ context.Context, session *model.Session) error {
	paths, err := report.WriteArtifacts(s.outputDir, session, s.options)
	session.Artifacts = append(session.Artifacts, paths...)
	for _, p := range paths {
		s.logger.Info("artifact written", "path", p)
	}
	return err
}

// HistoryStep records the session in the history database.
// A history failure is logged and never fails the run, because the
// artifacts are already written when this step runs.
type HistoryStep struct {
	// dbDir is the database directory.
	dbDir string

	// logger for structured logging.
	logger *slog.Logger
}

// NewHistoryStep creates a step saving runs into the database in dbDir.
func NewHistoryStep(dbDir string, logger *slog.Logger) *HistoryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStep{dbDir: dbDir, logger: logger}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return StepHistory
}

// Do saves the session.
func (s *HistoryStep) Do(ctx context.Context, session *model.Session) error {
	db, err := database.Open(s.dbDir, database.DefaultOptions())
	if err != nil {
		s.logger.Warn("history not saved", "dir", s.dbDir, "error", err)
		return nil
	}
	defer db.Close()

	id, err := db.SaveSession(ctx, session)
	if err != nil {
		s.logger.Warn("history not saved", "path", db.Path(), "error", err)
		return nil
	}

	s.logger.Info("run saved", "id", id, "path", db.Path())
	return nil
}

// SummaryStep prints the text summary of the session.
type SummaryStep struct {
	writer *report.SimpleWriter
}

// NewSummaryStep creates a step printing to out.
func NewSummaryStep(out io.Writer, verbose bool) *SummaryStep {
	return &SummaryStep{writer: report.NewSimpleWriter(out, report.WithVerbose(verbose))}
}

// Name returns the step name.
func (s *SummaryStep) Name() string {
	return StepSummary
}

// Do prints the summary.
func (s *SummaryStep) Do(_ context.Context, session *model.Session) error {
	if _, err := s.writer.Write(session); err != nil {
		return fmt.Errorf("failed to print summary: %w", err)
	}
	return nil
}

// DefaultPipelineConfig holds runtime dependencies of the default pipeline
// that do not belong in config.Config.
type DefaultPipelineConfig struct {
	// CrawlContext, when set, is the context the crawl runs on.
	CrawlContext context.Context //nolint:containedctx // crawl-scoped cancellation

	// SummaryOutput receives the text summary. Nil disables the summary.
	SummaryOutput io.Writer

	// HTTPClient is used for page fetches. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineCrawlContext sets the context the crawl runs on.
func WithPipelineCrawlContext(ctx context.Context) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.CrawlContext = ctx
	}
}

// WithPipelineSummaryOutput sets where the summary is printed.
func WithPipelineSummaryOutput(w io.Writer) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.SummaryOutput = w
	}
}

// WithPipelineHTTPClient sets the HTTP client used for page fetches.
func WithPipelineHTTPClient(client *http.Client) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.HTTPClient = client
	}
}

// DefaultPipeline creates the standard cspgen pipeline from cfg:
// crawl, artifacts, history (when cfg.SaveToDB) and summary.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts runtime options (WithPipelineCrawlContext, etc).
func DefaultPipeline(cfg *config.Config, pipelineOpts []Option, opts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)
	logger := p.Logger()

	rt := &DefaultPipelineConfig{SummaryOutput: os.Stdout}
	for _, opt := range opts {
		opt(rt)
	}

	fetcher := crawler.NewHTTPFetcher(rt.HTTPClient,
		crawler.WithTimeout(cfg.Timeout),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithHeaders(cfg.Headers),
		crawler.WithCookie(cfg.Cookie),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
	)

	spider := crawler.NewSpider(fetcher,
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithDelay(cfg.CrawlDelay),
		crawler.WithIgnorePatterns(cfg.IgnorePatterns),
		crawler.WithFollowPatterns(cfg.FollowPatterns),
		crawler.WithExcludedOrigins(cfg.ExcludeOrigins),
		crawler.WithNormalizerOptions(
			csp.WithSchemeTokens(cfg.TokenScheme),
			csp.WithCollapsedSubdomains(cfg.CollapseSubdomains),
		),
		crawler.WithLogger(logger),
	)

	var crawlOpts []CrawlStepOption
	if rt.CrawlContext != nil {
		crawlOpts = append(crawlOpts, WithCrawlContext(rt.CrawlContext))
	}

	p.AddSteps(
		NewCrawlStep(spider, crawlOpts...),
		NewArtifactStep(cfg.OutputDir,
			WithMarkdownReport(cfg.MarkdownReport),
			WithArtifactLogger(logger),
		),
	)
	if cfg.SaveToDB {
		p.AddStep(NewHistoryStep(cfg.DBDir, logger))
	}
	if rt.SummaryOutput != nil {
		p.AddStep(NewSummaryStep(rt.SummaryOutput, cfg.Verbose))
	}

	return p
}
