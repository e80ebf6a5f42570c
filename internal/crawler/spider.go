package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/cspgen/internal/csp"
	"github.com/nao1215/cspgen/internal/model"
)

// Spider performs a bounded breadth-first crawl of one site and builds a
// Content-Security-Policy from the resources its pages reference.
//
// A Spider holds configuration only. All crawl state (frontier, visited
// set, working policy) belongs to a single Crawl call, so a Spider can be
// reused.
type Spider struct {
	// fetcher retrieves pages.
	fetcher Fetcher

	// classifier maps element contexts to directives.
	classifier *csp.Classifier

	// maxPages is the fetch attempt budget. Failed fetches count.
	maxPages int

	// maxDepth limits link hops from the start URL.
	// 0 means only the start page.
	maxDepth int

	// delay is the time to wait between requests.
	delay time.Duration

	// ignorePatterns are URL path globs never crawled.
	ignorePatterns []string

	// followPatterns, when set, restrict crawling to matching paths.
	// The start URL is always crawled.
	followPatterns []string

	// normalizerOpts configure origin token derivation.
	normalizerOpts []csp.NormalizerOption

	// excludedOrigins are dropped from the final policy.
	excludedOrigins []string

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages sets the maximum number of fetch attempts.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithDelay sets the delay between requests.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts crawling to URL paths matching at least one
// pattern. An empty slice allows every path.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithNormalizerOptions sets the origin token options.
func WithNormalizerOptions(opts ...csp.NormalizerOption) SpiderOption {
	return func(s *Spider) {
		s.normalizerOpts = opts
	}
}

// WithExcludedOrigins drops the given origins from the final policy.
func WithExcludedOrigins(origins []string) SpiderOption {
	return func(s *Spider) {
		s.excludedOrigins = origins
	}
}

// WithLogger sets the logger used for per-page progress and failures.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider that fetches pages with fetcher.
func NewSpider(fetcher Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:    fetcher,
		classifier: csp.NewClassifier(),
		maxPages:   25,
		maxDepth:   100,
		delay:      500 * time.Millisecond,
		logger:     slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// crawlState is the mutable state of one crawl.
type crawlState struct {
	session    *model.Session
	frontier   *Frontier
	normalizer *csp.Normalizer
	aggregator *csp.Aggregator
}

// Crawl crawls from startURL and returns the finished session.
func (s *Spider) Crawl(ctx context.Context, startURL string) (*model.Session, error) {
	session := model.NewSession(startURL, s.maxPages)
	if err := s.CrawlInto(ctx, session); err != nil {
		return session, err
	}
	return session, nil
}

// CrawlInto crawls from session.StartURL and fills session.
//
// It returns an error wrapping ErrStartURLUnreachable when the first page
// cannot be fetched. Failures on later pages are recorded in
// session.Pages and never abort the crawl. When ctx is cancelled the crawl
// stops, session.Interrupted is set and the policy collected so far is
// finalized; the returned error is nil in that case.
func (s *Spider) CrawlInto(ctx context.Context, session *model.Session) error {
	start, err := ParseStartURL(session.StartURL)
	if err != nil {
		return err
	}

	normalizer, err := csp.NewNormalizer(start.String(), s.normalizerOpts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}

	state := &crawlState{
		session:    session,
		frontier:   NewFrontier(),
		normalizer: normalizer,
		aggregator: csp.NewAggregator(csp.WithExcludedTokens(s.excludedOrigins)),
	}
	session.MaxPages = s.maxPages
	session.OriginHost = normalizer.OriginHost()
	session.StartedAt = time.Now()
	defer func() {
		session.Policy = state.aggregator.Finalize()
		session.Evidence = state.aggregator.Evidence()
		session.FinishedAt = time.Now()
	}()

	state.frontier.Push(start.String(), 0)

	s.logger.Info("crawl started",
		"url", start.String(),
		"max_pages", s.maxPages,
		"max_depth", s.maxDepth,
	)

	for state.frontier.Len() > 0 && session.PagesAttempted() < s.maxPages {
		if ctx.Err() != nil {
			session.Interrupted = true
			break
		}

		entry, _ := state.frontier.Pop()
		result, err := s.processPage(ctx, state, entry)
		session.Pages = append(session.Pages, result)

		if err != nil {
			if ctx.Err() != nil {
				session.Interrupted = true
				break
			}
			if session.PagesAttempted() == 1 && errors.Is(err, ErrPageFetch) {
				return fmt.Errorf("%w: %w", ErrStartURLUnreachable, err)
			}
			s.logger.Warn("page skipped",
				"url", entry.URL,
				"status", string(result.Status),
				"error", err,
			)
		}

		if s.delay > 0 && state.frontier.Len() > 0 && session.PagesAttempted() < s.maxPages {
			select {
			case <-ctx.Done():
				session.Interrupted = true
			case <-time.After(s.delay):
			}
		}
	}

	if session.Interrupted {
		s.logger.Warn("crawl interrupted", "pages_attempted", session.PagesAttempted())
	}

	s.logger.Info("crawl finished",
		"pages_attempted", session.PagesAttempted(),
		"pages_succeeded", session.PagesSucceeded(),
		"queued", state.frontier.Len(),
		"skipped_references", session.SkippedReferences,
	)

	return nil
}

// processPage fetches and parses one frontier entry and feeds its
// references to the aggregator.
func (s *Spider) processPage(ctx context.Context, state *crawlState, entry FrontierEntry) (model.PageResult, error) {
	result := model.PageResult{URL: entry.URL, Depth: entry.Depth}
	isStart := state.session.PagesAttempted() == 0

	page, err := s.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		result.Status = model.PageStatusFetchFailed
		result.Error = err.Error()
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			result.StatusCode = statusErr.StatusCode
		}
		return result, err
	}
	result.StatusCode = page.StatusCode
	state.frontier.MarkVisited(page.BaseURL())

	finalURL, err := url.Parse(page.BaseURL())
	if err != nil {
		result.Status = model.PageStatusParseFailed
		result.Error = err.Error()
		return result, fmt.Errorf("%w: %w", ErrPageParse, err)
	}

	if isStart {
		if !state.normalizer.IsSameOrigin(finalURL) {
			s.logger.Info("start URL redirected, adopting new origin",
				"from", state.normalizer.OriginHost(),
				"to", finalURL.Host,
			)
			if err := state.normalizer.SetOrigin(finalURL.String()); err == nil {
				state.session.OriginHost = state.normalizer.OriginHost()
			}
		}
	} else if !state.normalizer.IsSameOrigin(finalURL) {
		result.Status = model.PageStatusSkipped
		s.logger.Debug("page redirected off origin", "url", entry.URL, "final_url", finalURL.String())
		return result, nil
	}

	if page.Truncated {
		s.logger.Warn("page body exceeds max body size, references past the limit are missed",
			"url", entry.URL,
			"bytes", len(page.Raw),
		)
	}

	if !page.IsHTML() {
		result.Status = model.PageStatusSkipped
		s.logger.Debug("skipping non-HTML page", "url", entry.URL, "content_type", page.ContentType)
		return result, nil
	}

	parser, err := NewParser(page.BaseURL())
	if err != nil {
		result.Status = model.PageStatusParseFailed
		result.Error = err.Error()
		return result, err
	}
	parsed, err := parser.Parse(bytes.NewReader(page.Raw))
	if err != nil {
		result.Status = model.PageStatusParseFailed
		result.Error = err.Error()
		return result, err
	}

	result.Status = model.PageStatusOK
	result.References = s.recordReferences(state, parsed)
	result.Links = s.enqueueLinks(state, parsed, entry.Depth)

	s.logger.Debug("page processed",
		"url", entry.URL,
		"depth", entry.Depth,
		"references", result.References,
		"links", result.Links,
	)

	return result, nil
}

// recordReferences classifies and normalizes every reference of a page.
// It returns the number of references recorded.
func (s *Spider) recordReferences(state *crawlState, parsed *ParseResult) int {
	recorded := 0
	for _, ref := range parsed.References {
		u, err := state.normalizer.Resolve(parsed.Base, ref.URL)
		if err != nil {
			state.session.SkippedReferences++
			if errors.Is(err, csp.ErrSkippedScheme) {
				s.logger.Debug("skipping non-network reference", "page", ref.PageURL, "tag", ref.Context.Tag, "error", err)
			} else {
				s.logger.Warn("skipping unresolvable reference", "page", ref.PageURL, "tag", ref.Context.Tag, "error", err)
			}
			continue
		}

		directive := s.classifier.Classify(ref.Context)
		if ref.Context.Tag == "link" && directive == model.StyleSrc {
			s.logger.Debug("linked stylesheet not fetched", "url", u.String())
		}
		state.aggregator.Observe(directive, state.normalizer.Token(u), ref.PageURL, u.String())
		recorded++
	}
	return recorded
}

// enqueueLinks pushes same-origin page links onto the frontier.
// It returns the number of links newly enqueued.
func (s *Spider) enqueueLinks(state *crawlState, parsed *ParseResult, depth int) int {
	if depth >= s.maxDepth {
		return 0
	}

	added := 0
	for _, link := range parsed.Links {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if !state.normalizer.IsSameOrigin(u) || isAsset(u) {
			continue
		}
		if !shouldCrawl(u, s.ignorePatterns, s.followPatterns) {
			continue
		}
		if state.frontier.Push(link, depth+1) {
			added++
		}
	}
	return added
}

// ParseStartURL validates a start URL. A missing scheme defaults to https.
// The fragment is dropped.
func ParseStartURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidStartURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidStartURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidStartURL, raw)
	}

	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}
