// Package crawler walks a website and collects the resources its pages load.
//
// # Architecture
//
// The Spider coordinates a breadth-first crawl bounded by a page budget.
// Each frontier entry is fetched by a Fetcher, parsed by a Parser and its
// resource references are handed to the csp package for classification,
// normalization and aggregation.
//
// Design decision: We implement our own crawler rather than using a third-party
// library because:
//  1. The page budget must count every fetch attempt, including failures
//  2. We need the element context of each URL, not just the URL
//  3. Crawl state must stay inspectable for tests and the history store
//
// # Components
//
//   - Spider: The crawl loop, owning no state between runs
//   - Fetcher / HTTPFetcher: One GET per page with timeout, size limit and
//     charset decoding
//   - Parser: HTML parser that extracts resource references and hyperlinks
//   - Frontier: FIFO queue with visited/queued deduplication
//   - ExtractCSSReferences, ExtractScriptEndpoints: text scanners for inline
//     styles and scripts
//
// # Politeness
//
//   - One request at a time
//   - Delay between requests (configurable)
//   - Depth limit and ignore/follow path patterns
//   - Links to non-page assets are never enqueued
//
// # Usage
//
//	fetcher := crawler.NewHTTPFetcher(nil, crawler.WithTimeout(15*time.Second))
//	spider := crawler.NewSpider(fetcher, crawler.WithMaxPages(25))
//	session, err := spider.Crawl(ctx, "https://example.com")
//
// # Failure handling
//
// A failure on the start page aborts the crawl with ErrStartURLUnreachable.
// Any later page that fails to fetch or parse is recorded in the session and
// the crawl continues with the rest of the frontier.
package crawler
