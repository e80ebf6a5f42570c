package model

import (
	"time"
)

// PageStatus is the outcome of processing one frontier entry.
type PageStatus string

const (
	// PageStatusOK means the page was fetched and parsed.
	PageStatusOK PageStatus = "ok"

	// PageStatusFetchFailed means the fetch failed (network error, timeout,
	// or HTTP error status). The page contributes no references.
	PageStatusFetchFailed PageStatus = "fetch_failed"

	// PageStatusParseFailed means the body could not be parsed.
	// The page contributes no references.
	PageStatusParseFailed PageStatus = "parse_failed"

	// PageStatusSkipped means the response was not HTML.
	PageStatusSkipped PageStatus = "skipped"
)

// PageResult records what happened to a single crawled URL.
type PageResult struct {
	// URL is the frontier URL that was attempted.
	URL string `json:"url"`

	// Depth is the BFS depth of the entry.
	Depth int `json:"depth"`

	// Status is the processing outcome.
	Status PageStatus `json:"status"`

	// StatusCode is the HTTP status code, 0 when no response was received.
	StatusCode int `json:"status_code,omitempty"`

	// References is the number of resource references extracted.
	References int `json:"references"`

	// Links is the number of same-origin links newly enqueued.
	Links int `json:"links"`

	// Error holds the failure message for failed pages.
	Error string `json:"error,omitempty"`
}

// OriginEvidence explains why a token is present in a directive.
type OriginEvidence struct {
	// Directive is the directive the token was recorded for.
	Directive Directive `json:"directive"`

	// Token is the origin token.
	Token string `json:"token"`

	// Count is how many references produced this pair.
	Count int `json:"count"`

	// FirstPage is the page on which the pair was first observed.
	// Empty for the implicit 'self' added when the policy is finalized.
	FirstPage string `json:"first_page,omitempty"`

	// FirstResource is the resolved resource URL first observed.
	FirstResource string `json:"first_resource,omitempty"`
}

// Session is the result of one cspgen run.
//
// Design decision: We keep the session as a plain data structure, like
// a scan report, so that the pipeline steps, the report writers and the
// history store can share it without importing each other.
type Session struct {
	// StartURL is the URL the crawl started from, as given by the user.
	StartURL string `json:"start_url"`

	// OriginHost is the host treated as 'self'. It is the host of the
	// start page after redirects.
	OriginHost string `json:"origin_host"`

	// MaxPages is the page budget of the run.
	MaxPages int `json:"max_pages"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl ended.
	FinishedAt time.Time `json:"finished_at"`

	// Pages lists every fetch attempt in crawl order.
	Pages []PageResult `json:"pages"`

	// Policy is the finalized, frozen policy.
	Policy *Policy `json:"policy"`

	// Evidence lists the observations behind every policy token.
	Evidence []OriginEvidence `json:"evidence,omitempty"`

	// SkippedReferences counts references that could not be resolved
	// or used a non-network scheme.
	SkippedReferences int `json:"skipped_references"`

	// Artifacts lists the files written for this session.
	Artifacts []string `json:"artifacts,omitempty"`

	// Interrupted is true when the crawl was cut short by cancellation.
	Interrupted bool `json:"interrupted,omitempty"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`
}

// NewSession creates an empty session for the given start URL.
func NewSession(startURL string, maxPages int) *Session {
	return &Session{
		StartURL: startURL,
		MaxPages: maxPages,
		Pages:    make([]PageResult, 0),
		Policy:   NewPolicy(),
	}
}

// PagesAttempted returns the number of fetch attempts made.
func (s *Session) PagesAttempted() int {
	return len(s.Pages)
}

// PagesSucceeded returns the number of pages fetched and parsed.
func (s *Session) PagesSucceeded() int {
	n := 0
	for _, p := range s.Pages {
		if p.Status == PageStatusOK {
			n++
		}
	}
	return n
}

// Failures returns the page results that did not succeed.
func (s *Session) Failures() []PageResult {
	out := make([]PageResult, 0)
	for _, p := range s.Pages {
		if p.Status == PageStatusFetchFailed || p.Status == PageStatusParseFailed {
			out = append(out, p)
		}
	}
	return out
}

// Duration returns how long the crawl took.
func (s *Session) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// EvidenceFor returns the evidence entries for a directive in insertion order.
func (s *Session) EvidenceFor(d Directive) []OriginEvidence {
	out := make([]OriginEvidence, 0)
	for _, e := range s.Evidence {
		if e.Directive == d {
			out = append(out, e)
		}
	}
	return out
}
