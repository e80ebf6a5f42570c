package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrStartURLUnreachable is returned when the first page of a crawl
	// cannot be fetched. It aborts the run before any policy is produced.
	ErrStartURLUnreachable = errors.New("start URL is unreachable")

	// ErrInvalidStartURL is returned when the start URL is not an absolute
	// http or https URL.
	ErrInvalidStartURL = errors.New("invalid start URL")

	// ErrPageFetch wraps every per-page fetch failure: network errors,
	// timeouts and non-2xx responses.
	ErrPageFetch = errors.New("page fetch failed")

	// ErrPageParse wraps per-page parse failures.
	ErrPageParse = errors.New("page parse failed")
)

// HTTPStatusError reports a response with a non-2xx status code.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d for %s", e.StatusCode, e.URL)
}
