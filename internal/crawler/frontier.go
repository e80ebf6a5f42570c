package crawler

import (
	"net/url"
	"strings"
)

// FrontierEntry is a page URL waiting to be visited.
type FrontierEntry struct {
	// URL is the normalized page URL.
	URL string

	// Depth is the number of link hops from the start URL.
	Depth int
}

// Frontier is the FIFO queue of a breadth-first crawl.
//
// A URL is accepted at most once: after it has been queued or visited,
// Push reports false. URLs are compared after normalizeURL.
type Frontier struct {
	queue   []FrontierEntry
	queued  map[string]struct{}
	visited map[string]struct{}
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{
		queue:   make([]FrontierEntry, 0),
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// Push enqueues rawURL at depth. It reports whether the URL was added.
func (f *Frontier) Push(rawURL string, depth int) bool {
	key := normalizeURL(rawURL)
	if _, ok := f.visited[key]; ok {
		return false
	}
	if _, ok := f.queued[key]; ok {
		return false
	}
	f.queued[key] = struct{}{}
	f.queue = append(f.queue, FrontierEntry{URL: key, Depth: depth})
	return true
}

// Pop dequeues the oldest entry and marks it visited.
func (f *Frontier) Pop() (FrontierEntry, bool) {
	if len(f.queue) == 0 {
		return FrontierEntry{}, false
	}
	entry := f.queue[0]
	f.queue = f.queue[1:]
	delete(f.queued, entry.URL)
	f.visited[entry.URL] = struct{}{}
	return entry, true
}

// MarkVisited records rawURL as visited without queueing it.
// The crawler uses it for the final URL of a redirected page.
func (f *Frontier) MarkVisited(rawURL string) {
	key := normalizeURL(rawURL)
	f.visited[key] = struct{}{}
}

// IsVisited reports whether rawURL has been visited.
func (f *Frontier) IsVisited(rawURL string) bool {
	_, ok := f.visited[normalizeURL(rawURL)]
	return ok
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	return len(f.queue)
}

// VisitedCount returns the number of visited URLs.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// normalizeURL normalizes a page URL for deduplication: the fragment is
// dropped, scheme and host are lowercased, a default port is removed and
// an empty path becomes "/".
func normalizeURL(pageURL string) string {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return pageURL
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	switch {
	case u.Scheme == "http" && u.Port() == "80",
		u.Scheme == "https" && u.Port() == "443":
		host := u.Hostname()
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		u.Host = host
	}

	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}
