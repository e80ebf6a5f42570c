package model

import (
	"strings"
)

// Page represents a fetched web page.
// The raw body is kept rather than a parsed tree so the parser can resolve
// against the final URL after redirects. Non-HTML responses are never parsed.
type Page struct {
	// URL is the URL that was requested (after frontier normalization).
	URL string `json:"url"`

	// FinalURL is the URL that produced the response after redirects.
	// Relative references on the page resolve against this URL.
	FinalURL string `json:"final_url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the Content-Type header of the response.
	ContentType string `json:"content_type"`

	// Raw contains the (decoded, size limited) response body.
	Raw []byte `json:"-"`

	// Truncated is true when the body exceeded the fetch size limit and
	// Raw holds only its beginning.
	Truncated bool `json:"truncated,omitempty"`
}

// IsHTML returns true if the page content type indicates HTML.
// An empty content type is treated as HTML because many small servers
// omit the header for static pages.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(strings.TrimSpace(p.ContentType))
	return ct == "" ||
		strings.HasPrefix(ct, "text/html") ||
		strings.HasPrefix(ct, "application/xhtml+xml")
}

// BaseURL returns the URL relative references should resolve against.
func (p *Page) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// ElementContext describes where a URL was found in a document.
// The classifier uses it to pick a directive.
type ElementContext struct {
	// Tag is the lowercase element name ("script", "link", "img").
	// CSS references use the pseudo tags "@font-face", "@import" and "css".
	// Script-discovered endpoints use "fetch".
	Tag string `json:"tag"`

	// Attr is the attribute holding the URL ("src", "href", "srcset").
	Attr string `json:"attr,omitempty"`

	// Rel holds the space separated rel tokens of a <link> element.
	Rel string `json:"rel,omitempty"`

	// As holds the as attribute of preload links.
	As string `json:"as,omitempty"`

	// Type holds the type attribute (for input elements and scripts).
	Type string `json:"type,omitempty"`

	// Parent is the lowercase name of the parent element, if relevant.
	Parent string `json:"parent,omitempty"`
}

// HasRel reports whether the context carries the given rel token.
// rel is a whitespace separated, case-insensitive token list.
func (c ElementContext) HasRel(token string) bool {
	for _, r := range strings.Fields(c.Rel) {
		if strings.EqualFold(r, token) {
			return true
		}
	}
	return false
}

// Reference is one raw resource URL discovered on a page.
type Reference struct {
	// URL is the raw attribute value, not yet resolved.
	URL string `json:"url"`

	// Context is the element context the URL was found in.
	Context ElementContext `json:"context"`

	// PageURL is the page the reference was found on.
	PageURL string `json:"page_url"`
}
