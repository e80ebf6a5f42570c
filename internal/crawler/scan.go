package crawler

import (
	"regexp"
	"strings"
)

// CSS pseudo tags used in element contexts.
const (
	cssTagFontFace = "@font-face"
	cssTagImport   = "@import"
	cssTagURL      = "css"
	scriptTagFetch = "fetch"
)

// CSSReference is a URL found in a stylesheet body.
type CSSReference struct {
	// URL is the raw reference.
	URL string

	// Tag is one of "@font-face", "@import" or "css".
	Tag string
}

var (
	cssCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	cssFontFaceRegex = regexp.MustCompile(`(?is)@font-face\s*\{[^}]*\}`)
	cssImportRegex   = regexp.MustCompile(`(?i)@import\s+(?:url\(\s*)?(?:"([^"]*)"|'([^']*)'|([^\s"');]+))`)
	cssURLRegex      = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)\s]*))\s*\)`)
)

// ExtractCSSReferences finds the URLs a stylesheet loads.
// url() inside @font-face blocks is tagged "@font-face", @import targets
// are tagged "@import" and any other url() is tagged "css".
func ExtractCSSReferences(css string) []CSSReference {
	refs := make([]CSSReference, 0)
	css = cssCommentRegex.ReplaceAllString(css, " ")

	for _, block := range cssFontFaceRegex.FindAllString(css, -1) {
		for _, m := range cssURLRegex.FindAllStringSubmatch(block, -1) {
			if u := firstGroup(m); u != "" {
				refs = append(refs, CSSReference{URL: u, Tag: cssTagFontFace})
			}
		}
	}
	css = cssFontFaceRegex.ReplaceAllString(css, " ")

	for _, m := range cssImportRegex.FindAllStringSubmatch(css, -1) {
		if u := firstGroup(m); u != "" {
			refs = append(refs, CSSReference{URL: u, Tag: cssTagImport})
		}
	}
	css = cssImportRegex.ReplaceAllString(css, " ")

	for _, m := range cssURLRegex.FindAllStringSubmatch(css, -1) {
		if u := firstGroup(m); u != "" {
			refs = append(refs, CSSReference{URL: u, Tag: cssTagURL})
		}
	}

	return refs
}

// scriptEndpointRegexes match network calls with a literal URL argument:
// fetch(), XMLHttpRequest.open(), WebSocket, EventSource and sendBeacon.
var scriptEndpointRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\bfetch\(\s*["'` + "`" + `]([^"'` + "`" + `\s]+)["'` + "`" + `]`),
	regexp.MustCompile(`\.open\(\s*["'][A-Za-z]+["']\s*,\s*["'` + "`" + `]([^"'` + "`" + `\s]+)["'` + "`" + `]`),
	regexp.MustCompile(`\bnew\s+(?:WebSocket|EventSource)\(\s*["'` + "`" + `]([^"'` + "`" + `\s]+)["'` + "`" + `]`),
	regexp.MustCompile(`\bsendBeacon\(\s*["'` + "`" + `]([^"'` + "`" + `\s]+)["'` + "`" + `]`),
}

// ExtractScriptEndpoints finds statically discoverable endpoint URLs in an
// inline script. Template literals with substitutions are ignored.
func ExtractScriptEndpoints(script string) []string {
	endpoints := make([]string, 0)
	seen := make(map[string]bool)
	for _, re := range scriptEndpointRegexes {
		for _, m := range re.FindAllStringSubmatch(script, -1) {
			u := m[1]
			if strings.Contains(u, "${") || seen[u] {
				continue
			}
			seen[u] = true
			endpoints = append(endpoints, u)
		}
	}
	return endpoints
}

// parseSrcset returns the candidate URLs of a srcset attribute.
// A candidate URL runs until whitespace, so data URIs containing commas
// stay intact; descriptors after the URL are skipped.
func parseSrcset(srcset string) []string {
	urls := make([]string, 0)
	s := srcset
	for {
		s = strings.TrimLeft(s, " \t\n\r\f,")
		if s == "" {
			return urls
		}

		end := strings.IndexAny(s, " \t\n\r\f")
		if end < 0 {
			end = len(s)
		}
		candidate := s[:end]
		s = s[end:]

		if strings.HasSuffix(candidate, ",") {
			candidate = strings.TrimRight(candidate, ",")
		} else if comma := strings.IndexByte(s, ','); comma >= 0 {
			s = s[comma+1:]
		} else {
			s = ""
		}

		if candidate != "" {
			urls = append(urls, candidate)
		}
	}
}

// firstGroup returns the first non-empty submatch group.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g = strings.TrimSpace(g); g != "" {
			return g
		}
	}
	return ""
}
