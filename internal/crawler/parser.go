package crawler

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/cspgen/internal/model"
)

// nonLoadingRels are link relations that never make the browser load the
// target, so they produce no resource reference.
var nonLoadingRels = map[string]bool{
	"alternate":    true,
	"author":       true,
	"bookmark":     true,
	"canonical":    true,
	"dns-prefetch": true,
	"edituri":      true,
	"external":     true,
	"help":         true,
	"license":      true,
	"me":           true,
	"next":         true,
	"nofollow":     true,
	"noopener":     true,
	"noreferrer":   true,
	"pingback":     true,
	"prev":         true,
	"search":       true,
	"shortlink":    true,
	"tag":          true,
	"wlwmanifest":  true,
}

// Parser extracts resource references and hyperlinks from HTML.
//
// The parser is built on golang.org/x/net/html, which tolerates the
// malformed markup found on real sites.
type Parser struct {
	// pageURL is the URL the document was served from.
	pageURL *url.URL
}

// ParseResult contains everything extracted from one document.
type ParseResult struct {
	// Base is the URL references resolve against: the <base href> when
	// present, otherwise the page URL.
	Base *url.URL

	// References lists every resource URL with its element context,
	// in document order. URLs are raw attribute values.
	References []model.Reference

	// Links are the resolved targets of <a> and <area> hyperlinks.
	Links []string
}

// NewParser creates a parser for a document served from pageURL.
func NewParser(pageURL string) (*Parser, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid page URL %q: %w", ErrPageParse, pageURL, err)
	}
	return &Parser{pageURL: u}, nil
}

// Parse reads an HTML document and extracts its references and links.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPageParse, err)
	}

	result := &ParseResult{
		Base:       p.pageURL,
		References: make([]model.Reference, 0),
		Links:      make([]string, 0),
	}
	hrefs := make([]string, 0)
	baseSet := false

	var walk func(n *html.Node, parent string)
	walk = func(n *html.Node, parent string) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			switch tag {
			case "base":
				if href := strings.TrimSpace(getAttr(n, "href")); href != "" && !baseSet {
					if u, err := url.Parse(href); err == nil {
						result.Base = p.pageURL.ResolveReference(u)
						baseSet = true
					}
				}
			case "a", "area":
				if href := getAttr(n, "href"); href != "" {
					hrefs = append(hrefs, href)
				}
			case "style":
				p.addCSS(result, textContent(n))
			default:
				p.processElement(result, n, tag, parent)
			}

			if style := getAttr(n, "style"); style != "" {
				p.addCSS(result, style)
			}
			parent = tag
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, parent)
		}
	}
	walk(doc, "")

	for _, href := range hrefs {
		if resolved := resolveURL(result.Base, href); resolved != "" {
			result.Links = append(result.Links, resolved)
		}
	}

	return result, nil
}

// processElement records the resource references of one element.
func (p *Parser) processElement(result *ParseResult, n *html.Node, tag, parent string) {
	switch tag {
	case "script":
		typ := getAttr(n, "type")
		if src := getAttr(n, "src"); src != "" {
			p.add(result, src, model.ElementContext{Tag: tag, Attr: "src", Type: typ})
			return
		}
		if isJavaScriptType(typ) {
			for _, endpoint := range ExtractScriptEndpoints(textContent(n)) {
				p.add(result, endpoint, model.ElementContext{Tag: scriptTagFetch, Parent: tag})
			}
		}

	case "link":
		href := getAttr(n, "href")
		rel := getAttr(n, "rel")
		if href == "" || !loadsResource(rel) {
			return
		}
		p.add(result, href, model.ElementContext{
			Tag:  tag,
			Attr: "href",
			Rel:  rel,
			As:   getAttr(n, "as"),
			Type: getAttr(n, "type"),
		})

	case "img", "source":
		p.addAttr(result, n, tag, "src", parent)
		for _, candidate := range parseSrcset(getAttr(n, "srcset")) {
			p.add(result, candidate, model.ElementContext{Tag: tag, Attr: "srcset", Parent: parent})
		}

	case "video":
		p.addAttr(result, n, tag, "src", parent)
		p.addAttr(result, n, tag, "poster", parent)

	case "audio", "track", "embed", "iframe", "frame":
		p.addAttr(result, n, tag, "src", parent)

	case "object":
		p.addAttr(result, n, tag, "data", parent)

	case "input":
		if src := getAttr(n, "src"); src != "" {
			p.add(result, src, model.ElementContext{Tag: tag, Attr: "src", Type: getAttr(n, "type"), Parent: parent})
		}

	case "form":
		p.addAttr(result, n, tag, "action", parent)
	}
}

// addAttr records the value of attr when present.
func (p *Parser) addAttr(result *ParseResult, n *html.Node, tag, attr, parent string) {
	if v := getAttr(n, attr); v != "" {
		p.add(result, v, model.ElementContext{Tag: tag, Attr: attr, Parent: parent})
	}
}

// addCSS records the references of a stylesheet body.
func (p *Parser) addCSS(result *ParseResult, css string) {
	for _, ref := range ExtractCSSReferences(css) {
		p.add(result, ref.URL, model.ElementContext{Tag: ref.Tag, Attr: "url"})
	}
}

// add appends one reference.
func (p *Parser) add(result *ParseResult, raw string, ctx model.ElementContext) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	result.References = append(result.References, model.Reference{
		URL:     raw,
		Context: ctx,
		PageURL: p.pageURL.String(),
	})
}

// loadsResource reports whether a link with the given rel loads its target.
// A link is skipped only when every rel token is a non-loading relation.
func loadsResource(rel string) bool {
	tokens := strings.Fields(strings.ToLower(rel))
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if !nonLoadingRels[t] {
			return true
		}
	}
	return false
}

// isJavaScriptType reports whether a script type attribute denotes code.
func isJavaScriptType(typ string) bool {
	t := strings.ToLower(strings.TrimSpace(typ))
	return t == "" || t == "module" || strings.Contains(t, "javascript") || strings.Contains(t, "ecmascript")
}

// resolveURL resolves a hyperlink against base. Links that do not lead to
// a page (javascript:, mailto:, tel:, data:, bare fragments) resolve to "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// textContent returns the concatenated text of n's child text nodes.
func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
