package crawler

import (
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/nao1215/cspgen/internal/model"
)

// refsByTag groups reference URLs by "tag.attr".
func refsByTag(refs []model.Reference) map[string][]string {
	out := make(map[string][]string)
	for _, r := range refs {
		key := r.Context.Tag + "." + r.Context.Attr
		out[key] = append(out[key], r.URL)
	}
	return out
}

// TestParser tests HTML parsing functionality.
func TestParser(t *testing.T) {
	t.Parallel()

	t.Run("extracts resource references with context", func(t *testing.T) {
		t.Parallel()

		html := `<html><head>
			<link rel="stylesheet" href="/css/site.css">
			<link rel="icon" href="https://img.example.net/favicon.ico">
			<link rel="preload" as="font" href="https://fonts.example.net/a.woff2" type="font/woff2">
			<link rel="canonical" href="https://example.com/page">
			<link rel="preconnect" href="https://fonts.example.net">
			<script src="https://cdn.example.net/a.js"></script>
		</head><body>
			<img src="/logo.png" srcset="/logo-2x.png 2x, https://img.example.net/logo-3x.png 3x">
			<picture><source srcset="https://img.example.net/hero.webp"></picture>
			<video poster="https://img.example.net/poster.jpg" src="https://media.example.net/v.mp4"></video>
			<iframe src="https://www.youtube.com/embed/x"></iframe>
			<form action="https://api.example.net/subscribe"></form>
			<input type="image" src="/submit.png">
		</body></html>`

		parser, err := NewParser("https://example.com/page")
		if err != nil {
			t.Fatalf("failed to create parser: %v", err)
		}
		result, err := parser.Parse(strings.NewReader(html))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		got := refsByTag(result.References)
		want := map[string][]string{
			"link.href":     {"/css/site.css", "https://img.example.net/favicon.ico", "https://fonts.example.net/a.woff2", "https://fonts.example.net"},
			"script.src":    {"https://cdn.example.net/a.js"},
			"img.src":       {"/logo.png"},
			"img.srcset":    {"/logo-2x.png", "https://img.example.net/logo-3x.png"},
			"source.srcset": {"https://img.example.net/hero.webp"},
			"video.src":     {"https://media.example.net/v.mp4"},
			"video.poster":  {"https://img.example.net/poster.jpg"},
			"iframe.src":    {"https://www.youtube.com/embed/x"},
			"form.action":   {"https://api.example.net/subscribe"},
			"input.src":     {"/submit.png"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("unexpected references:\ngot  %v\nwant %v", got, want)
		}

		for _, r := range result.References {
			if r.PageURL != "https://example.com/page" {
				t.Errorf("unexpected page URL %q", r.PageURL)
			}
			if r.Context.Tag == "source" && r.Context.Parent != "picture" {
				t.Errorf("expected picture parent, got %q", r.Context.Parent)
			}
			if r.Context.Tag == "input" && r.Context.Type != "image" {
				t.Errorf("expected image input type, got %q", r.Context.Type)
			}
		}
	})

	t.Run("extracts inline css and script endpoints", func(t *testing.T) {
		t.Parallel()

		html := `<html><head>
			<style>
				@import url("https://fonts.example.net/css?family=Roboto");
				@font-face { font-family: X; src: url(/fonts/x.woff2) format("woff2"); }
				body { background: url('https://img.example.net/bg.png'); }
			</style>
			<script>fetch("https://api.example.net/v1/items").then(r => r.json());</script>
			<script type="application/ld+json">{"url": "fetch('https://ignored.example.net')"}</script>
		</head><body>
			<div style="background-image: url(https://img.example.net/inline.png)"></div>
		</body></html>`

		parser, err := NewParser("https://example.com/")
		if err != nil {
			t.Fatalf("failed to create parser: %v", err)
		}
		result, err := parser.Parse(strings.NewReader(html))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		got := refsByTag(result.References)
		want := map[string][]string{
			"@font-face.url": {"/fonts/x.woff2"},
			"@import.url":    {"https://fonts.example.net/css?family=Roboto"},
			"css.url":        {"https://img.example.net/bg.png", "https://img.example.net/inline.png"},
			"fetch.":         {"https://api.example.net/v1/items"},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("unexpected references:\ngot  %v\nwant %v", got, want)
		}
	})

	t.Run("resolves links against base element", func(t *testing.T) {
		t.Parallel()

		html := `<html><head><base href="https://example.com/docs/"></head><body>
			<a href="intro">Intro</a>
			<a href="/about#team">About</a>
			<a href="https://other.example.org/">Other</a>
			<area href="map.html">
			<a href="mailto:a@example.com">Mail</a>
			<a href="javascript:void(0)">JS</a>
			<a href="#top">Top</a>
		</body></html>`

		parser, err := NewParser("https://example.com/index.html")
		if err != nil {
			t.Fatalf("failed to create parser: %v", err)
		}
		result, err := parser.Parse(strings.NewReader(html))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		if result.Base.String() != "https://example.com/docs/" {
			t.Errorf("unexpected base %q", result.Base)
		}
		want := []string{
			"https://example.com/docs/intro",
			"https://example.com/about#team",
			"https://other.example.org/",
			"https://example.com/docs/map.html",
		}
		if !reflect.DeepEqual(result.Links, want) {
			t.Errorf("expected links %v, got %v", want, result.Links)
		}
	})

	t.Run("returns error for invalid page URL", func(t *testing.T) {
		t.Parallel()

		if _, err := NewParser("://invalid"); !errors.Is(err, ErrPageParse) {
			t.Errorf("expected ErrPageParse, got %v", err)
		}
	})
}

// TestExtractCSSReferences tests stylesheet scanning.
func TestExtractCSSReferences(t *testing.T) {
	t.Parallel()

	css := `
		/* url(commented.png) */
		@import "theme.css";
		@import url(print.css) print;
		@font-face {
			font-family: "Inter";
			src: url("https://fonts.example.net/inter.woff2") format("woff2"),
			     url(https://fonts.example.net/inter.woff) format("woff");
		}
		.hero { background: url( "/img/hero.jpg" ) no-repeat; }
		.empty { background: url(); }
	`

	got := ExtractCSSReferences(css)
	want := []CSSReference{
		{URL: "https://fonts.example.net/inter.woff2", Tag: "@font-face"},
		{URL: "https://fonts.example.net/inter.woff", Tag: "@font-face"},
		{URL: "theme.css", Tag: "@import"},
		{URL: "print.css", Tag: "@import"},
		{URL: "/img/hero.jpg", Tag: "css"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected references:\ngot  %v\nwant %v", got, want)
	}
}

// TestExtractScriptEndpoints tests inline script scanning.
func TestExtractScriptEndpoints(t *testing.T) {
	t.Parallel()

	script := `
		fetch('/api/items');
		fetch("https://api.example.net/items");
		const xhr = new XMLHttpRequest();
		xhr.open("POST", "https://collect.example.net/e");
		const ws = new WebSocket('wss://live.example.net/socket');
		const es = new EventSource("/events");
		navigator.sendBeacon("https://beacon.example.net/b", data);
		fetch(` + "`https://${host}/dynamic`" + `);
		fetch("https://api.example.net/items");
	`

	got := ExtractScriptEndpoints(script)
	want := []string{
		"/api/items",
		"https://api.example.net/items",
		"https://collect.example.net/e",
		"wss://live.example.net/socket",
		"/events",
		"https://beacon.example.net/b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected endpoints:\ngot  %v\nwant %v", got, want)
	}
}

// TestParseSrcset tests srcset candidate parsing.
func TestParseSrcset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		srcset string
		want   []string
	}{
		{name: "empty", srcset: "", want: []string{}},
		{name: "single", srcset: "a.png", want: []string{"a.png"}},
		{name: "descriptors", srcset: "a.png 1x, b.png 2x", want: []string{"a.png", "b.png"}},
		{name: "no spaces", srcset: "a.png,b.png", want: []string{"a.png,b.png"}},
		{name: "trailing comma", srcset: "a.png, b.png", want: []string{"a.png", "b.png"}},
		{name: "width descriptors", srcset: "small.jpg 480w,\n large.jpg 1080w", want: []string{"small.jpg", "large.jpg"}},
		{name: "data uri keeps commas", srcset: "data:image/png;base64,AAAA 1x, b.png 2x", want: []string{"data:image/png;base64,AAAA", "b.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := parseSrcset(tt.srcset); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseSrcset(%q) = %v, want %v", tt.srcset, got, tt.want)
			}
		})
	}
}

// TestFrontier tests queue order and deduplication.
func TestFrontier(t *testing.T) {
	t.Parallel()

	t.Run("FIFO order", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		f.Push("https://example.com/a", 1)
		f.Push("https://example.com/b", 1)
		f.Push("https://example.com/c", 2)

		for _, want := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
			entry, ok := f.Pop()
			if !ok || entry.URL != want {
				t.Errorf("expected %q, got %q (ok=%v)", want, entry.URL, ok)
			}
		}
		if _, ok := f.Pop(); ok {
			t.Error("expected empty frontier")
		}
	})

	t.Run("never accepts a queued or visited URL", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		if !f.Push("https://example.com/a", 0) {
			t.Fatal("expected first push to succeed")
		}
		if f.Push("https://EXAMPLE.com/a#section", 1) {
			t.Error("expected duplicate queued URL to be rejected")
		}

		f.Pop()
		if f.Push("https://example.com:443/a", 1) {
			t.Error("expected visited URL to be rejected")
		}
		if !f.IsVisited("https://example.com/a") {
			t.Error("expected URL to be visited")
		}

		f.MarkVisited("https://example.com/redirected")
		if f.Push("https://example.com/redirected", 1) {
			t.Error("expected URL marked visited to be rejected")
		}
		if f.VisitedCount() != 2 {
			t.Errorf("expected 2 visited, got %d", f.VisitedCount())
		}
	})
}

// TestNormalizeURL tests URL normalization.
func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"removes fragment", "https://example.com/page#section", "https://example.com/page"},
		{"lowercase scheme", "HTTPS://example.com/page", "https://example.com/page"},
		{"lowercase host", "https://EXAMPLE.COM/page", "https://example.com/page"},
		{"empty path becomes root", "https://example.com", "https://example.com/"},
		{"drops default port", "http://example.com:80/page", "http://example.com/page"},
		{"keeps other port", "http://example.com:8080/page", "http://example.com:8080/page"},
		{"preserves query", "https://example.com/search?q=test", "https://example.com/search?q=test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := normalizeURL(tt.input); got != tt.expected {
				t.Errorf("normalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestMatchPattern tests glob pattern matching.
func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/admin/*", "/admin/dashboard", true},
		{"/admin/*", "/admin/users/1", true},
		{"/admin/*", "/admin", true},
		{"/admin/*", "/administrator", false},
		{"*.pdf", "/docs/file.pdf", true},
		{"*.pdf", "/docs/file.html", false},
		{"/api/v?", "/api/v1", true},
		{"/logout*", "/logout-now", true},
		{"[", "/anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

// TestShouldCrawl tests ignore/follow filtering and asset detection.
func TestShouldCrawl(t *testing.T) {
	t.Parallel()

	parse := func(raw string) *url.URL {
		u, _ := url.Parse(raw)
		return u
	}

	t.Run("no patterns allows all", func(t *testing.T) {
		t.Parallel()

		if !shouldCrawl(parse("https://example.com/anything"), nil, nil) {
			t.Error("expected URL to be crawled")
		}
	})

	t.Run("ignore takes precedence over follow", func(t *testing.T) {
		t.Parallel()

		ignore := []string{"/blog/drafts/*"}
		follow := []string{"/blog/*"}
		if shouldCrawl(parse("https://example.com/blog/drafts/x"), ignore, follow) {
			t.Error("expected ignored URL to be skipped")
		}
		if !shouldCrawl(parse("https://example.com/blog/post"), ignore, follow) {
			t.Error("expected followed URL to be crawled")
		}
		if shouldCrawl(parse("https://example.com/shop"), ignore, follow) {
			t.Error("expected URL outside follow patterns to be skipped")
		}
	})

	t.Run("empty path treated as root", func(t *testing.T) {
		t.Parallel()

		if !shouldCrawl(parse("https://example.com"), nil, []string{"/"}) {
			t.Error("expected root to match")
		}
	})

	t.Run("assets", func(t *testing.T) {
		t.Parallel()

		if !isAsset(parse("https://example.com/report.PDF")) {
			t.Error("expected pdf to be an asset")
		}
		if isAsset(parse("https://example.com/about")) || isAsset(parse("https://example.com/index.html")) {
			t.Error("expected pages not to be assets")
		}
	})
}
