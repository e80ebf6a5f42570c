package csp

import (
	"slices"
	"sort"
	"strings"

	"github.com/nao1215/cspgen/internal/model"
)

// Rule maps an element context to a directive.
// Empty fields are wildcards. Rel and As match when the context carries
// any of the listed values.
type Rule struct {
	Tag       string
	Attr      string
	Rel       []string
	As        []string
	Type      string
	Parent    string
	Directive model.Directive
}

// Matches reports whether the rule applies to c.
func (r Rule) Matches(c model.ElementContext) bool {
	if !strings.EqualFold(r.Tag, c.Tag) {
		return false
	}
	if r.Attr != "" && !strings.EqualFold(r.Attr, c.Attr) {
		return false
	}
	if len(r.Rel) > 0 && !slices.ContainsFunc(r.Rel, c.HasRel) {
		return false
	}
	if len(r.As) > 0 && !slices.ContainsFunc(r.As, func(as string) bool {
		return strings.EqualFold(as, strings.TrimSpace(c.As))
	}) {
		return false
	}
	if r.Type != "" && !strings.EqualFold(r.Type, strings.TrimSpace(c.Type)) {
		return false
	}
	if r.Parent != "" && !strings.EqualFold(r.Parent, c.Parent) {
		return false
	}
	return true
}

// specificity counts the qualifiers beyond the tag.
func (r Rule) specificity() int {
	n := 0
	if r.Attr != "" {
		n++
	}
	if len(r.Rel) > 0 {
		n++
	}
	if len(r.As) > 0 {
		n++
	}
	if r.Type != "" {
		n++
	}
	if r.Parent != "" {
		n++
	}
	return n
}

// iconRels are the link relations that load an image.
var iconRels = []string{"icon", "apple-touch-icon", "apple-touch-icon-precomposed", "mask-icon"}

// preloadRels are the link relations that fetch a resource ahead of use.
var preloadRels = []string{"preload", "prefetch"}

// DefaultRules returns the built-in classification table.
// Contexts matching no rule fall back to default-src.
func DefaultRules() []Rule {
	return []Rule{
		// <link>
		{Tag: "link", Rel: []string{"stylesheet"}, Directive: model.StyleSrc},
		{Tag: "link", Rel: iconRels, Directive: model.ImgSrc},
		{Tag: "link", Rel: []string{"modulepreload"}, Directive: model.ScriptSrc},
		{Tag: "link", Rel: preloadRels, As: []string{"script", "worker"}, Directive: model.ScriptSrc},
		{Tag: "link", Rel: preloadRels, As: []string{"style"}, Directive: model.StyleSrc},
		{Tag: "link", Rel: preloadRels, As: []string{"font"}, Directive: model.FontSrc},
		{Tag: "link", Rel: preloadRels, As: []string{"image"}, Directive: model.ImgSrc},
		{Tag: "link", Rel: preloadRels, As: []string{"fetch"}, Directive: model.ConnectSrc},
		{Tag: "link", Rel: preloadRels, As: []string{"document", "iframe"}, Directive: model.FrameSrc},
		{Tag: "link", Rel: []string{"preconnect"}, Directive: model.ConnectSrc},

		// scripts and images
		{Tag: "script", Attr: "src", Directive: model.ScriptSrc},
		{Tag: "img", Directive: model.ImgSrc},
		{Tag: "source", Attr: "srcset", Directive: model.ImgSrc},
		{Tag: "video", Attr: "poster", Directive: model.ImgSrc},
		{Tag: "input", Attr: "src", Type: "image", Directive: model.ImgSrc},

		// frames
		{Tag: "iframe", Directive: model.FrameSrc},
		{Tag: "frame", Directive: model.FrameSrc},

		// endpoints
		{Tag: "form", Attr: "action", Directive: model.ConnectSrc},
		{Tag: "fetch", Directive: model.ConnectSrc},

		// CSS
		{Tag: "@font-face", Directive: model.FontSrc},
		{Tag: "@import", Directive: model.StyleSrc},
		{Tag: "css", Directive: model.ImgSrc},
	}
}

// Classifier assigns a directive to each element context.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier from DefaultRules plus extra rules.
// Rules are tried most specific first; among equally specific rules the
// extra rules win over the defaults and earlier rules win over later ones.
func NewClassifier(extra ...Rule) *Classifier {
	rules := make([]Rule, 0, len(extra)+len(DefaultRules()))
	rules = append(rules, extra...)
	rules = append(rules, DefaultRules()...)

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].specificity() > rules[j].specificity()
	})

	return &Classifier{rules: rules}
}

// Classify returns the directive for c, or default-src when no rule matches.
func (c *Classifier) Classify(ctx model.ElementContext) model.Directive {
	for _, r := range c.rules {
		if r.Matches(ctx) && r.Directive.IsValid() {
			return r.Directive
		}
	}
	return model.DefaultSrc
}
