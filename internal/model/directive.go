package model

import (
	"fmt"
	"strings"
)

// Directive is a CSP fetch directive that cspgen can populate.
// The set is closed: only the values declared below are valid.
type Directive string

// The directives cspgen emits, in output order.
const (
	ScriptSrc  Directive = "script-src"
	StyleSrc   Directive = "style-src"
	FontSrc    Directive = "font-src"
	ImgSrc     Directive = "img-src"
	FrameSrc   Directive = "frame-src"
	ConnectSrc Directive = "connect-src"
	DefaultSrc Directive = "default-src"
)

// SourceSelf is the keyword source for same-origin resources.
const SourceSelf = "'self'"

// directiveOrder is the fixed rendering order for policies.
var directiveOrder = []Directive{
	ScriptSrc,
	StyleSrc,
	FontSrc,
	ImgSrc,
	FrameSrc,
	ConnectSrc,
	DefaultSrc,
}

// Directives returns all directives in their fixed rendering order.
// The returned slice is a copy and may be modified by the caller.
func Directives() []Directive {
	out := make([]Directive, len(directiveOrder))
	copy(out, directiveOrder)
	return out
}

// String returns the directive name as it appears in a CSP header.
func (d Directive) String() string {
	return string(d)
}

// IsValid reports whether d is one of the known directives.
func (d Directive) IsValid() bool {
	return d.index() >= 0
}

// index returns the position of d in the rendering order, or -1.
func (d Directive) index() int {
	for i, known := range directiveOrder {
		if d == known {
			return i
		}
	}
	return -1
}

// ParseDirective converts a directive name to a Directive.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseDirective(name string) (Directive, error) {
	d := Directive(strings.ToLower(strings.TrimSpace(name)))
	if !d.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDirective, name)
	}
	return d, nil
}
