package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDirective is returned when a directive name is not one of the
// directives cspgen knows how to populate.
var ErrUnknownDirective = errors.New("unknown directive")

// Policy maps each directive to an ordered set of origin tokens.
//
// Tokens keep the order in which they were first added and are never
// duplicated within a directive. A Policy is mutable until Freeze is called;
// after that every Add is a no-op.
//
// Policy is not safe for concurrent use. The crawl loop owns it exclusively.
type Policy struct {
	// sources holds the token list per directive in insertion order.
	sources map[Directive][]string

	// index provides O(1) duplicate detection per directive.
	index map[Directive]map[string]struct{}

	// frozen marks the policy read-only.
	frozen bool
}

// NewPolicy returns an empty, mutable Policy.
func NewPolicy() *Policy {
	return &Policy{
		sources: make(map[Directive][]string),
		index:   make(map[Directive]map[string]struct{}),
	}
}

// Add inserts token into the directive's source list if it is not already
// present. It reports whether the policy changed. Empty tokens, unknown
// directives and frozen policies are ignored.
func (p *Policy) Add(d Directive, token string) bool {
	token = strings.TrimSpace(token)
	if p.frozen || token == "" || !d.IsValid() {
		return false
	}

	seen, ok := p.index[d]
	if !ok {
		seen = make(map[string]struct{})
		p.index[d] = seen
	}
	if _, dup := seen[token]; dup {
		return false
	}

	seen[token] = struct{}{}
	p.sources[d] = append(p.sources[d], token)
	return true
}

// Has reports whether token is present for directive d.
func (p *Policy) Has(d Directive, token string) bool {
	_, ok := p.index[d][token]
	return ok
}

// Sources returns a copy of the tokens recorded for d in insertion order.
// It returns nil when the directive is absent.
func (p *Policy) Sources(d Directive) []string {
	src := p.sources[d]
	if len(src) == 0 {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Directives returns the populated directives in rendering order.
func (p *Policy) Directives() []Directive {
	out := make([]Directive, 0, len(p.sources))
	for _, d := range directiveOrder {
		if len(p.sources[d]) > 0 {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of populated directives.
func (p *Policy) Len() int {
	return len(p.Directives())
}

// IsEmpty reports whether no directive has any token.
func (p *Policy) IsEmpty() bool {
	return p.Len() == 0
}

// Freeze makes the policy read-only.
func (p *Policy) Freeze() {
	p.frozen = true
}

// Frozen reports whether Freeze has been called.
func (p *Policy) Frozen() bool {
	return p.frozen
}

// MarshalJSON encodes the policy as an object keyed by directive name.
// Keys follow the rendering order and values keep insertion order, which
// encoding/json cannot express for a plain map.
func (p *Policy) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range p.Directives() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(d.String())
		if err != nil {
			return nil, err
		}
		values, err := json.Marshal(p.sources[d])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(values)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a policy document produced by MarshalJSON.
// Unknown directive keys are rejected. The decoded policy is not frozen.
func (p *Policy) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("policy: expected JSON object, got %v", tok)
	}

	fresh := NewPolicy()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("policy: unexpected key %v", keyTok)
		}
		d, err := ParseDirective(key)
		if err != nil {
			return err
		}

		var values []string
		if err := dec.Decode(&values); err != nil {
			return fmt.Errorf("policy: directive %s: %w", d, err)
		}
		for _, v := range values {
			fresh.Add(d, v)
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*p = *fresh
	return nil
}
