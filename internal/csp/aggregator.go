package csp

import (
	"strings"

	"github.com/nao1215/cspgen/internal/model"
)

// evidenceKey identifies one (directive, token) pair.
type evidenceKey struct {
	directive model.Directive
	token     string
}

// Aggregator merges origin tokens from all crawled pages into one policy.
//
// Record and Observe may be called any number of times until Finalize.
// After Finalize the aggregator is closed and further observations are
// ignored.
type Aggregator struct {
	working   *model.Policy
	evidence  []*model.OriginEvidence
	byKey     map[evidenceKey]*model.OriginEvidence
	excluded  map[string]struct{}
	finalized *model.Policy
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithExcludedTokens drops the given origins from the finalized policy.
// Entries may be bare hosts or scheme://host; matching is case-insensitive.
func WithExcludedTokens(tokens []string) AggregatorOption {
	return func(a *Aggregator) {
		for _, t := range tokens {
			if key := exclusionKey(t); key != "" {
				a.excluded[key] = struct{}{}
			}
		}
	}
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		working:  model.NewPolicy(),
		evidence: make([]*model.OriginEvidence, 0),
		byKey:    make(map[evidenceKey]*model.OriginEvidence),
		excluded: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record adds token to directive d. It reports whether the working policy
// changed.
func (a *Aggregator) Record(d model.Directive, token string) bool {
	return a.Observe(d, token, "", "")
}

// Observe adds token to directive d and remembers where it was seen.
// It reports whether the working policy changed.
func (a *Aggregator) Observe(d model.Directive, token, pageURL, resourceURL string) bool {
	if a.finalized != nil || !d.IsValid() {
		return false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}

	key := evidenceKey{directive: d, token: token}
	if ev, ok := a.byKey[key]; ok {
		ev.Count++
	} else {
		ev := &model.OriginEvidence{
			Directive:     d,
			Token:         token,
			Count:         1,
			FirstPage:     pageURL,
			FirstResource: resourceURL,
		}
		a.byKey[key] = ev
		a.evidence = append(a.evidence, ev)
	}

	return a.working.Add(d, token)
}

// Finalize returns the frozen policy.
//
// Excluded tokens are removed. Every remaining directive gets 'self'
// appended when it was not observed. A directive left without any
// observed token after exclusion is omitted. Calling Finalize again
// returns the same policy.
func (a *Aggregator) Finalize() *model.Policy {
	if a.finalized != nil {
		return a.finalized
	}

	final := model.NewPolicy()
	for _, d := range a.working.Directives() {
		kept := 0
		for _, token := range a.working.Sources(d) {
			if a.isExcluded(token) {
				continue
			}
			final.Add(d, token)
			kept++
		}
		if kept == 0 {
			continue
		}
		if !final.Has(d, model.SourceSelf) {
			final.Add(d, model.SourceSelf)
			key := evidenceKey{directive: d, token: model.SourceSelf}
			ev := &model.OriginEvidence{Directive: d, Token: model.SourceSelf}
			a.byKey[key] = ev
			a.evidence = append(a.evidence, ev)
		}
	}

	final.Freeze()
	a.working.Freeze()
	a.finalized = final
	return final
}

// Evidence returns the observations behind the policy tokens, in the order
// they were first seen. Tokens removed by exclusion are not reported.
func (a *Aggregator) Evidence() []model.OriginEvidence {
	out := make([]model.OriginEvidence, 0, len(a.evidence))
	for _, ev := range a.evidence {
		if a.isExcluded(ev.Token) {
			continue
		}
		out = append(out, *ev)
	}
	return out
}

// isExcluded reports whether token matches an exclusion entry.
func (a *Aggregator) isExcluded(token string) bool {
	if len(a.excluded) == 0 || token == model.SourceSelf {
		return false
	}
	key := exclusionKey(token)
	if _, ok := a.excluded[key]; ok {
		return true
	}
	if i := strings.Index(key, "://"); i >= 0 {
		_, ok := a.excluded[key[i+3:]]
		return ok
	}
	return false
}

// exclusionKey lowercases s and strips a trailing slash.
func exclusionKey(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "/")
}
