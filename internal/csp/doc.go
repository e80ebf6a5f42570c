// Package csp turns observed resource references into a Content-Security-Policy.
//
// # Components
//
//   - Normalizer: resolves a raw reference against its page and reduces it
//     to an origin token ('self' or a host-source)
//   - Classifier: maps an element context to a directive using an ordered
//     rule table, most specific rule first
//   - Aggregator: merges (directive, token) pairs from every crawled page
//     into one policy and finalizes it
//   - RenderHeader, RenderWebConfig, RenderJSON: pure renderings of a
//     finalized policy
//
// Nothing in this package performs I/O, so every component can be tested
// without a network.
//
// # Usage
//
//	norm, _ := csp.NewNormalizer("https://example.com")
//	agg := csp.NewAggregator()
//	cls := csp.NewClassifier()
//
//	for _, ref := range refs {
//	    u, err := norm.Resolve(base, ref.URL)
//	    if err != nil {
//	        continue
//	    }
//	    agg.Observe(cls.Classify(ref.Context), norm.Token(u), ref.PageURL, u.String())
//	}
//	header := csp.RenderHeader(agg.Finalize())
package csp
