// Package model defines the core data structures used throughout cspgen.
//
// This package contains the following main types:
//   - Directive: The closed set of CSP directives cspgen emits
//   - Policy: Directive to ordered origin token set mapping
//   - Page and Reference: Fetched pages and the resource URLs found on them
//   - Session: The result of one crawl run
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, the csp aggregation code, the report writers and
// the history database all use these types.
package model
