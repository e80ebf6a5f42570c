// Package main provides the entry point for the cspgen CLI.
//
// cspgen crawls a website, records which origins each kind of embedded
// resource is loaded from, and writes a Content-Security-Policy as JSON and
// as an IIS web.config snippet.
//
// Usage:
//
//	cspgen --url https://example.com --output-dir ./csp
//	cspgen --url https://example.com --output-dir ./csp --max-pages 100
//
// See --help for all available options.
package main

// main is the entry point for cspgen.
func main() {
	Execute()
}
