// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// Crawls are often run against staging sites with an auth header or a
// session cookie, and crawled pages link to signed asset URLs. None of that
// should end up in CI logs, so the SecureHandler masks:
//   - HTTP header values (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (JWTs, bearer and basic auth)
//   - Credential query parameters inside URLs and logged errors
//     (token=, sig=, X-Amz-Signature= and similar)
//
// Even in verbose mode, sensitive values are masked.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Warn("page skipped",
//	    "url", "https://example.com/dl?token=abc", // logged as token=***REDACTED***
//	    "cookie", "session=abc123",                 // logged as ***REDACTED***
//	)
package log
