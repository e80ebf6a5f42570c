package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultMaxPages is the crawl budget. Every fetch attempt counts,
	// including failed ones.
	DefaultMaxPages = 25

	// DefaultMaxDepth is high enough that the page budget, not the depth,
	// normally ends the crawl.
	DefaultMaxDepth = 100

	// DefaultTimeout bounds a single page fetch. On timeout the page is
	// treated as a failed fetch and the crawl continues.
	DefaultTimeout = 15 * time.Second

	// DefaultCrawlDelay is the delay between requests during crawling.
	DefaultCrawlDelay = 500 * time.Millisecond

	// DefaultUserAgent identifies cspgen in HTTP requests so that site
	// operators can recognize crawler traffic in their logs.
	DefaultUserAgent = "cspgen/1.0 (+https://github.com/nao1215/cspgen)"

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// AppName is the application name used for XDG directory paths.
	AppName = "cspgen"
)

// Config holds all configuration options for cspgen.
// This struct is populated from defaults, the config file and CLI flags,
// in that order, and passed through the application rather than kept as
// global state.
type Config struct {
	// StartURL is the page the crawl begins at.
	StartURL string

	// OutputDir receives csp_policy.json, web.config and the optional
	// markdown report. It is created if absent.
	OutputDir string

	// MaxPages is the maximum number of fetch attempts. 0 crawls nothing
	// and still writes an empty policy.
	MaxPages int

	// MaxDepth is the maximum number of link hops from the start URL.
	MaxDepth int

	// Timeout is the per-page fetch timeout.
	Timeout time.Duration

	// CrawlDelay is the delay between HTTP requests.
	CrawlDelay time.Duration

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// Headers are extra request headers, for example for staging sites
	// behind an auth proxy.
	Headers map[string]string

	// Cookie is sent with every request when set.
	Cookie string

	// IgnorePatterns are URL path globs never crawled.
	IgnorePatterns []string

	// FollowPatterns, when set, restrict crawling to matching paths.
	FollowPatterns []string

	// ExcludeOrigins are origins dropped from the generated policy.
	ExcludeOrigins []string

	// TokenScheme emits scheme://host tokens instead of bare hosts.
	TokenScheme bool

	// CollapseSubdomains rewrites external hosts to *.<registrable domain>.
	CollapseSubdomains bool

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// MarkdownReport additionally writes csp_report.md to OutputDir.
	MarkdownReport bool

	// SaveToDB records the run in the history database.
	SaveToDB bool

	// DBDir is the directory of the history database.
	// Defaults to XDG data directory (~/.local/share/cspgen on Linux).
	DBDir string

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., page budget,
// timeout). This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		MaxPages:    DefaultMaxPages,
		MaxDepth:    DefaultMaxDepth,
		Timeout:     DefaultTimeout,
		CrawlDelay:  DefaultCrawlDelay,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
		Headers:     make(map[string]string),
		DBDir:       XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for cspgen.
// On Linux: ~/.local/share/cspgen
// On macOS: ~/Library/Application Support/cspgen
// On Windows: %LOCALAPPDATA%\cspgen
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for cspgen.
// On Linux: ~/.config/cspgen
// On macOS: ~/Library/Application Support/cspgen
// On Windows: %APPDATA%\cspgen
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the sentinel errors.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after flag parsing, before any request is made.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return ErrNoStartURL
	}
	u, err := url.Parse(c.StartURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return ErrInvalidStartURL
	}

	if c.OutputDir == "" {
		return ErrNoOutputDir
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}

	// Timeout must be positive; zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}

	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}
