package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name searched in the
// current and home directories.
const DefaultConfigFile = ".cspgen.yaml"

// XDGConfigFile is the configuration file name inside XDGConfigDir.
const XDGConfigFile = "config.yaml"

// File represents the structure of the cspgen configuration file.
// Pointer fields distinguish "not set" from an explicit zero value.
type File struct {
	UserAgent          string            `yaml:"user_agent,omitempty"`
	Timeout            *time.Duration    `yaml:"timeout,omitempty"`
	Delay              *time.Duration    `yaml:"delay,omitempty"`
	MaxPages           *int              `yaml:"max_pages,omitempty"`
	MaxDepth           *int              `yaml:"max_depth,omitempty"`
	MaxBodySize        *int64            `yaml:"max_body_size,omitempty"`
	Headers            map[string]string `yaml:"headers,omitempty"`
	Cookie             string            `yaml:"cookie,omitempty"`
	IgnorePatterns     []string          `yaml:"ignore_patterns,omitempty"`
	FollowPatterns     []string          `yaml:"follow_patterns,omitempty"`
	ExcludeOrigins     []string          `yaml:"exclude_origins,omitempty"`
	TokenScheme        *bool             `yaml:"token_scheme,omitempty"`
	CollapseSubdomains *bool             `yaml:"collapse_subdomains,omitempty"`
}

// Apply overlays the values set in the file onto cfg.
// Headers are merged; every other set value replaces the current one.
func (f *File) Apply(cfg *Config) {
	if f.UserAgent != "" {
		cfg.UserAgent = f.UserAgent
	}
	if f.Timeout != nil {
		cfg.Timeout = *f.Timeout
	}
	if f.Delay != nil {
		cfg.CrawlDelay = *f.Delay
	}
	if f.MaxPages != nil {
		cfg.MaxPages = *f.MaxPages
	}
	if f.MaxDepth != nil {
		cfg.MaxDepth = *f.MaxDepth
	}
	if f.MaxBodySize != nil {
		cfg.MaxBodySize = *f.MaxBodySize
	}
	if len(f.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		for k, v := range f.Headers {
			cfg.Headers[k] = v
		}
	}
	if f.Cookie != "" {
		cfg.Cookie = f.Cookie
	}
	if len(f.IgnorePatterns) > 0 {
		cfg.IgnorePatterns = f.IgnorePatterns
	}
	if len(f.FollowPatterns) > 0 {
		cfg.FollowPatterns = f.FollowPatterns
	}
	if len(f.ExcludeOrigins) > 0 {
		cfg.ExcludeOrigins = f.ExcludeOrigins
	}
	if f.TokenScheme != nil {
		cfg.TokenScheme = *f.TokenScheme
	}
	if f.CollapseSubdomains != nil {
		cfg.CollapseSubdomains = *f.CollapseSubdomains
	}
}

// LoadConfigFile loads a configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .cspgen.yaml in the current directory
// 3. Look for .cspgen.yaml in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), XDGConfigFile))

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	return ""
}
