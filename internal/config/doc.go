// Package config provides configuration structures and utilities for cspgen.
// It defines the crawl budget and politeness settings, the origin token
// options, the optional config file, and where artifacts and run history
// are written.
package config
