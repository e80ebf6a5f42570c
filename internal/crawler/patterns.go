package crawler

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// assetExtensions are path extensions that never serve an HTML page.
// Links to them are not enqueued, so they do not consume the page budget.
var assetExtensions = map[string]bool{
	".7z": true, ".avi": true, ".bmp": true, ".css": true, ".csv": true,
	".dmg": true, ".doc": true, ".docx": true, ".eot": true, ".exe": true,
	".gif": true, ".gz": true, ".ico": true, ".iso": true, ".jpeg": true,
	".jpg": true, ".js": true, ".json": true, ".mjs": true, ".mov": true,
	".mp3": true, ".mp4": true, ".ogg": true, ".otf": true, ".pdf": true,
	".png": true, ".ppt": true, ".pptx": true, ".rar": true, ".svg": true,
	".tar": true, ".tgz": true, ".ttf": true, ".wasm": true, ".wav": true,
	".webm": true, ".webp": true, ".woff": true, ".woff2": true, ".xls": true,
	".xlsx": true, ".xml": true, ".zip": true,
}

// isAsset reports whether u points at a non-page file.
func isAsset(u *url.URL) bool {
	return assetExtensions[strings.ToLower(path.Ext(u.Path))]
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
//
// Logic:
//  1. If the path matches any ignore pattern, skip it
//  2. If follow patterns are set and the path matches none, skip it
//  3. Otherwise, crawl it
func shouldCrawl(u *url.URL, ignorePatterns, followPatterns []string) bool {
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(followPatterns) > 0 {
		for _, pattern := range followPatterns {
			if matchPattern(pattern, p) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match a whole subtree
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard" and "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(p, strings.TrimPrefix(pattern, "*")) {
		return true
	}

	if matched, err := filepath.Match(pattern, p); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
