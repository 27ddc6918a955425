package files

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var defaultExcludeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"target":       true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"coverage":     true,
}

func isDefaultDirExcluded(name string) bool {
	return defaultExcludeDirs[name] || strings.HasPrefix(name, ".git")
}

// Allowed reports whether relPath passes the comma-separated include and
// exclude glob lists. An empty include list admits everything.
func Allowed(relPath, include, exclude string) bool {
	rp := filepath.ToSlash(relPath)
	if includes := ParseGlobs(include); len(includes) > 0 && !matchAnyGlob(rp, includes) {
		return false
	}
	if excludes := ParseGlobs(exclude); len(excludes) > 0 && matchAnyGlob(rp, excludes) {
		return false
	}
	return true
}

// ParseGlobs splits a comma-separated glob list. Each pattern is also added
// without a leading ./ or **/ so it can match paths at the root.
func ParseGlobs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
		if t := trimGlobPrefix(p); t != p && t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ValidateGlobs returns the first malformed pattern in s.
func ValidateGlobs(s string) error {
	for _, g := range ParseGlobs(s) {
		if !doublestar.ValidatePattern(g) {
			return &GlobError{Pattern: g}
		}
	}
	return nil
}

// GlobError reports a pattern doublestar cannot parse.
type GlobError struct{ Pattern string }

func (e *GlobError) Error() string { return "invalid glob pattern " + e.Pattern }

func matchAnyGlob(pathToMatch string, globs []string) bool {
	base := pathToMatch
	if i := strings.LastIndexByte(pathToMatch, '/'); i >= 0 {
		base = pathToMatch[i+1:]
	}
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, pathToMatch); ok {
			return true
		}
		if ok, _ := doublestar.Match(g, base); ok {
			return true
		}
	}
	return false
}

func trimGlobPrefix(g string) string {
	s := strings.TrimPrefix(g, "./")
	for strings.HasPrefix(s, "**/") {
		s = strings.TrimPrefix(s, "**/")
	}
	return s
}
