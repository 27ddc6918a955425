package files

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFileName is read from the root of every walked directory.
const IgnoreFileName = ".blockscrubignore"

// Matcher holds gitignore-style patterns. A pattern ending in / matches a
// directory and everything below it; other patterns match the path or its
// base name.
type Matcher struct {
	patterns []string
}

// LoadIgnore reads patterns from path. A missing file yields an empty
// matcher and the open error.
func LoadIgnore(path string) (Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return Matcher{}, err
	}
	defer func() { _ = f.Close() }()
	var m Matcher
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, line)
	}
	return m, sc.Err()
}

// Match reports whether relPath is ignored.
func (m Matcher) Match(relPath string) bool {
	rp := filepath.ToSlash(relPath)
	for _, p := range m.patterns {
		if dir, ok := strings.CutSuffix(p, "/"); ok {
			dir = strings.TrimPrefix(dir, "/")
			if rp == dir || strings.HasPrefix(rp, dir+"/") || strings.Contains(rp, "/"+dir+"/") {
				return true
			}
			continue
		}
		if matchAnyGlob(rp, []string{strings.TrimPrefix(p, "/")}) {
			return true
		}
		if ok, _ := doublestar.Match("**/"+p, rp); ok {
			return true
		}
	}
	return false
}

// AppendIgnore ensures the given pattern is present in .gitignore at repoRoot.
// It creates the file if missing. Idempotent.
func AppendIgnore(repoRoot, pattern string) error {
	path := filepath.Join(repoRoot, ".gitignore")
	existing := map[string]bool{}
	endsWithNewline := true
	if b, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(b), "\n") {
			existing[strings.TrimSpace(line)] = true
		}
		endsWithNewline = len(b) == 0 || b[len(b)-1] == '\n'
	}
	if existing[pattern] {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if !endsWithNewline {
		pattern = "\n" + pattern
	}
	_, err = f.WriteString(pattern + "\n")
	return err
}
