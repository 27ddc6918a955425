// Package files selects the inputs of a batch run: explicit files plus
// directory trees filtered by extension, globs, default excludes and
// .blockscrubignore.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/varalys/blockscrub/internal/types"
)

// Options controls selection.
type Options struct {
	Include         string // comma-separated doublestar globs
	Exclude         string
	DefaultExcludes bool
	// Known reports whether an extension has a registered format. Nil
	// admits every file.
	Known func(ext string) bool
}

// Target is one selected file.
type Target struct {
	Path string // as passed to os.Open
	Root string // walk root, or the file's directory for explicit files
	Rel  string // slash-separated path relative to Root
}

// Walk traverses root and invokes handle for each eligible regular file.
// Files are not opened here.
func Walk(ctx context.Context, root string, opts Options, handle func(Target) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ign, _ := LoadIgnore(filepath.Join(root, IgnoreFileName))
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && opts.DefaultExcludes && isDefaultDirExcluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		if reservedNames[rel] {
			return nil
		}
		if opts.Known != nil && !opts.Known(filepath.Ext(rel)) {
			return nil
		}
		if !Allowed(rel, opts.Include, opts.Exclude) || ign.Match(rel) {
			return nil
		}
		return handle(Target{Path: p, Root: root, Rel: rel})
	})
}

// Expand resolves command-line paths into targets. Explicit files are
// always selected; directories are walked. Results keep argument order and
// are sorted within each directory.
func Expand(ctx context.Context, paths []string, opts Options) ([]Target, error) {
	var out []Target
	seen := map[string]bool{}
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", p, err)
		}
		if !st.IsDir() {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, Target{Path: p, Root: filepath.Dir(p), Rel: filepath.Base(p)})
			continue
		}
		var batch []Target
		err = Walk(ctx, p, opts, func(t Target) error {
			if !seen[t.Path] {
				seen[t.Path] = true
				batch = append(batch, t)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].Rel < batch[j].Rel })
		out = append(out, batch...)
	}
	if len(out) == 0 {
		return nil, ErrNoInputs
	}
	return out, nil
}

// blockscrub's own bookkeeping files at a walk root.
var reservedNames = map[string]bool{
	IgnoreFileName:          true,
	".blockscrubcache.json": true,
}

// ErrNoInputs is returned by Expand when nothing was selected.
var ErrNoInputs = errors.New("no input files selected")

// Ext returns the normalized extension of a target.
func (t Target) Ext() string { return types.NormalizeExt(filepath.Ext(t.Path)) }
