// Package registry maps file extensions to compiled engines.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/varalys/blockscrub/internal/engine"
	"github.com/varalys/blockscrub/internal/types"
)

// ErrUnknownFormat is returned when no engine is registered for an extension.
var ErrUnknownFormat = errors.New("unknown format")

// Registry is an immutable extension → engine table. Engines keep no
// per-call state, so one Registry serves concurrent lookups and runs.
type Registry struct {
	engines map[string]*engine.Engine
}

// New compiles every spec. Any invalid spec or duplicate extension fails
// the whole registry.
func New(specs []types.FormatSpec) (*Registry, error) {
	r := &Registry{engines: make(map[string]*engine.Engine, len(specs))}
	for _, spec := range specs {
		ext := types.NormalizeExt(spec.Extension)
		if ext == "" {
			return nil, fmt.Errorf("%w: empty extension", engine.ErrInvalidSpec)
		}
		if _, dup := r.engines[ext]; dup {
			return nil, fmt.Errorf("%w: duplicate extension %q", engine.ErrInvalidSpec, ext)
		}
		spec.Extension = ext
		e, err := engine.New(spec)
		if err != nil {
			return nil, fmt.Errorf("format %q: %w", ext, err)
		}
		r.engines[ext] = e
	}
	return r, nil
}

// Lookup returns the engine for ext. ext may be given with or without its
// leading dot and in any case.
func (r *Registry) Lookup(ext string) (*engine.Engine, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.engines[types.NormalizeExt(ext)]
	return e, ok
}

// LookupPath resolves the engine for a file name by its extension.
func (r *Registry) LookupPath(name string) (*engine.Engine, bool) {
	return r.Lookup(filepath.Ext(name))
}

// Extensions lists the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.engines))
	for ext := range r.engines {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered formats.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	return len(r.engines)
}

// Specs returns the specs of every registered format, sorted by extension.
func (r *Registry) Specs() []types.FormatSpec {
	exts := r.Extensions()
	out := make([]types.FormatSpec, 0, len(exts))
	for _, ext := range exts {
		out = append(out, r.engines[ext].Spec())
	}
	return out
}

// Process runs the engine registered for ext over src.
func (r *Registry) Process(ctx context.Context, ext string, src io.Reader, dst io.Writer) (*types.ProcessResult, error) {
	e, ok := r.Lookup(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	return e.Process(ctx, src, dst)
}
