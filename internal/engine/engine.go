package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/varalys/blockscrub/internal/types"
)

// ErrInvalidSpec marks a FormatSpec the engine cannot run with. It is a
// configuration error raised by New, never by Process.
var ErrInvalidSpec = errors.New("invalid format spec")

// Engine validates and sanitizes streams for one FormatSpec. It is
// immutable after New; every Process call keeps its state on its own
// stack, so one Engine may serve concurrent callers.
type Engine struct {
	spec     types.FormatSpec
	grammar  Grammar
	maxBlock int
}

// New compiles spec.BlockPattern and returns an Engine bound to spec.
func New(spec types.FormatSpec) (*Engine, error) {
	g, err := CompileGrammar(spec.BlockPattern)
	if err != nil {
		return nil, err
	}
	return NewWithGrammar(spec, g)
}

// NewWithGrammar binds spec to a caller-supplied Grammar. BlockPattern is
// ignored.
func NewWithGrammar(spec types.FormatSpec, g Grammar) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil grammar", ErrInvalidSpec)
	}
	proc, err := types.ParseProcessorType(string(spec.Processor))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if len(spec.Prefix) > 0 && isWhitespace(spec.Prefix[0]) {
		return nil, fmt.Errorf("%w: prefix %q starts with whitespace", ErrInvalidSpec, spec.Prefix)
	}
	if len(spec.Suffix) > 0 && isWhitespace(spec.Suffix[0]) {
		return nil, fmt.Errorf("%w: suffix %q starts with whitespace", ErrInvalidSpec, spec.Suffix)
	}
	if spec.MaxBlockBytes < 0 {
		return nil, fmt.Errorf("%w: max_block_bytes %d is negative", ErrInvalidSpec, spec.MaxBlockBytes)
	}

	e := &Engine{
		spec: types.FormatSpec{
			Extension:     spec.Extension,
			Prefix:        bytes.Clone(spec.Prefix),
			Suffix:        bytes.Clone(spec.Suffix),
			BlockPattern:  spec.BlockPattern,
			Replacement:   bytes.Clone(spec.Replacement),
			MaxBlockBytes: spec.MaxBlockBytes,
			Processor:     proc,
		},
		grammar:  g,
		maxBlock: spec.MaxBlockBytes,
	}
	if e.maxBlock == 0 {
		e.maxBlock = types.DefaultMaxBlockBytes
	}
	return e, nil
}

// Spec returns a copy of the FormatSpec the engine was built from.
func (e *Engine) Spec() types.FormatSpec {
	s := e.spec
	s.Prefix = bytes.Clone(e.spec.Prefix)
	s.Suffix = bytes.Clone(e.spec.Suffix)
	s.Replacement = bytes.Clone(e.spec.Replacement)
	s.MaxBlockBytes = e.maxBlock
	return s
}

// Process reads r once, writes the sanitized stream to w and describes the
// outcome. Malformed input is reported through the returned result; the
// error return is non-nil only when ctx is canceled or r or w fail, in
// which case no result is produced and anything already written to w
// must be discarded by the caller.
func (e *Engine) Process(ctx context.Context, r io.Reader, w io.Writer) (*types.ProcessResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	st := &run{
		Engine: e,
		in:     newCursor(ctx, r),
		out:    newEmitter(ctx, w),
	}
	pe, err := st.exec()
	if err != nil {
		return nil, err
	}
	if err := st.out.flush(); err != nil {
		return nil, err
	}
	if pe != nil {
		return types.Failed(pe), nil
	}
	return types.Succeeded(st.report()), nil
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}
