package engine

import (
	"bytes"
	"fmt"

	"github.com/varalys/blockscrub/internal/types"
)

// run holds the state of a single Process call.
type run struct {
	*Engine
	in  *cursor
	out *emitter

	buf      []byte
	blocks   int
	replaced int
}

func (r *run) exec() (*types.ProcessingError, error) {
	first, ok, err := r.whitespace()
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewProcessingError(types.CodeEmptyFile, "file is empty or contains only whitespace"), nil
	}
	if pe, err := r.header(first); pe != nil || err != nil {
		return pe, err
	}
	return r.body()
}

// whitespace echoes whitespace and returns the first other byte. ok is
// false when the input ends first.
func (r *run) whitespace() (byte, bool, error) {
	for {
		b, ok, err := r.in.next()
		if err != nil || !ok {
			return 0, false, err
		}
		if !isWhitespace(b) {
			return b, true, nil
		}
		if err := r.out.writeByte(b); err != nil {
			return 0, false, err
		}
	}
}

func (r *run) header(first byte) (*types.ProcessingError, error) {
	prefix := r.spec.Prefix
	if len(prefix) == 0 {
		r.in.unread(first)
		return nil, nil
	}
	start := r.in.offset()
	if first != prefix[0] {
		return types.NewProcessingError(types.CodeInvalidHeader,
			"expected header %q at offset %d, found byte 0x%02x", prefix, start, first), nil
	}
	for i := 1; i < len(prefix); i++ {
		b, ok, err := r.in.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return types.NewProcessingError(types.CodeTruncatedFile,
				"file ends inside header after %d of %d bytes", i, len(prefix)), nil
		}
		if b != prefix[i] {
			return types.NewProcessingError(types.CodeInvalidHeader,
				"header mismatch at offset %d: expected 0x%02x, found 0x%02x", r.in.offset(), prefix[i], b), nil
		}
	}
	return nil, r.out.write(prefix)
}

func (r *run) body() (*types.ProcessingError, error) {
	suffix := r.spec.Suffix
	for {
		b, ok, err := r.whitespace()
		if err != nil {
			return nil, err
		}
		if !ok {
			if len(suffix) == 0 {
				return nil, nil
			}
			return types.NewProcessingError(types.CodeInvalidFooter,
				"file ends at offset %d without footer %q", r.in.pos, suffix), nil
		}
		if len(suffix) > 0 && b == suffix[0] {
			found, pe, err := r.footer()
			if pe != nil || err != nil {
				return pe, err
			}
			if found {
				return r.trailing()
			}
		}
		if pe, err := r.block(b); pe != nil || err != nil {
			return pe, err
		}
	}
}

// footer is entered after a byte equal to suffix[0]. It reads the rest of
// a candidate footer; on a mismatch the bytes go back to the cursor so the
// block scan sees them.
func (r *run) footer() (bool, *types.ProcessingError, error) {
	suffix := r.spec.Suffix
	start := r.in.offset()
	peek := make([]byte, 0, len(suffix)-1)
	for len(peek) < len(suffix)-1 {
		b, ok, err := r.in.next()
		if err != nil {
			return false, nil, err
		}
		if !ok {
			return false, types.NewProcessingError(types.CodeTruncatedFile,
				"file ends inside footer starting at offset %d", start), nil
		}
		peek = append(peek, b)
	}
	if bytes.Equal(peek, suffix[1:]) {
		return true, nil, r.out.write(suffix)
	}
	r.in.unread(peek...)
	return false, nil, nil
}

// block accumulates a block that starts with first until the buffer fully
// matches the grammar, a suffix-start byte arrives, or the size cap is hit.
func (r *run) block(first byte) (*types.ProcessingError, error) {
	suffix := r.spec.Suffix
	start := r.in.offset()
	buf := append(r.buf[:0], first)
	defer func() { r.buf = buf[:0] }()

	for {
		if r.grammar.FullMatch(buf) {
			r.blocks++
			return nil, r.out.write(buf)
		}
		b, ok, err := r.in.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return types.NewProcessingError(types.CodeTruncatedFile,
				"file ends inside block starting at offset %d", start), nil
		}
		if len(suffix) > 0 && b == suffix[0] {
			r.in.unread(b)
			return r.invalid(buf, start)
		}
		if len(buf) >= r.maxBlock {
			if r.spec.Processor == types.ProcessorStrict {
				return types.NewProcessingError(types.CodeUnexpectedByte,
					"byte 0x%02x at offset %d extends block starting at offset %d beyond %d bytes",
					b, r.in.offset(), start, r.maxBlock), nil
			}
			r.in.unread(b)
			return r.invalid(buf, start)
		}
		buf = append(buf, b)
	}
}

func (r *run) invalid(buf []byte, start int64) (*types.ProcessingError, error) {
	if r.spec.Processor == types.ProcessorStrict {
		return types.NewProcessingError(types.CodeInvalidBlock,
			"block of %d bytes at offset %d does not match the block grammar", len(buf), start), nil
	}
	r.blocks++
	r.replaced++
	return nil, r.out.write(r.spec.Replacement)
}

func (r *run) trailing() (*types.ProcessingError, error) {
	for {
		b, ok, err := r.in.next()
		if err != nil || !ok {
			return nil, err
		}
		if !isWhitespace(b) {
			return types.NewProcessingError(types.CodeTrailingData,
				"unexpected byte 0x%02x at offset %d after footer", b, r.in.offset()), nil
		}
		if err := r.out.writeByte(b); err != nil {
			return nil, err
		}
	}
}

func (r *run) report() types.SanitizationReport {
	rep := types.SanitizationReport{
		ReplacedBlocks: r.replaced,
		Blocks:         r.blocks,
		BytesIn:        r.in.read,
		BytesOut:       r.out.n,
	}
	switch {
	case r.replaced == 0:
		rep.Notes = fmt.Sprintf("%d blocks valid; no changes", r.blocks)
	default:
		rep.Notes = fmt.Sprintf("replaced %d of %d blocks that did not match the block grammar", r.replaced, r.blocks)
	}
	return rep
}
