// Package engine contains the streaming validator and sanitizer. An Engine
// is bound to one FormatSpec and checks, in a single forward pass, that a
// stream consists of optional whitespace, the format's prefix, a body of
// blocks that each fully match the block grammar, the format's suffix and
// trailing whitespace. Blocks that never match are replaced with the
// format's replacement bytes; everything else is copied through unchanged.
//
// This package is internal; external consumers should use pkg/core.
package engine
