// Package core provides a small, stable facade over blockscrub's internal
// engine for programs that embed the validator. It re-exports a narrow API
// so callers can depend on a stable import path without importing
// internal packages.
//
// Example:
//
//	spec := core.FormatSpec{
//		Extension:    ".blk",
//		Prefix:       []byte("123"),
//		Suffix:       []byte("789"),
//		BlockPattern: "A[0-9]C",
//		Replacement:  []byte("A255C"),
//	}
//	res, err := core.Process(ctx, spec, in, out)
//	if err != nil { /* cancel or I/O: discard out */ }
//	_ = core.MarshalResult(os.Stdout, res)
package core
