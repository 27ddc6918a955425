package core

import (
	"context"
	"io"

	"github.com/varalys/blockscrub/internal/engine"
	"github.com/varalys/blockscrub/internal/registry"
	"github.com/varalys/blockscrub/internal/types"
)

// Re-export selected internal types as a stable public API surface.
// These are type aliases so external consumers can depend on a stable path.
type (
	FormatSpec         = types.FormatSpec
	ProcessorType      = types.ProcessorType
	ProcessResult      = types.ProcessResult
	SanitizationReport = types.SanitizationReport
	ProcessingError    = types.ProcessingError
	ErrorCode          = types.ErrorCode
	Engine             = engine.Engine
	Registry           = registry.Registry
)

const (
	ProcessorSanitize = types.ProcessorSanitize
	ProcessorStrict   = types.ProcessorStrict

	CodeEmptyFile      = types.CodeEmptyFile
	CodeInvalidHeader  = types.CodeInvalidHeader
	CodeInvalidFooter  = types.CodeInvalidFooter
	CodeInvalidBlock   = types.CodeInvalidBlock
	CodeUnexpectedByte = types.CodeUnexpectedByte
	CodeTruncatedFile  = types.CodeTruncatedFile
	CodeTrailingData   = types.CodeTrailingData
	CodeInvalidFormat  = types.CodeInvalidFormat
)

// Sentinel errors for configuration problems.
var (
	ErrInvalidSpec   = engine.ErrInvalidSpec
	ErrUnknownFormat = registry.ErrUnknownFormat
)

// New compiles spec into a reusable Engine. An Engine is safe for
// concurrent use.
func New(spec FormatSpec) (*Engine, error) {
	return engine.New(spec)
}

// NewRegistry compiles a set of formats keyed by extension.
func NewRegistry(specs []FormatSpec) (*Registry, error) {
	return registry.New(specs)
}

// Process compiles spec and runs it over r in one call. Callers processing
// many inputs with the same spec should use New once instead.
func Process(ctx context.Context, spec FormatSpec, r io.Reader, w io.Writer) (*ProcessResult, error) {
	e, err := engine.New(spec)
	if err != nil {
		return nil, err
	}
	return e.Process(ctx, r, w)
}

// IsCode reports whether err carries a ProcessingError with code.
func IsCode(err error, code ErrorCode) bool { return types.IsCode(err, code) }
