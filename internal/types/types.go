package types

import (
	"errors"
	"fmt"
	"strings"
)

// ProcessorType selects how the engine treats a block that never matches
// the block grammar.
type ProcessorType string

const (
	// ProcessorSanitize replaces invalid blocks and keeps going.
	ProcessorSanitize ProcessorType = "sanitize"
	// ProcessorStrict fails the run on the first invalid block.
	ProcessorStrict ProcessorType = "strict"
)

// ParseProcessorType maps a config value to a ProcessorType. The empty
// string selects ProcessorSanitize.
func ParseProcessorType(s string) (ProcessorType, error) {
	switch ProcessorType(s) {
	case "", ProcessorSanitize:
		return ProcessorSanitize, nil
	case ProcessorStrict:
		return ProcessorStrict, nil
	}
	return "", fmt.Errorf("unknown processor %q (want sanitize|strict)", s)
}

// DefaultMaxBlockBytes bounds block accumulation when a FormatSpec leaves
// MaxBlockBytes unset.
const DefaultMaxBlockBytes = 4096

// FormatSpec describes the rules for one supported format. It is loaded
// once and treated as read-only afterwards.
type FormatSpec struct {
	Extension     string        `json:"extension" yaml:"extension"`
	Prefix        []byte        `json:"prefix,omitempty" yaml:"prefix"`
	Suffix        []byte        `json:"suffix,omitempty" yaml:"suffix"`
	BlockPattern  string        `json:"block_pattern" yaml:"block_pattern"`
	Replacement   []byte        `json:"replacement" yaml:"replacement"`
	MaxBlockBytes int           `json:"max_block_bytes,omitempty" yaml:"max_block_bytes"`
	Processor     ProcessorType `json:"processor,omitempty" yaml:"processor"`
}

// ErrorCode classifies why a file was rejected.
type ErrorCode string

const (
	CodeEmptyFile      ErrorCode = "EmptyFile"
	CodeInvalidHeader  ErrorCode = "InvalidHeader"
	CodeInvalidFooter  ErrorCode = "InvalidFooter"
	CodeInvalidBlock   ErrorCode = "InvalidBlock"
	CodeUnexpectedByte ErrorCode = "UnexpectedByte"
	CodeTruncatedFile  ErrorCode = "TruncatedFile"
	CodeTrailingData   ErrorCode = "TrailingData"
	CodeInvalidFormat  ErrorCode = "InvalidFormat"
)

// ProcessingError is a per-file failure. Detail is safe to show to the
// client that submitted the file.
type ProcessingError struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail"`
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// NewProcessingError builds a ProcessingError with a formatted detail.
func NewProcessingError(code ErrorCode, format string, args ...any) *ProcessingError {
	return &ProcessingError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is a ProcessingError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// CodeOf returns the code of a ProcessingError, or "" for any other error.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// SanitizationReport summarizes a successful run.
type SanitizationReport struct {
	WasMalicious   bool   `json:"was_malicious"`
	ReplacedBlocks int    `json:"replaced_blocks"`
	Notes          string `json:"notes"`
	Blocks         int    `json:"blocks"`
	BytesIn        int64  `json:"bytes_in"`
	BytesOut       int64  `json:"bytes_out"`
}

// ProcessResult is produced once per run. Report is set when Success is
// true, Error otherwise.
type ProcessResult struct {
	Success bool                `json:"success"`
	Report  *SanitizationReport `json:"report,omitempty"`
	Error   *ProcessingError    `json:"error,omitempty"`
}

// Succeeded wraps a report into a successful result.
func Succeeded(r SanitizationReport) *ProcessResult {
	r.WasMalicious = r.ReplacedBlocks > 0
	return &ProcessResult{Success: true, Report: &r}
}

// Failed wraps a processing error into a failed result.
func Failed(err *ProcessingError) *ProcessResult {
	return &ProcessResult{Success: false, Error: err}
}

// Err returns the result's ProcessingError as an error, or nil on success.
func (r *ProcessResult) Err() error {
	if r == nil || r.Success || r.Error == nil {
		return nil
	}
	return r.Error
}

// NormalizeExt lowercases ext and gives it a leading dot. It returns "" for
// an empty extension.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
