// Package report renders batch outcomes as text, tables, JSON and SARIF and
// decides whether a run should fail a CI job.
package report

import (
	"github.com/varalys/blockscrub/internal/batch"
)

// Status labels used in every renderer.
const (
	StatusClean     = "clean"
	StatusSkipped   = "skipped"
	StatusSanitized = "sanitized"
	StatusRejected  = "rejected"
	StatusError     = "error"
)

// Status classifies one outcome.
func Status(o batch.FileOutcome) string {
	switch {
	case o.Err != nil:
		return StatusError
	case o.Skipped:
		return StatusSkipped
	case o.Result == nil:
		return StatusError
	case !o.Result.Success:
		return StatusRejected
	case o.Result.Report.WasMalicious:
		return StatusSanitized
	default:
		return StatusClean
	}
}

// Detail is the human-readable reason shown next to a status.
func Detail(o batch.FileOutcome) string {
	switch {
	case o.Err != nil:
		return o.Err.Error()
	case o.Skipped:
		return "unchanged since last clean run"
	case o.Result == nil:
		return ""
	case !o.Result.Success:
		return o.Result.Error.Error()
	default:
		return o.Result.Report.Notes
	}
}

// Summary aggregates a batch.
type Summary struct {
	Files          int `json:"files"`
	Clean          int `json:"clean"`
	Skipped        int `json:"skipped"`
	Sanitized      int `json:"sanitized"`
	Rejected       int `json:"rejected"`
	Errors         int `json:"errors"`
	ReplacedBlocks int `json:"replaced_blocks"`
}

// Summarize counts outcomes by status.
func Summarize(outcomes []batch.FileOutcome) Summary {
	s := Summary{Files: len(outcomes)}
	for _, o := range outcomes {
		switch Status(o) {
		case StatusClean:
			s.Clean++
		case StatusSkipped:
			s.Skipped++
		case StatusSanitized:
			s.Sanitized++
			s.ReplacedBlocks += o.Result.Report.ReplacedBlocks
		case StatusRejected:
			s.Rejected++
		default:
			s.Errors++
		}
	}
	return s
}
