package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/varalys/blockscrub/internal/batch"
	"github.com/varalys/blockscrub/internal/types"
)

// FileJSON is the JSON shape of one outcome.
type FileJSON struct {
	Path       string               `json:"path"`
	Output     string               `json:"output,omitempty"`
	Extension  string               `json:"extension"`
	Status     string               `json:"status"`
	Result     *types.ProcessResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	DurationMS float64              `json:"duration_ms"`
}

// Document is the top-level JSON report.
type Document struct {
	Files      []FileJSON `json:"files"`
	Summary    Summary    `json:"summary"`
	DurationMS float64    `json:"duration_ms,omitempty"`
}

// WriteJSON encodes outcomes with their summary.
func WriteJSON(w io.Writer, outcomes []batch.FileOutcome, took time.Duration) error {
	doc := Document{
		Files:      make([]FileJSON, 0, len(outcomes)),
		Summary:    Summarize(outcomes),
		DurationMS: ms(took),
	}
	for _, o := range outcomes {
		f := FileJSON{
			Path:       o.Path,
			Output:     o.Output,
			Extension:  o.Extension,
			Status:     Status(o),
			Result:     o.Result,
			DurationMS: ms(o.Duration),
		}
		if o.Err != nil {
			f.Error = o.Err.Error()
		}
		doc.Files = append(doc.Files, f)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
