package report

import (
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/varalys/blockscrub/internal/batch"
	"github.com/varalys/blockscrub/internal/types"
)

type sarif struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool      `json:"tool"`
	Results    []sarifResult  `json:"results"`
	Properties map[string]any `json:"properties,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID    string       `json:"ruleId"`
	RuleIndex int          `json:"ruleIndex"`
	Level     string       `json:"level"`
	Message   sarifMessage `json:"message"`
	Locations []sarifLoc   `json:"locations"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLoc struct {
	PhysicalLocation sarifPhys `json:"physicalLocation"`
}

type sarifPhys struct {
	ArtifactLocation sarifArt `json:"artifactLocation"`
}

type sarifArt struct {
	URI string `json:"uri"`
}

// RuleReplacedBlocks identifies sanitized files in SARIF output.
const RuleReplacedBlocks = "ReplacedBlocks"

var ruleText = map[string]string{
	RuleReplacedBlocks:               "Blocks that did not match the grammar were replaced",
	string(types.CodeEmptyFile):      "File is empty or whitespace only",
	string(types.CodeInvalidHeader):  "File does not start with the format header",
	string(types.CodeInvalidFooter):  "File does not end with the format footer",
	string(types.CodeInvalidBlock):   "Block does not match the grammar",
	string(types.CodeUnexpectedByte): "Block exceeds the size limit",
	string(types.CodeTruncatedFile):  "File ends in the middle of a construct",
	string(types.CodeTrailingData):   "Data after the footer",
	string(types.CodeInvalidFormat):  "No format registered for the file extension",
	"IOError":                        "File could not be read or written",
}

// WriteSARIF writes rejected and sanitized files as SARIF 2.1.0.
func WriteSARIF(w io.Writer, outcomes []batch.FileOutcome, version string) error {
	run := sarifRun{
		Tool:       sarifTool{Driver: sarifDriver{Name: "blockscrub", Version: version}},
		Results:    []sarifResult{},
		Properties: map[string]any{"summary": Summarize(outcomes)},
	}
	index := map[string]int{}
	ruleIndex := func(id string) int {
		if i, ok := index[id]; ok {
			return i
		}
		index[id] = len(run.Tool.Driver.Rules)
		run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{ID: id, ShortDescription: sarifMessage{Text: ruleText[id]}})
		return index[id]
	}
	for _, o := range outcomes {
		var id, level string
		switch Status(o) {
		case StatusSanitized:
			id, level = RuleReplacedBlocks, "warning"
		case StatusRejected:
			id, level = string(o.Result.Error.Code), "error"
		case StatusError:
			id, level = "IOError", "error"
		default:
			continue
		}
		run.Results = append(run.Results, sarifResult{
			RuleID:    id,
			RuleIndex: ruleIndex(id),
			Level:     level,
			Message:   sarifMessage{Text: Detail(o)},
			Locations: []sarifLoc{{
				PhysicalLocation: sarifPhys{ArtifactLocation: sarifArt{URI: filepath.ToSlash(o.Path)}},
			}},
		})
	}
	doc := sarif{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{run},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
