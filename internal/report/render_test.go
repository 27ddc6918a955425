package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/varalys/blockscrub/internal/batch"
	"github.com/varalys/blockscrub/internal/types"
)

func sampleOutcomes() []batch.FileOutcome {
	return []batch.FileOutcome{
		{Path: "a.blk", Extension: ".blk", Result: types.Succeeded(types.SanitizationReport{Blocks: 2, Notes: "2 blocks valid; no changes"})},
		{Path: "b.blk", Extension: ".blk", Result: types.Succeeded(types.SanitizationReport{Blocks: 3, ReplacedBlocks: 2, Notes: "replaced 2 of 3 blocks"})},
		{Path: "c.blk", Extension: ".blk", Result: types.Failed(types.NewProcessingError(types.CodeInvalidHeader, "expected header"))},
		{Path: "d.blk", Extension: ".blk", Err: errors.New("permission denied")},
		{Path: "e.blk", Extension: ".blk", Skipped: true},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleOutcomes())
	want := Summary{Files: 5, Clean: 1, Skipped: 1, Sanitized: 1, Rejected: 1, Errors: 1, ReplacedBlocks: 2}
	if s != want {
		t.Fatalf("Summarize = %+v, want %+v", s, want)
	}
}

func TestPrintText_AllClean_ShowsFooter(t *testing.T) {
	var buf bytes.Buffer
	clean := sampleOutcomes()[:1]
	PrintText(&buf, clean, PrintOptions{Duration: 1200 * time.Millisecond})
	out := buf.String()
	if !strings.Contains(out, "All files valid") {
		t.Fatalf("expected friendly all-clean message; got: %q", out)
	}
	if !strings.Contains(out, "Files: 1 (clean: 1") {
		t.Fatalf("expected footer with file counts; got: %q", out)
	}
	if !strings.Contains(out, "Duration: 1.20s") {
		t.Fatalf("expected duration in footer; got: %q", out)
	}
	if strings.Contains(out, "a.blk") {
		t.Fatalf("clean files are hidden unless verbose; got: %q", out)
	}
}

func TestPrintText_WithProblems(t *testing.T) {
	var buf bytes.Buffer
	PrintText(&buf, sampleOutcomes(), PrintOptions{NoColor: true})
	out := buf.String()
	for _, want := range []string{"sanitized", "b.blk", "rejected", "InvalidHeader: expected header", "permission denied", "Replaced blocks: 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output; got: %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("NoColor output must not contain escapes; got: %q", out)
	}
}

func TestPrintText_Verbose(t *testing.T) {
	var buf bytes.Buffer
	PrintText(&buf, sampleOutcomes(), PrintOptions{NoColor: true, Verbose: true})
	if !strings.Contains(buf.String(), "e.blk") || !strings.Contains(buf.String(), "unchanged since last clean run") {
		t.Fatalf("verbose output should list skipped files; got: %q", buf.String())
	}
}

func TestPrintTable_WithProblems(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, sampleOutcomes(), PrintOptions{NoColor: true})
	out := buf.String()
	if !strings.Contains(out, "STATUS") {
		t.Fatalf("expected table header with STATUS; got: %q", out)
	}
	if !strings.Contains(out, "c.blk") {
		t.Fatalf("expected rejected file in table; got: %q", out)
	}
	if !strings.Contains(out, "│") {
		t.Fatalf("expected table borders; got: %q", out)
	}
}

func TestPrintTable_AllClean_ShowsFooter(t *testing.T) {
	var buf bytes.Buffer
	PrintTable(&buf, nil, PrintOptions{})
	out := buf.String()
	if !strings.Contains(out, "All files valid") {
		t.Fatalf("expected friendly all-clean message; got: %q", out)
	}
	if !strings.Contains(out, "Files: 0") {
		t.Fatalf("expected footer; got: %q", out)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleOutcomes(), time.Second); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v; body=%s", err, buf.String())
	}
	if len(doc.Files) != 5 || doc.Summary.Files != 5 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.Files[1].Status != StatusSanitized || doc.Files[1].Result.Report.ReplacedBlocks != 2 {
		t.Fatalf("unexpected sanitized entry: %+v", doc.Files[1])
	}
	if doc.Files[2].Result.Error.Code != types.CodeInvalidHeader {
		t.Fatalf("expected error code in result: %+v", doc.Files[2])
	}
	if doc.Files[3].Error != "permission denied" {
		t.Fatalf("expected io error text: %+v", doc.Files[3])
	}
	if doc.DurationMS != 1000 {
		t.Fatalf("expected duration_ms=1000, got %v", doc.DurationMS)
	}
}

func TestShouldFail(t *testing.T) {
	all := sampleOutcomes()
	clean := all[:1]
	dirty := all[:2]

	if ShouldFail(clean, FailOnMalicious) {
		t.Fatal("clean batch must pass")
	}
	if !ShouldFail(dirty, FailOnMalicious) {
		t.Fatal("sanitized file must fail with fail-on=malicious")
	}
	if ShouldFail(dirty, FailOnError) {
		t.Fatal("sanitized file must pass with fail-on=error")
	}
	if !ShouldFail(all, FailOnError) {
		t.Fatal("rejected file must fail with fail-on=error")
	}
	if ShouldFail(all, FailOnNever) {
		t.Fatal("fail-on=never must pass")
	}
}

func TestParseFailOn(t *testing.T) {
	if f, err := ParseFailOn(""); err != nil || f != FailOnMalicious {
		t.Fatalf("default = %q, %v", f, err)
	}
	if f, err := ParseFailOn("error"); err != nil || f != FailOnError {
		t.Fatalf("error = %q, %v", f, err)
	}
	if _, err := ParseFailOn("high"); err == nil {
		t.Fatal("expected error for unknown value")
	}
}
