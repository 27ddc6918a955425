package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/varalys/blockscrub/internal/batch"
)

type PrintOptions struct {
	NoColor  bool
	Verbose  bool // list clean and skipped files too
	Duration time.Duration
}

func PrintText(w io.Writer, outcomes []batch.FileOutcome, opts PrintOptions) {
	sum := Summarize(outcomes)
	if sum.Sanitized+sum.Rejected+sum.Errors == 0 {
		fmt.Fprintln(w, "All files valid, nothing replaced ✅")
	}
	for _, o := range outcomes {
		status := Status(o)
		if !opts.Verbose && (status == StatusClean || status == StatusSkipped) {
			continue
		}
		label := status
		if !opts.NoColor {
			label = colorStatus(status)
		}
		fmt.Fprintf(w, "%-9s %-6s %s  %s\n", label, o.Extension, o.Path, Detail(o))
	}
	printFooter(w, sum, opts)
}

func PrintTable(w io.Writer, outcomes []batch.FileOutcome, opts PrintOptions) {
	sum := Summarize(outcomes)
	rows := 0
	table := tablewriter.NewWriter(w)
	table.Header("Status", "Format", "File", "Replaced", "Detail")
	for _, o := range outcomes {
		status := Status(o)
		if !opts.Verbose && (status == StatusClean || status == StatusSkipped) {
			continue
		}
		replaced := "-"
		if status == StatusSanitized || status == StatusClean {
			replaced = strconv.Itoa(o.Result.Report.ReplacedBlocks)
		}
		_ = table.Append([]string{status, o.Extension, o.Path, replaced, Detail(o)})
		rows++
	}
	if rows == 0 {
		fmt.Fprintln(w, "All files valid, nothing replaced ✅")
	} else {
		_ = table.Render()
	}
	printFooter(w, sum, opts)
}

func printFooter(w io.Writer, sum Summary, opts PrintOptions) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Files: %d (clean: %d, skipped: %d, sanitized: %d, rejected: %d, errors: %d)\n",
		sum.Files, sum.Clean, sum.Skipped, sum.Sanitized, sum.Rejected, sum.Errors)
	fmt.Fprintf(w, "Replaced blocks: %d\n", sum.ReplacedBlocks)
	if opts.Duration > 0 {
		fmt.Fprintf(w, "Duration: %.2fs\n", opts.Duration.Seconds())
	}
}

func colorStatus(s string) string {
	switch s {
	case StatusError, StatusRejected:
		return "\x1b[31m" + s + "\x1b[0m" // red
	case StatusSanitized:
		return "\x1b[33m" + s + "\x1b[0m" // yellow
	default:
		return "\x1b[32m" + s + "\x1b[0m" // green
	}
}
