package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/redline/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}

	ew.printf("Redline Document Review\n")
	ew.printf("Document: %s\n", report.Document)
	ew.printf("Model:    %s\n", report.Model)
	ew.println(strings.Repeat("─", 60))
	ew.printf("Units: %d | Batches: %d (%d cached)\n",
		report.Summary.Units, report.Summary.Batches, report.Summary.CacheHits)
	ew.printf("Comments placed: %d (%d grammar, %d spelling, %d style, %d other)\n",
		report.Summary.Placed,
		report.Summary.Counts.Grammar,
		report.Summary.Counts.Spelling,
		report.Summary.Counts.Style,
		report.Summary.Counts.Other,
	)
	if report.Summary.Skipped > 0 {
		ew.printf("Suggestions skipped: %d\n", report.Summary.Skipped)
	}
	if report.Summary.FailedBatches > 0 {
		ew.printf("WARNING: %d batch(es) failed and contributed no suggestions\n",
			report.Summary.FailedBatches)
	}
	ew.println(strings.Repeat("─", 60))

	for _, s := range report.Suggestions {
		ew.printf("\n  unit %d [%d:%d]  %s\n", s.UnitID, s.Start, s.End, s.Category)
		ew.printf("    %q → %q\n", s.Quoted, s.Replacement)
		for _, line := range wrapText(s.Explanation, 70) {
			ew.printf("    %s\n", line)
		}
	}

	if len(report.Skips) > 0 {
		ew.println("\nSkipped suggestions:")
		for _, s := range report.Skips {
			ew.printf("  unit %d %q: %s\n", s.UnitID, s.Quoted, s.Reason)
		}
	}
	if len(report.Failures) > 0 {
		ew.println("\nFailed batches:")
		for _, f := range report.Failures {
			ew.printf("  batch %d (%d units): %s\n", f.Index, f.Units, f.Err)
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Output: %s\n", report.Output)
	ew.printf("Completed in %dms (extract: %dms, LLM: %dms)\n",
		report.Timing.TotalMs, report.Timing.ExtractMs, report.Timing.LLMMs)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

// wrapText wraps text to the given width, breaking on spaces.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	words := strings.Fields(text)
	var lines []string
	var cur strings.Builder
	for _, word := range words {
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
