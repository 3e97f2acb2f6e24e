package output

import (
	"io"

	"github.com/dshills/redline/internal/review"
)

// MarkdownWriter outputs the report as a markdown document.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}

	ew.printf("# Redline Document Review\n\n")
	ew.printf("- **Document**: `%s`\n", report.Document)
	ew.printf("- **Output**: `%s`\n", report.Output)
	ew.printf("- **Model**: `%s`\n", report.Model)
	ew.printf("- **Comments placed**: %d\n", report.Summary.Placed)
	ew.printf("- **Suggestions skipped**: %d\n", report.Summary.Skipped)
	ew.printf("- **Failed batches**: %d\n\n", report.Summary.FailedBatches)

	if len(report.Suggestions) > 0 {
		ew.printf("| Unit | Span | Category | Quoted | Replacement | Explanation |\n")
		ew.printf("|------|------|----------|--------|-------------|-------------|\n")
		for _, s := range report.Suggestions {
			ew.printf("| %d | %d:%d | %s | %s | %s | %s |\n",
				s.UnitID, s.Start, s.End, s.Category,
				escapeCell(s.Quoted), escapeCell(s.Replacement), escapeCell(s.Explanation))
		}
		ew.printf("\n")
	}

	if len(report.Failures) > 0 {
		ew.printf("## Failed batches\n\n")
		for _, f := range report.Failures {
			ew.printf("- batch %d (%d units): %s\n", f.Index, f.Units, f.Err)
		}
		ew.printf("\n")
	}

	if len(report.Skips) > 0 {
		ew.printf("## Skipped suggestions\n\n")
		for _, s := range report.Skips {
			ew.printf("- unit %d `%s`: %s\n", s.UnitID, s.Quoted, s.Reason)
		}
	}

	return ew.err
}

func escapeCell(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '|':
			out = append(out, '\\', '|')
		case '\n':
			out = append(out, ' ')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
