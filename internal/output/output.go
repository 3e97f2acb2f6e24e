// Package output renders run reports in the supported formats.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/redline/internal/review"
)

// Writer renders a report to w.
type Writer interface {
	Write(w io.Writer, report *review.Report) error
}

// NewWriter returns the writer for a format name.
func NewWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// WriteReport writes the report in the given format to outPath, or stdout
// when outPath is empty.
func WriteReport(report *review.Report, format, outPath string) error {
	writer, err := NewWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writer.Write(w, report)
}
