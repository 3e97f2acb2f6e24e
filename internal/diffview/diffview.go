// Package diffview renders the difference between original and suggested text
// for two surfaces: the terminal and Word comment bodies.
package diffview

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dshills/redline/internal/docx"
)

const (
	deleteColor = "FF0000"
	insertColor = "00B050"
)

var (
	deletedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Strikethrough(true)
	insertedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func semanticDiff(original, suggested string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, suggested, false)
	return dmp.DiffCleanupSemantic(diffs)
}

// Console renders a colored inline diff for terminal output.
func Console(original, suggested string) string {
	var b strings.Builder
	for _, d := range semanticDiff(original, suggested) {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString(deletedStyle.Render(d.Text))
		case diffmatchpatch.DiffInsert:
			b.WriteString(insertedStyle.Render(d.Text))
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// CommentBody composes the formatted runs of a Word comment: the explanation
// first, then an inline diff with red strikethrough deletions and green
// insertions.
func CommentBody(explanation, original, suggested string) []docx.CommentRun {
	var runs []docx.CommentRun
	if explanation != "" {
		runs = append(runs, docx.CommentRun{Text: explanation + ": ", Bold: true})
	}
	for _, d := range semanticDiff(original, suggested) {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			runs = append(runs, docx.CommentRun{Text: d.Text, Color: deleteColor, Strike: true})
		case diffmatchpatch.DiffInsert:
			runs = append(runs, docx.CommentRun{Text: d.Text, Color: insertColor})
		default:
			runs = append(runs, docx.CommentRun{Text: d.Text})
		}
	}
	return runs
}
