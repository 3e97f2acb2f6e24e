// Package diffview renders word-level diffs between original and suggested
// text, for the terminal (lipgloss-styled) and for Word comment bodies
// (formatted runs with strikethrough deletions and colored insertions).
package diffview
