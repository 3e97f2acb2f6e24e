// Package output formats review reports for display or machine consumption.
//
// Three formats are supported:
//   - text     — human-readable terminal output (default)
//   - json     — full structured JSON report
//   - markdown — a summary table of placed suggestions
//
// Use [NewWriter] to obtain a [Writer] for a format string, or [WriteReport]
// to handle destination selection (stdout or a file) in one call.
package output
