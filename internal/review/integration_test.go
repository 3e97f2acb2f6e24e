package review

import (
	"archive/zip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/redline/internal/cache"
	"github.com/dshills/redline/internal/docx"
)

func buildDocx(t *testing.T, paragraphs ...string) string {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, p)
	}
	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	parts := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`,
		"_rels/.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		"word/document.xml": document,
	}

	path := filepath.Join(t.TempDir(), "input.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, data := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

// Full pipeline: extract, review with a canned model, align, anchor, save,
// reopen and verify the text survived and the comments landed.
func TestReview_EndToEnd(t *testing.T) {
	path := buildDocx(t, "Their going to the store.", "She dont like it.")

	doc, err := docx.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	units := doc.Units()
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}

	response := `[
		{"unit": 0, "quote": "Their going", "replacement": "They're going", "explanation": "Wrong homophone.", "category": "grammar"},
		{"unit": 1, "quote": "dont", "replacement": "don't", "explanation": "Missing apostrophe.", "category": "spelling"}
	]`
	client := &fakeClient{responses: []string{response}}
	c, err := cache.New(true, t.TempDir())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := NewEngine(client, c, log, Options{Model: "m"})

	res, err := engine.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Placed) != 2 {
		t.Fatalf("placed %d, want 2", len(res.Placed))
	}
	if res.Placed[0].Start != 0 || res.Placed[0].End != 11 {
		t.Errorf("first span = %d:%d, want 0:11", res.Placed[0].Start, res.Placed[0].End)
	}
	if res.Placed[1].Start != 4 || res.Placed[1].End != 8 {
		t.Errorf("second span = %d:%d, want 4:8", res.Placed[1].Start, res.Placed[1].End)
	}

	for _, s := range res.Placed {
		body := []docx.CommentRun{
			{Text: s.Explanation + ": ", Bold: true},
			{Text: s.Quoted, Color: "FF0000", Strike: true},
			{Text: " " + s.Replacement, Color: "00B050"},
		}
		if err := doc.AnchorComment(s.Origin, s.Start, s.End, "redline", body); err != nil {
			t.Fatalf("AnchorComment: %v", err)
		}
	}

	out := docx.ReviewedPath(path)
	if err := doc.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(out, "_reviewed.docx") {
		t.Errorf("output path = %q", out)
	}

	reviewed, err := docx.Open(out)
	if err != nil {
		t.Fatalf("Open reviewed: %v", err)
	}
	got := reviewed.Units()
	if len(got) != 2 || got[0].Text != units[0].Text || got[1].Text != units[1].Text {
		t.Errorf("reviewed text changed: %+v", got)
	}

	summary := ComputeSummary(res.Placed, res.Skips, res.Failures)
	if summary.Placed != 2 || summary.Counts.Grammar != 1 || summary.Counts.Spelling != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

// A batch that exhausts retries still leaves the rest of the run intact: the
// document is written and the summary reports the failure.
func TestReview_EndToEnd_FailedBatch(t *testing.T) {
	path := buildDocx(t, "Their going to the store.", "She dont like it.")

	doc, err := docx.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	units := doc.Units()

	client := &fakeClient{
		errs: []error{fmt.Errorf("provider unavailable"), nil},
		responses: []string{
			"",
			`[{"unit": 1, "quote": "dont", "replacement": "don't", "explanation": "Missing apostrophe.", "category": "spelling"}]`,
		},
	}
	c, err := cache.New(true, t.TempDir())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := NewEngine(client, c, log, Options{Model: "m", Budget: 26, Concurrency: 1})

	res, err := engine.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Batches != 2 || len(res.Failures) != 1 {
		t.Fatalf("Batches = %d, Failures = %d", res.Batches, len(res.Failures))
	}
	if len(res.Placed) != 1 {
		t.Fatalf("placed %d, want 1 from the surviving batch", len(res.Placed))
	}

	s := res.Placed[0]
	if err := doc.AnchorComment(s.Origin, s.Start, s.End, "redline", []docx.CommentRun{{Text: "note"}}); err != nil {
		t.Fatalf("AnchorComment: %v", err)
	}
	out := docx.ReviewedPath(path)
	if err := doc.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}

	summary := ComputeSummary(res.Placed, res.Skips, res.Failures)
	if summary.FailedBatches != 1 {
		t.Errorf("FailedBatches = %d, want 1", summary.FailedBatches)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}
