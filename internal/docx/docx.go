package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const documentPart = "word/document.xml"

// ExtractionError indicates the document container or its structure could not
// be traversed. It is fatal for a review run.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Unit is an addressable block of reviewable text. ID is the unit's ordinal
// among non-empty paragraphs; Origin addresses the paragraph in the live
// document structure and stays valid for the lifetime of the Document.
type Unit struct {
	ID     int
	Text   string
	Origin int
}

// seg is one w:t text segment inside a run. contentStart/contentEnd bound the
// raw (possibly entity-encoded) text bytes in document.xml; charStart is the
// byte offset of the decoded text within the owning paragraph's text.
type seg struct {
	text         string
	contentStart int64
	contentEnd   int64
	charStart    int
}

type run struct {
	start, end int64
	rPr        []byte
	segs       []seg
	mixed      bool // run holds non-text content (tabs, breaks, drawings)
}

type paragraph struct {
	start, end int64
	runs       []run
	text       string
}

// Document is an opened .docx container. Parts other than document.xml and
// the comments machinery are carried through to Save byte-for-byte.
type Document struct {
	path    string
	parts   map[string][]byte
	order   []string
	body    []byte
	paras   []paragraph
	pending []pendingComment
	nextID  int
}

// Open reads a .docx container and indexes its paragraph structure.
func Open(path string) (*Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer zr.Close()

	d := &Document{
		path:  path,
		parts: make(map[string][]byte, len(zr.File)),
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, &ExtractionError{Path: path, Err: fmt.Errorf("part %s: %w", f.Name, err)}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &ExtractionError{Path: path, Err: fmt.Errorf("part %s: %w", f.Name, err)}
		}
		d.parts[f.Name] = data
		d.order = append(d.order, f.Name)
	}

	body, ok := d.parts[documentPart]
	if !ok {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("missing %s", documentPart)}
	}
	d.body = body

	if err := d.index(); err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	d.nextID = d.existingCommentCount()
	return d, nil
}

// index scans document.xml once, recording byte ranges for every paragraph,
// run and text segment in document order. Paragraphs nested inside drawings
// (text boxes) are not indexed; table cell paragraphs are.
func (d *Document) index() error {
	dec := xml.NewDecoder(bytes.NewReader(d.body))
	var (
		curP   *paragraph
		curR   *run
		inT    bool
		pDepth int
		rDepth int
		depth  int
	)
	for {
		tokStart := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed %s: %w", documentPart, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			isW := t.Name.Space == wordNS
			switch {
			case isW && t.Name.Local == "p" && curP == nil:
				d.paras = append(d.paras, paragraph{start: tokStart})
				curP = &d.paras[len(d.paras)-1]
				pDepth = depth
			case isW && t.Name.Local == "r" && curP != nil && curR == nil:
				curP.runs = append(curP.runs, run{start: tokStart})
				curR = &curP.runs[len(curP.runs)-1]
				rDepth = depth
			case isW && t.Name.Local == "rPr" && curR != nil && !inT:
				if err := dec.Skip(); err != nil {
					return fmt.Errorf("malformed run properties: %w", err)
				}
				curR.rPr = d.body[tokStart:dec.InputOffset()]
				continue // Skip consumed the matching end element
			case isW && t.Name.Local == "t" && curR != nil:
				curR.segs = append(curR.segs, seg{
					contentStart: dec.InputOffset(),
					contentEnd:   dec.InputOffset(),
				})
				inT = true
			default:
				if curR != nil && !inT {
					curR.mixed = true
				}
			}
			depth++
		case xml.CharData:
			if inT && curR != nil && len(curR.segs) > 0 {
				s := &curR.segs[len(curR.segs)-1]
				s.text += string(t)
				s.contentEnd = dec.InputOffset()
			}
		case xml.EndElement:
			depth--
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inT = false
			case "r":
				if curR != nil && depth == rDepth {
					curR.end = dec.InputOffset()
					curR = nil
				}
			case "p":
				if curP != nil && depth == pDepth {
					curP.end = dec.InputOffset()
					curP.finish()
					curP = nil
				}
			}
		}
	}
	if curP != nil || curR != nil {
		return fmt.Errorf("unbalanced structure in %s", documentPart)
	}
	return nil
}

// finish assembles the paragraph text and records each segment's char offset.
func (p *paragraph) finish() {
	var b strings.Builder
	for ri := range p.runs {
		for si := range p.runs[ri].segs {
			s := &p.runs[ri].segs[si]
			s.charStart = b.Len()
			b.WriteString(s.text)
		}
	}
	p.text = b.String()
}

// Units returns the ordered reviewable units. Paragraphs whose text is empty
// or pure whitespace are excluded; concatenating the returned texts in order
// reproduces the document's reviewable text.
func (d *Document) Units() []Unit {
	var units []Unit
	for i := range d.paras {
		if strings.TrimSpace(d.paras[i].text) == "" {
			continue
		}
		units = append(units, Unit{
			ID:     len(units),
			Text:   d.paras[i].text,
			Origin: i,
		})
	}
	return units
}

// UnitText returns the live text at an origin, or false if the origin is
// out of range.
func (d *Document) UnitText(origin int) (string, bool) {
	if origin < 0 || origin >= len(d.paras) {
		return "", false
	}
	return d.paras[origin].text, true
}

// ReviewedPath derives the output path for a reviewed copy: the `_reviewed`
// suffix is inserted before the file extension.
func ReviewedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_reviewed" + ext
}

// Save writes a copy of the container with all anchored comments applied.
// The original file is never touched.
func (d *Document) Save(path string) error {
	parts, order, err := d.materialize()
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	zw := zip.NewWriter(out)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			out.Close()
			return fmt.Errorf("writing part %s: %w", name, err)
		}
		if _, err := w.Write(parts[name]); err != nil {
			out.Close()
			return fmt.Errorf("writing part %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return out.Close()
}
