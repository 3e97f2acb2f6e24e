package docx

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
)

const (
	commentsPart     = "word/comments.xml"
	documentRelsPart = "word/_rels/document.xml.rels"
	contentTypesPart = "[Content_Types].xml"

	commentsRelType     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/comments"
	commentsContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.comments+xml"
)

// InjectionError indicates structural corruption at one anchor point. It
// aborts only the suggestion being anchored.
type InjectionError struct {
	Origin int
	Reason string
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("injecting comment at paragraph %d: %s", e.Origin, e.Reason)
}

// CommentRun is one formatted run of a comment body.
type CommentRun struct {
	Text   string
	Color  string // RRGGBB, empty for default
	Strike bool
	Bold   bool
}

type pendingComment struct {
	id         int
	origin     int
	start, end int
	author     string
	runs       []CommentRun
}

// AnchorComment attaches a comment anchor covering [start,end) of the text at
// origin. The anchor is validated against the indexed structure immediately;
// the XML is spliced at Save. The reviewable text is never modified.
func (d *Document) AnchorComment(origin, start, end int, author string, runs []CommentRun) error {
	if origin < 0 || origin >= len(d.paras) {
		return &InjectionError{Origin: origin, Reason: "no such paragraph"}
	}
	p := &d.paras[origin]
	if len(p.runs) == 0 {
		return &InjectionError{Origin: origin, Reason: "paragraph has no text runs"}
	}
	if start < 0 || end < start || end > len(p.text) {
		return &InjectionError{Origin: origin, Reason: fmt.Sprintf("span %d:%d outside text of length %d", start, end, len(p.text))}
	}
	d.pending = append(d.pending, pendingComment{
		id:     d.nextID,
		origin: origin,
		start:  start,
		end:    end,
		author: author,
		runs:   runs,
	})
	d.nextID++
	return nil
}

// edit is a pure byte insertion into document.xml. seq breaks ties at equal
// offsets: lower seq ends up earlier in the output.
type edit struct {
	off int64
	xml []byte
	seq int
}

// materialize applies all pending comment anchors and returns the final part
// set. The receiver is left untouched so Save can be retried.
func (d *Document) materialize() (map[string][]byte, []string, error) {
	parts := make(map[string][]byte, len(d.parts)+1)
	for k, v := range d.parts {
		parts[k] = v
	}
	order := append([]string(nil), d.order...)

	if len(d.pending) == 0 {
		return parts, order, nil
	}

	var edits []edit
	seq := 0
	for _, c := range d.pending {
		startEdit, err := d.anchorEdit(c.origin, c.start, true, c.id)
		if err != nil {
			return nil, nil, err
		}
		endEdit, err := d.anchorEdit(c.origin, c.end, false, c.id)
		if err != nil {
			return nil, nil, err
		}
		startEdit.seq = seq
		endEdit.seq = seq + 1
		seq += 2
		edits = append(edits, startEdit, endEdit)
	}

	// Apply from the back so earlier offsets stay valid. At equal offsets the
	// lower sequence number must land leftmost, so it is applied last.
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].off != edits[j].off {
			return edits[i].off > edits[j].off
		}
		return edits[i].seq > edits[j].seq
	})
	body := d.body
	for _, e := range edits {
		body = append(body[:e.off:e.off], append(e.xml, body[e.off:]...)...)
	}
	parts[documentPart] = body

	comments, created, err := d.commentsXML()
	if err != nil {
		return nil, nil, err
	}
	parts[commentsPart] = comments
	if created {
		order = append(order, commentsPart)
		rels, err := withCommentsRelationship(parts[documentRelsPart])
		if err != nil {
			return nil, nil, err
		}
		parts[documentRelsPart] = rels
		types, err := withCommentsContentType(parts[contentTypesPart])
		if err != nil {
			return nil, nil, err
		}
		parts[contentTypesPart] = types
	}
	return parts, order, nil
}

// anchorEdit builds the insertion for one end of a comment range. Offsets on
// a run boundary insert between runs; offsets inside a plain text run split
// the run in two, duplicating its properties; offsets inside a run carrying
// non-text content snap to the nearest run boundary.
func (d *Document) anchorEdit(origin, off int, isStart bool, id int) (edit, error) {
	p := &d.paras[origin]
	marker := commentRangeEnd(id)
	if isStart {
		marker = commentRangeStart(id)
	}

	for ri := range p.runs {
		r := &p.runs[ri]
		for si := range r.segs {
			s := &r.segs[si]
			if off < s.charStart || off > s.charStart+len(s.text) {
				continue
			}
			rel := off - s.charStart
			if rel == 0 && si == 0 {
				return edit{off: r.start, xml: marker}, nil
			}
			if rel == len(s.text) && si == len(r.segs)-1 {
				return edit{off: r.end, xml: marker}, nil
			}
			if r.mixed || len(r.segs) != 1 {
				// Cannot split cleanly; widen to the run boundary.
				if isStart {
					return edit{off: r.start, xml: marker}, nil
				}
				return edit{off: r.end, xml: marker}, nil
			}
			byteOff, err := contentOffset(d.body[s.contentStart:s.contentEnd], rel)
			if err != nil {
				return edit{}, &InjectionError{Origin: origin, Reason: err.Error()}
			}
			var b bytes.Buffer
			b.WriteString(`</w:t></w:r>`)
			b.Write(marker)
			b.WriteString(`<w:r>`)
			b.Write(r.rPr)
			b.WriteString(`<w:t xml:space="preserve">`)
			return edit{off: s.contentStart + int64(byteOff), xml: b.Bytes()}, nil
		}
	}
	// Offset beyond the last segment (e.g. trailing position in an empty
	// tail): anchor at the last run's boundary.
	last := &p.runs[len(p.runs)-1]
	if isStart {
		return edit{off: last.start, xml: marker}, nil
	}
	return edit{off: last.end, xml: marker}, nil
}

func commentRangeStart(id int) []byte {
	return []byte(fmt.Sprintf(`<w:commentRangeStart w:id="%d"/>`, id))
}

// commentRangeEnd closes the range and carries the reference run that makes
// the comment visible in Word.
func commentRangeEnd(id int) []byte {
	return []byte(fmt.Sprintf(
		`<w:commentRangeEnd w:id="%d"/>`+
			`<w:r><w:rPr><w:rStyle w:val="CommentReference"/></w:rPr>`+
			`<w:commentReference w:id="%d"/></w:r>`, id, id))
}

var commentIDPattern = regexp.MustCompile(`<w:comment\s[^>]*w:id="(\d+)"`)

func (d *Document) existingCommentCount() int {
	data, ok := d.parts[commentsPart]
	if !ok {
		return 0
	}
	next := 0
	for _, m := range commentIDPattern.FindAllSubmatch(data, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n+1 > next {
			next = n + 1
		}
	}
	return next
}

// commentsXML renders the comments part with all pending comments appended.
// created reports whether the part did not exist before.
func (d *Document) commentsXML() (data []byte, created bool, err error) {
	base, ok := d.parts[commentsPart]
	if !ok {
		base = []byte(commentsPartTemplate)
		created = true
	}
	closing := bytes.LastIndex(base, []byte("</w:comments>"))
	if closing < 0 {
		return nil, false, fmt.Errorf("malformed %s: missing closing element", commentsPart)
	}

	var b bytes.Buffer
	b.Write(base[:closing])
	now := time.Now().Format("2006-01-02T15:04:05Z07:00")
	for _, c := range d.pending {
		fmt.Fprintf(&b, `<w:comment w:id="%d" w:author="%s" w:date="%s">`,
			c.id, escapeAttr(c.author), now)
		b.WriteString(`<w:p>`)
		for _, r := range c.runs {
			if r.Text == "" {
				continue
			}
			b.WriteString(`<w:r>`)
			writeRunProperties(&b, r)
			b.WriteString(`<w:t xml:space="preserve">`)
			b.WriteString(escapeText(r.Text))
			b.WriteString(`</w:t></w:r>`)
		}
		b.WriteString(`</w:p></w:comment>`)
	}
	b.Write(base[closing:])
	return b.Bytes(), created, nil
}

func writeRunProperties(b *bytes.Buffer, r CommentRun) {
	if !r.Strike && !r.Bold && r.Color == "" {
		return
	}
	b.WriteString(`<w:rPr>`)
	if r.Bold {
		b.WriteString(`<w:b/>`)
	}
	if r.Strike {
		b.WriteString(`<w:strike/>`)
	}
	if r.Color != "" {
		fmt.Fprintf(b, `<w:color w:val="%s"/>`, escapeAttr(r.Color))
	}
	b.WriteString(`</w:rPr>`)
}

var relIDPattern = regexp.MustCompile(`Id="rId(\d+)"`)

// withCommentsRelationship registers the comments part in the document's
// relationship part under the next free rId.
func withCommentsRelationship(rels []byte) ([]byte, error) {
	if rels == nil {
		return nil, fmt.Errorf("missing %s", documentRelsPart)
	}
	if bytes.Contains(rels, []byte(commentsRelType)) {
		return rels, nil
	}
	next := 1
	for _, m := range relIDPattern.FindAllSubmatch(rels, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil && n+1 > next {
			next = n + 1
		}
	}
	closing := bytes.LastIndex(rels, []byte("</Relationships>"))
	if closing < 0 {
		return nil, fmt.Errorf("malformed %s", documentRelsPart)
	}
	rel := fmt.Sprintf(`<Relationship Id="rId%d" Type="%s" Target="comments.xml"/>`, next, commentsRelType)
	var b bytes.Buffer
	b.Write(rels[:closing])
	b.WriteString(rel)
	b.Write(rels[closing:])
	return b.Bytes(), nil
}

func withCommentsContentType(types []byte) ([]byte, error) {
	if types == nil {
		return nil, fmt.Errorf("missing %s", contentTypesPart)
	}
	if bytes.Contains(types, []byte(commentsContentType)) {
		return types, nil
	}
	closing := bytes.LastIndex(types, []byte("</Types>"))
	if closing < 0 {
		return nil, fmt.Errorf("malformed %s", contentTypesPart)
	}
	override := fmt.Sprintf(`<Override PartName="/%s" ContentType="%s"/>`, commentsPart, commentsContentType)
	var b bytes.Buffer
	b.Write(types[:closing])
	b.WriteString(override)
	b.Write(types[closing:])
	return b.Bytes(), nil
}
