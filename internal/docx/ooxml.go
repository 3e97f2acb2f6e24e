package docx

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const commentsPartTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:comments xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"></w:comments>`

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeText(s string) string { return textEscaper.Replace(s) }

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// contentOffset maps a byte offset into the decoded text of a w:t segment to
// the corresponding byte offset in its raw, entity-encoded XML content.
func contentOffset(raw []byte, textOff int) (int, error) {
	decoded := 0
	i := 0
	for i < len(raw) && decoded < textOff {
		if raw[i] == '&' {
			semi := -1
			for j := i + 1; j < len(raw) && j < i+12; j++ {
				if raw[j] == ';' {
					semi = j
					break
				}
			}
			if semi < 0 {
				return 0, fmt.Errorf("unterminated entity in text content")
			}
			ent, err := decodeEntity(string(raw[i : semi+1]))
			if err != nil {
				return 0, err
			}
			decoded += len(ent)
			i = semi + 1
			continue
		}
		decoded++
		i++
	}
	if decoded < textOff {
		return 0, fmt.Errorf("offset %d beyond segment content", textOff)
	}
	return i, nil
}

func decodeEntity(ent string) (string, error) {
	switch ent {
	case "&amp;":
		return "&", nil
	case "&lt;":
		return "<", nil
	case "&gt;":
		return ">", nil
	case "&quot;":
		return `"`, nil
	case "&apos;":
		return "'", nil
	}
	body := strings.TrimSuffix(strings.TrimPrefix(ent, "&"), ";")
	if strings.HasPrefix(body, "#") {
		numeric := strings.TrimPrefix(body, "#")
		base := 10
		if strings.HasPrefix(numeric, "x") || strings.HasPrefix(numeric, "X") {
			numeric = numeric[1:]
			base = 16
		}
		n, err := strconv.ParseInt(numeric, base, 32)
		if err != nil {
			return "", fmt.Errorf("invalid character reference %q", ent)
		}
		buf := make([]byte, utf8.UTFMax)
		return string(buf[:utf8.EncodeRune(buf, rune(n))]), nil
	}
	return "", fmt.Errorf("unknown entity %q", ent)
}
