package review

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/dshills/redline/internal/docx"
)

// DefaultAlignThreshold is the minimum normalized similarity for accepting a
// fuzzy match. Below it the suggestion is reported unplaced rather than
// anchored at a guess.
const DefaultAlignThreshold = 0.75

// AlignmentError reports that a suggestion's quoted text could not be located
// in its unit with enough confidence. Non-fatal: the suggestion is skipped.
type AlignmentError struct {
	UnitID int
	Quoted string
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("aligning %q in unit %d: %s", e.Quoted, e.UnitID, e.Reason)
}

// Aligner locates suggestion quotes inside unit text, tolerating whitespace,
// punctuation, and case drift, and falling back to bounded fuzzy matching.
type Aligner struct {
	threshold float64
}

// NewAligner creates an Aligner. threshold <= 0 selects the default.
func NewAligner(threshold float64) *Aligner {
	if threshold <= 0 {
		threshold = DefaultAlignThreshold
	}
	return &Aligner{threshold: threshold}
}

// Align locates the span of unit text a suggestion refers to. The strategies
// are applied strictly in order: exact substring search, whitespace-collapsed
// search, punctuation-trimmed search, case-folded search, then fuzzy window
// search accepted only above the similarity threshold. Ties resolve to the
// earliest occurrence.
func (a *Aligner) Align(unit docx.Unit, s Suggestion) (AlignedSuggestion, error) {
	quote := s.Quoted
	if quote == "" {
		return AlignedSuggestion{}, &AlignmentError{UnitID: unit.ID, Quoted: quote, Reason: "empty quote"}
	}

	if i := strings.Index(unit.Text, quote); i >= 0 {
		return aligned(unit, s, i, i+len(quote)), nil
	}

	norm := normalizeText(unit.Text, false)
	folded := normalizeText(unit.Text, true)

	candidates := []struct {
		hay normText
		q   string
	}{
		{norm, collapseSpace(quote, false)},
		{norm, trimPunct(collapseSpace(quote, false))},
		{folded, collapseSpace(quote, true)},
		{folded, trimPunct(collapseSpace(quote, true))},
	}
	for _, c := range candidates {
		if c.q == "" {
			continue
		}
		if i := strings.Index(c.hay.s, c.q); i >= 0 {
			start, end := c.hay.span(i, i+len(c.q))
			return aligned(unit, s, start, end), nil
		}
	}

	start, end, score := bestWindow(folded.s, collapseSpace(quote, true))
	if score < a.threshold {
		return AlignedSuggestion{}, &AlignmentError{
			UnitID: unit.ID,
			Quoted: quote,
			Reason: fmt.Sprintf("best fuzzy match scored %.2f, below threshold %.2f", score, a.threshold),
		}
	}
	os, oe := folded.span(start, end)
	return aligned(unit, s, os, oe), nil
}

func aligned(unit docx.Unit, s Suggestion, start, end int) AlignedSuggestion {
	return AlignedSuggestion{
		Suggestion: s,
		Origin:     unit.Origin,
		Start:      start,
		End:        end,
	}
}

// similarity is the single place the fuzzy acceptance policy lives: one minus
// the Levenshtein distance over the longer length. Pure so the threshold and
// tie-break behavior stay independently testable.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// bestWindow slides a quote-sized rune window over the haystack and returns
// the byte span of the highest-scoring window. Earlier windows win ties.
func bestWindow(hay, quote string) (start, end int, score float64) {
	hr := []rune(hay)
	q := []rune(quote)
	if len(q) == 0 || len(hr) == 0 {
		return 0, 0, 0
	}
	if len(hr) <= len(q) {
		return 0, len(hay), similarity(hay, quote)
	}

	// Byte offset of every rune plus the terminal offset.
	offs := make([]int, len(hr)+1)
	for i, pos := 0, 0; i < len(hr); i++ {
		offs[i] = pos
		pos += len(string(hr[i]))
		offs[i+1] = pos
	}

	best := -1.0
	bi := 0
	for i := 0; i+len(q) <= len(hr); i++ {
		s := similarity(string(hr[i:i+len(q)]), quote)
		if s > best {
			best = s
			bi = i
		}
	}
	return offs[bi], offs[bi+len(q)], best
}

// normText is a normalized rendition of unit text with byte-level maps back
// to the original string.
type normText struct {
	s     string
	start []int // per normalized byte: original offset of the source rune
	end   []int // per normalized byte: original offset just past the source
}

// span maps a normalized byte range back to original offsets.
func (n normText) span(i, j int) (int, int) {
	if len(n.start) == 0 || i >= len(n.start) {
		return 0, 0
	}
	if j > len(n.end) {
		j = len(n.end)
	}
	return n.start[i], n.end[j-1]
}

// normalizeText collapses whitespace runs to single spaces and optionally
// case-folds, tracking the original byte range behind every normalized byte.
func normalizeText(text string, fold bool) normText {
	var b strings.Builder
	var starts, ends []int

	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			runStart := i
			for i < len(text) {
				r2, sz := utf8.DecodeRuneInString(text[i:])
				if !unicode.IsSpace(r2) {
					break
				}
				i += sz
			}
			b.WriteByte(' ')
			starts = append(starts, runStart)
			ends = append(ends, i)
			continue
		}
		out := r
		if fold {
			out = unicode.ToLower(r)
		}
		n := b.Len()
		b.WriteRune(out)
		for ; n < b.Len(); n++ {
			starts = append(starts, i)
			ends = append(ends, i+size)
		}
		i += size
	}
	return normText{s: b.String(), start: starts, end: ends}
}

// collapseSpace normalizes a quote the same way normalizeText normalizes unit
// text, plus trimming the outer whitespace.
func collapseSpace(s string, fold bool) string {
	fields := strings.Fields(s)
	joined := strings.Join(fields, " ")
	if fold {
		joined = strings.ToLower(joined)
	}
	return joined
}

// trimPunct strips leading and trailing punctuation from a quote.
func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r)
	})
}
