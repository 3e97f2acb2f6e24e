package review

import "github.com/dshills/redline/internal/docx"

// Category classifies a suggestion.
type Category string

const (
	CategoryGrammar  Category = "grammar"
	CategorySpelling Category = "spelling"
	CategoryStyle    Category = "style"
	CategoryOther    Category = "other"
)

// ParseCategory maps a model-reported category onto the known set. ok is
// false for anything unrecognized; such suggestions fail validation.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryGrammar, CategorySpelling, CategoryStyle, CategoryOther:
		return Category(s), true
	}
	return "", false
}

// Suggestion is one model-proposed correction, validated but not yet located
// in the source text.
type Suggestion struct {
	UnitID      int      `json:"unitId"`
	Quoted      string   `json:"quoted"`
	Replacement string   `json:"replacement"`
	Explanation string   `json:"explanation"`
	Category    Category `json:"category"`
}

// AlignedSuggestion is a Suggestion located at an exact span of its unit's
// text. Invariant: 0 <= Start <= End <= len(unit text).
type AlignedSuggestion struct {
	Suggestion
	Origin int `json:"origin"`
	Start  int `json:"start"`
	End    int `json:"end"`
}

// Batch is a size-bounded, ordered group of units reviewed in one prompt.
type Batch struct {
	Index         int
	Units         []docx.Unit
	EstimatedSize int
}

// BatchFailure records a batch that contributed zero suggestions.
type BatchFailure struct {
	Index int    `json:"index"`
	Units int    `json:"units"`
	Err   string `json:"error"`
	Auth  bool   `json:"-"`
}

// Skip records a single suggestion that was dropped, with the diagnostic.
type Skip struct {
	UnitID int    `json:"unitId"`
	Quoted string `json:"quoted"`
	Reason string `json:"reason"`
}

// CategoryCounts tallies placed suggestions by category.
type CategoryCounts struct {
	Grammar  int `json:"grammar"`
	Spelling int `json:"spelling"`
	Style    int `json:"style"`
	Other    int `json:"other"`
}

// Summary is the user-visible accounting for one run.
type Summary struct {
	Units         int            `json:"units"`
	Batches       int            `json:"batches"`
	CacheHits     int            `json:"cacheHits"`
	Placed        int            `json:"placed"`
	Skipped       int            `json:"skipped"`
	FailedBatches int            `json:"failedBatches"`
	Counts        CategoryCounts `json:"counts"`
}

// Report is the top-level result of one review run.
type Report struct {
	Tool        string              `json:"tool"`
	Version     string              `json:"version"`
	Document    string              `json:"document"`
	Output      string              `json:"output"`
	Model       string              `json:"model"`
	Summary     Summary             `json:"summary"`
	Suggestions []AlignedSuggestion `json:"suggestions"`
	Skips       []Skip              `json:"skips,omitempty"`
	Failures    []BatchFailure      `json:"failedBatches,omitempty"`
	Timing      Timing              `json:"timing"`
}

// Timing contains run performance metrics.
type Timing struct {
	ExtractMs int64 `json:"extractMs"`
	LLMMs     int64 `json:"llmMs"`
	TotalMs   int64 `json:"totalMs"`
}

// ComputeSummary fills the category tallies and totals from run results.
func ComputeSummary(placed []AlignedSuggestion, skips []Skip, failures []BatchFailure) Summary {
	var s Summary
	s.Placed = len(placed)
	s.Skipped = len(skips)
	s.FailedBatches = len(failures)
	for _, a := range placed {
		switch a.Category {
		case CategoryGrammar:
			s.Counts.Grammar++
		case CategorySpelling:
			s.Counts.Spelling++
		case CategoryStyle:
			s.Counts.Style++
		case CategoryOther:
			s.Counts.Other++
		}
	}
	return s
}
