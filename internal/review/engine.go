package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/redline/internal/cache"
	"github.com/dshills/redline/internal/docx"
	"github.com/dshills/redline/internal/providers"
	"github.com/dshills/redline/internal/redact"
)

const (
	// DefaultConcurrency bounds parallel provider calls.
	DefaultConcurrency = 4
	maxResponseTokens  = 8192
)

// Options configures one review run.
type Options struct {
	Model          string
	Context        string
	Guide          *Guide
	Budget         int
	Concurrency    int
	AlignThreshold float64
	RedactSecrets  bool
}

// Engine drives batches through the provider, parses and validates the
// responses, and aligns every surviving suggestion. It owns no document
// state; anchoring is the caller's single-writer step.
type Engine struct {
	provider providers.Client
	cache    *cache.Cache
	aligner  *Aligner
	log      *slog.Logger
	opts     Options
}

// NewEngine creates an Engine.
func NewEngine(provider providers.Client, c *cache.Cache, log *slog.Logger, opts Options) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		provider: provider,
		cache:    c,
		aligner:  NewAligner(opts.AlignThreshold),
		log:      log,
		opts:     opts,
	}
}

// Result collects everything a run produced. Placed is ordered by unit, then
// ascending start offset, regardless of batch completion order.
type Result struct {
	Placed    []AlignedSuggestion
	Skips     []Skip
	Failures  []BatchFailure
	Batches   int
	CacheHits int
	LLMMs     int64
}

type batchResult struct {
	placed  []AlignedSuggestion
	skips   []Skip
	failure *BatchFailure
	hit     bool
	llmMs   int64
}

// Run reviews all units. Batches run concurrently under the configured limit;
// a failed batch contributes zero suggestions and a warning, never aborting
// the run. Cancellation is honored between batches: an in-flight provider
// call completes or times out under its own retry policy.
func (e *Engine) Run(ctx context.Context, units []docx.Unit) (*Result, error) {
	batches := Chunk(units, e.opts.Budget)
	res := &Result{Batches: len(batches)}
	if len(batches) == 0 {
		return res, nil
	}

	concurrency := e.opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]batchResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, b := range batches {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = e.reviewBatch(gctx, b)
			// Batch-scoped failures are recorded, not returned: they must
			// never cancel sibling batches. Only run cancellation stops us.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, br := range results {
		res.Placed = append(res.Placed, br.placed...)
		res.Skips = append(res.Skips, br.skips...)
		if br.failure != nil {
			res.Failures = append(res.Failures, *br.failure)
		}
		if br.hit {
			res.CacheHits++
		}
		res.LLMMs += br.llmMs
	}

	// Final ordering: unit order, then ascending offset within a unit.
	sort.SliceStable(res.Placed, func(i, j int) bool {
		if res.Placed[i].UnitID != res.Placed[j].UnitID {
			return res.Placed[i].UnitID < res.Placed[j].UnitID
		}
		return res.Placed[i].Start < res.Placed[j].Start
	})
	return res, nil
}

// reviewBatch resolves one batch through the cache, calling the provider on a
// miss, then validates and aligns the suggestions.
func (e *Engine) reviewBatch(ctx context.Context, b Batch) batchResult {
	prompted := b.Units
	if e.opts.RedactSecrets {
		prompted = redactUnits(b.Units)
	}

	keyText := frameUnits(b.Units)
	keyContext := e.opts.Context + BuildGuidePromptSection(e.opts.Guide)
	key := cache.Key(keyText, e.opts.Model, keyContext)

	llmStart := time.Now()
	entry, hit, err := e.cache.GetOrCompute(key, func() (cache.Entry, error) {
		return e.compute(ctx, prompted)
	})
	llmMs := time.Since(llmStart).Milliseconds()
	if hit {
		llmMs = 0
	}
	if err != nil {
		e.log.Warn("batch failed", "batch", b.Index, "units", len(b.Units), "error", err)
		return batchResult{failure: &BatchFailure{
			Index: b.Index,
			Units: len(b.Units),
			Err:   err.Error(),
			Auth:  providers.IsAuthError(err),
		}}
	}
	if hit {
		e.log.Debug("cache hit", "batch", b.Index, "key", key[:12])
	}

	suggestions, skips := e.decodeEntry(entry, b)
	placed, alignSkips := e.alignAll(b, suggestions)
	return batchResult{
		placed: placed,
		skips:  append(skips, alignSkips...),
		hit:    hit,
		llmMs:  llmMs,
	}
}

// compute performs the provider round trip, with one repair pass when the
// response is not the demanded JSON array.
func (e *Engine) compute(ctx context.Context, units []docx.Unit) (cache.Entry, error) {
	req := providers.Request{
		SystemPrompt: SystemPrompt(),
		UserPrompt:   BuildUserPrompt(units, e.opts.Context, e.opts.Guide),
		MaxTokens:    maxResponseTokens,
	}
	resp, err := e.provider.Send(ctx, req)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("provider send: %w", err)
	}

	raw, err := parseRawSuggestions(resp.Content)
	if err != nil {
		repair := fmt.Sprintf(
			"Your previous response was not valid JSON. The error was: %s\n\nPlease fix it and respond with ONLY a valid JSON array of suggestions.\n\nYour previous response was:\n%s",
			err.Error(), resp.Content,
		)
		resp2, err2 := e.provider.Send(ctx, providers.Request{
			SystemPrompt: SystemPrompt(),
			UserPrompt:   repair,
			MaxTokens:    maxResponseTokens,
		})
		if err2 != nil {
			return cache.Entry{}, fmt.Errorf("repair pass failed: %w (original error: %w)", err2, err)
		}
		raw, err = parseRawSuggestions(resp2.Content)
		if err != nil {
			return cache.Entry{}, fmt.Errorf("response validation failed after repair: %w", err)
		}
		resp = resp2
	}

	parsed, err := json.Marshal(raw)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("encoding parsed suggestions: %w", err)
	}
	return cache.Entry{Raw: resp.Content, Parsed: parsed}, nil
}

// decodeEntry turns a cache entry back into validated suggestions for this
// batch, dropping structurally invalid ones with a diagnostic.
func (e *Engine) decodeEntry(entry cache.Entry, b Batch) ([]Suggestion, []Skip) {
	var raw []rawSuggestion
	if err := json.Unmarshal(entry.Parsed, &raw); err != nil {
		// Entry predates the current schema; fall back to the raw response.
		var perr error
		raw, perr = parseRawSuggestions(entry.Raw)
		if perr != nil {
			e.log.Warn("discarding undecodable cache entry", "batch", b.Index, "error", perr)
			return nil, nil
		}
	}

	valid := make(map[int]bool, len(b.Units))
	for _, u := range b.Units {
		valid[u.ID] = true
	}

	var out []Suggestion
	var skips []Skip
	for _, r := range raw {
		cat, ok := ParseCategory(strings.ToLower(strings.TrimSpace(r.Category)))
		switch {
		case strings.TrimSpace(r.Quote) == "":
			skips = append(skips, Skip{UnitID: r.Unit, Quoted: r.Quote, Reason: "empty quoted text"})
		case !ok:
			skips = append(skips, Skip{UnitID: r.Unit, Quoted: r.Quote, Reason: fmt.Sprintf("unrecognized category %q", r.Category)})
		case !valid[r.Unit]:
			skips = append(skips, Skip{UnitID: r.Unit, Quoted: r.Quote, Reason: "suggestion references a unit outside its batch"})
		default:
			out = append(out, Suggestion{
				UnitID:      r.Unit,
				Quoted:      r.Quote,
				Replacement: r.Replacement,
				Explanation: r.Explanation,
				Category:    cat,
			})
			continue
		}
		e.log.Debug("dropped suggestion", "unit", r.Unit, "quote", r.Quote, "category", r.Category)
	}
	return out, skips
}

// alignAll locates every suggestion in its unit's original (unredacted) text.
// Alignment failures skip the suggestion, never guess a location.
func (e *Engine) alignAll(b Batch, suggestions []Suggestion) ([]AlignedSuggestion, []Skip) {
	byID := make(map[int]docx.Unit, len(b.Units))
	for _, u := range b.Units {
		byID[u.ID] = u
	}

	var placed []AlignedSuggestion
	var skips []Skip
	for _, s := range suggestions {
		unit := byID[s.UnitID]
		a, err := e.aligner.Align(unit, s)
		if err != nil {
			e.log.Debug("unplaced suggestion", "unit", s.UnitID, "quote", s.Quoted, "error", err)
			skips = append(skips, Skip{UnitID: s.UnitID, Quoted: s.Quoted, Reason: err.Error()})
			continue
		}
		placed = append(placed, a)
	}
	return placed, skips
}

// rawSuggestion is the JSON structure returned by the model.
type rawSuggestion struct {
	Unit        int    `json:"unit"`
	Quote       string `json:"quote"`
	Replacement string `json:"replacement"`
	Explanation string `json:"explanation"`
	Category    string `json:"category"`
}

func parseRawSuggestions(content string) ([]rawSuggestion, error) {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present.
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 2 {
			start := 1
			end := len(lines)
			if strings.TrimSpace(lines[end-1]) == "```" {
				end = end - 1
			}
			content = strings.Join(lines[start:end], "\n")
		}
	}

	var raw []rawSuggestion
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}
	return raw, nil
}

// frameUnits renders the batch's identity text for cache keying: unit IDs and
// exact texts, independent of prompt wording.
func frameUnits(units []docx.Unit) string {
	var b strings.Builder
	for _, u := range units {
		fmt.Fprintf(&b, "%d\x00%s\x00", u.ID, u.Text)
	}
	return b.String()
}

func redactUnits(units []docx.Unit) []docx.Unit {
	out := make([]docx.Unit, len(units))
	for i, u := range units {
		u.Text = redact.Secrets(u.Text)
		out[i] = u
	}
	return out
}
