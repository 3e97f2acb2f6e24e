package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/redline/internal/cache"
	"github.com/dshills/redline/internal/docx"
	"github.com/dshills/redline/internal/providers"
)

// fakeClient returns canned responses in call order, or a scripted error.
type fakeClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeClient) Send(ctx context.Context, req providers.Request) (providers.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, req.UserPrompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return providers.Response{}, f.errs[i]
	}
	if i < len(f.responses) {
		return providers.Response{Content: f.responses[i]}, nil
	}
	return providers.Response{Content: "[]"}, nil
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testEngine(t *testing.T, client providers.Client, opts Options) *Engine {
	t.Helper()
	c, err := cache.New(true, t.TempDir())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	if opts.Model == "" {
		opts.Model = "test-model"
	}
	log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewEngine(client, c, log, opts)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func suggestionJSON(unit int, quote, replacement, category string) string {
	m := map[string]any{
		"unit":        unit,
		"quote":       quote,
		"replacement": replacement,
		"explanation": "test explanation",
		"category":    category,
	}
	data, _ := json.Marshal([]any{m})
	return string(data)
}

func TestEngineRun_PlacesSuggestions(t *testing.T) {
	client := &fakeClient{responses: []string{
		suggestionJSON(0, "Their going", "They're going", "grammar"),
	}}
	e := testEngine(t, client, Options{})

	units := []docx.Unit{{ID: 0, Text: "Their going to the store.", Origin: 0}}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Placed) != 1 {
		t.Fatalf("placed %d suggestions, want 1", len(res.Placed))
	}
	got := res.Placed[0]
	if got.Start != 0 || got.End != len("Their going") {
		t.Errorf("span = %d:%d, want 0:%d", got.Start, got.End, len("Their going"))
	}
	if got.Category != CategoryGrammar {
		t.Errorf("category = %q, want grammar", got.Category)
	}
	if res.Batches != 1 || len(res.Failures) != 0 {
		t.Errorf("Batches = %d, Failures = %d", res.Batches, len(res.Failures))
	}
}

func TestEngineRun_NoUnits(t *testing.T) {
	client := &fakeClient{}
	e := testEngine(t, client, Options{})
	res, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Batches != 0 || len(res.Placed) != 0 {
		t.Errorf("Batches = %d, Placed = %d, want 0, 0", res.Batches, len(res.Placed))
	}
	if client.callCount() != 0 {
		t.Errorf("provider called %d times for empty input", client.callCount())
	}
}

func TestEngineRun_ValidationDrops(t *testing.T) {
	bad := `[
		{"unit": 0, "quote": "", "replacement": "x", "explanation": "e", "category": "grammar"},
		{"unit": 0, "quote": "store", "replacement": "shop", "explanation": "e", "category": "nonsense"},
		{"unit": 99, "quote": "store", "replacement": "shop", "explanation": "e", "category": "style"}
	]`
	client := &fakeClient{responses: []string{bad}}
	e := testEngine(t, client, Options{})

	units := []docx.Unit{{ID: 0, Text: "Their going to the store.", Origin: 0}}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Placed) != 0 {
		t.Errorf("placed %d, want 0", len(res.Placed))
	}
	if len(res.Skips) != 3 {
		t.Fatalf("skips = %d, want 3", len(res.Skips))
	}
	reasons := make([]string, len(res.Skips))
	for i, s := range res.Skips {
		reasons[i] = s.Reason
	}
	joined := strings.Join(reasons, "; ")
	for _, want := range []string{"empty quoted text", "unrecognized category", "outside its batch"} {
		if !strings.Contains(joined, want) {
			t.Errorf("skip reasons %q missing %q", joined, want)
		}
	}
}

func TestEngineRun_UnplaceableSuggestionSkipped(t *testing.T) {
	client := &fakeClient{responses: []string{
		suggestionJSON(0, "zzqx vrrp glomph", "x", "style"),
	}}
	e := testEngine(t, client, Options{})

	units := []docx.Unit{{ID: 0, Text: "A perfectly ordinary sentence.", Origin: 0}}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Placed) != 0 {
		t.Errorf("placed %d, want 0", len(res.Placed))
	}
	if len(res.Skips) != 1 {
		t.Fatalf("skips = %d, want 1", len(res.Skips))
	}
}

func TestEngineRun_RepairPass(t *testing.T) {
	client := &fakeClient{responses: []string{
		"Sure! Here are the suggestions you asked for.",
		suggestionJSON(0, "dont", "doesn't", "grammar"),
	}}
	e := testEngine(t, client, Options{})

	units := []docx.Unit{{ID: 0, Text: "She dont like it.", Origin: 0}}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.callCount() != 2 {
		t.Errorf("provider called %d times, want 2 (original + repair)", client.callCount())
	}
	if len(res.Placed) != 1 {
		t.Fatalf("placed %d, want 1", len(res.Placed))
	}
	if res.Placed[0].Start != 4 || res.Placed[0].End != 8 {
		t.Errorf("span = %d:%d, want 4:8", res.Placed[0].Start, res.Placed[0].End)
	}
}

func TestEngineRun_RepairFailureIsBatchFailure(t *testing.T) {
	client := &fakeClient{responses: []string{"not json", "still not json"}}
	e := testEngine(t, client, Options{})

	units := []docx.Unit{{ID: 0, Text: "Some text.", Origin: 0}}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(res.Failures))
	}
	if res.Failures[0].Units != 1 {
		t.Errorf("failure units = %d, want 1", res.Failures[0].Units)
	}
}

func TestEngineRun_FailedBatchDoesNotAbortOthers(t *testing.T) {
	// Two units large enough for a tiny budget to split into two batches.
	// One batch fails both attempts, the other succeeds.
	failErr := errors.New("boom")
	client := &fakeClient{
		errs:      []error{failErr, nil},
		responses: []string{"", suggestionJSON(1, "dont", "doesn't", "grammar")},
	}
	e := testEngine(t, client, Options{Budget: 10, Concurrency: 1})

	units := []docx.Unit{
		{ID: 0, Text: "Their going to the store.", Origin: 0},
		{ID: 1, Text: "She dont like it.", Origin: 1},
	}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Batches != 2 {
		t.Fatalf("Batches = %d, want 2", res.Batches)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(res.Failures))
	}
	if len(res.Placed) != 1 || res.Placed[0].UnitID != 1 {
		t.Errorf("surviving batch did not place its suggestion: %+v", res.Placed)
	}
}

func TestEngineRun_CacheHitSkipsProvider(t *testing.T) {
	c, err := cache.New(true, t.TempDir())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	client := &fakeClient{responses: []string{
		suggestionJSON(0, "dont", "doesn't", "grammar"),
	}}
	log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	e := NewEngine(client, c, log, Options{Model: "m"})

	units := []docx.Unit{{ID: 0, Text: "She dont like it.", Origin: 0}}

	if _, err := e.Run(context.Background(), units); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if client.callCount() != 1 {
		t.Errorf("provider called %d times, want 1 (second run cached)", client.callCount())
	}
	if res.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", res.CacheHits)
	}
	if len(res.Placed) != 1 {
		t.Errorf("cached run placed %d, want 1", len(res.Placed))
	}
}

func TestEngineRun_OrderedByUnitThenOffset(t *testing.T) {
	resp, _ := json.Marshal([]map[string]any{
		{"unit": 1, "quote": "two", "replacement": "2", "explanation": "e", "category": "style"},
		{"unit": 0, "quote": "beta", "replacement": "b", "explanation": "e", "category": "style"},
		{"unit": 0, "quote": "alpha", "replacement": "a", "explanation": "e", "category": "style"},
	})
	client := &fakeClient{responses: []string{string(resp)}}
	e := testEngine(t, client, Options{})

	units := []docx.Unit{
		{ID: 0, Text: "alpha then beta", Origin: 0},
		{ID: 1, Text: "one two three", Origin: 1},
	}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Placed) != 3 {
		t.Fatalf("placed %d, want 3", len(res.Placed))
	}
	for i := 1; i < len(res.Placed); i++ {
		p, q := res.Placed[i-1], res.Placed[i]
		if p.UnitID > q.UnitID || (p.UnitID == q.UnitID && p.Start > q.Start) {
			t.Errorf("out of order at %d: %+v before %+v", i, p, q)
		}
	}
}

func TestEngineRun_RedactionDoesNotBreakAlignment(t *testing.T) {
	// The quote targets unredacted text around the secret; alignment runs
	// against the original, so placement still works.
	text := `The api key "sk-ant-REDACTED" is embedded here.`
	client := &fakeClient{responses: []string{
		suggestionJSON(0, "is embedded here", "appears here", "style"),
	}}
	e := testEngine(t, client, Options{RedactSecrets: true})

	units := []docx.Unit{{ID: 0, Text: text, Origin: 0}}
	res, err := e.Run(context.Background(), units)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Placed) != 1 {
		t.Fatalf("placed %d, want 1", len(res.Placed))
	}
	got := text[res.Placed[0].Start:res.Placed[0].End]
	if got != "is embedded here" {
		t.Errorf("span text = %q", got)
	}
	if strings.Contains(client.prompts[0], "sk-ant-") {
		t.Error("prompt still contains the unredacted secret")
	}
}

func TestParseRawSuggestions_CodeFence(t *testing.T) {
	content := "```json\n" + suggestionJSON(1, "q", "r", "grammar") + "\n```"
	raw, err := parseRawSuggestions(content)
	if err != nil {
		t.Fatalf("parseRawSuggestions: %v", err)
	}
	if len(raw) != 1 || raw[0].Unit != 1 {
		t.Errorf("raw = %+v", raw)
	}
}

func TestParseRawSuggestions_EmptyArray(t *testing.T) {
	raw, err := parseRawSuggestions("[]")
	if err != nil {
		t.Fatalf("parseRawSuggestions: %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("raw = %+v, want empty", raw)
	}
}

func TestParseRawSuggestions_Invalid(t *testing.T) {
	if _, err := parseRawSuggestions("I could not find any problems."); err == nil {
		t.Error("expected error for prose response")
	}
}

func TestBuildUserPrompt_FramesUnits(t *testing.T) {
	units := []docx.Unit{
		{ID: 3, Text: "First unit."},
		{ID: 4, Text: "Second unit."},
	}
	prompt := BuildUserPrompt(units, "a contract", nil)
	for _, want := range []string{"[unit 3]", "[unit 4]", "First unit.", "Second unit.", "a contract"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.Contains(prompt, "--- BEGIN TEXT ---") || !strings.Contains(prompt, "--- END TEXT ---") {
		t.Error("prompt missing text delimiters")
	}
}

func TestFrameUnits_DistinguishesBoundaries(t *testing.T) {
	a := frameUnits([]docx.Unit{{ID: 1, Text: "ab"}, {ID: 2, Text: "c"}})
	b := frameUnits([]docx.Unit{{ID: 1, Text: "a"}, {ID: 2, Text: "bc"}})
	if a == b {
		t.Error("different unit splits framed identically")
	}
}

func ExampleBuildUserPrompt() {
	units := []docx.Unit{{ID: 1, Text: "She dont like it."}}
	fmt.Println(strings.Contains(BuildUserPrompt(units, "", nil), "[unit 1]"))
	// Output: true
}
