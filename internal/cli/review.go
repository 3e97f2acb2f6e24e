package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/redline/internal/cache"
	"github.com/dshills/redline/internal/config"
	"github.com/dshills/redline/internal/diffview"
	"github.com/dshills/redline/internal/docx"
	"github.com/dshills/redline/internal/output"
	"github.com/dshills/redline/internal/providers"
	"github.com/dshills/redline/internal/review"
)

var (
	flagModel          string
	flagAPIKey         string
	flagBaseURL        string
	flagContext        string
	flagCacheDir       string
	flagGuide          string
	flagBudget         int
	flagConcurrency    int
	flagAlignThreshold float64
	flagFormat         string
	flagOut            string
	flagAuthor         string
	flagNoRedact       bool
	flagVerbose        bool
)

var reviewCmd = &cobra.Command{
	Use:   "review <document.docx>",
	Short: "Review a document and write a commented copy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runReview(args[0])
	},
}

func init() {
	f := reviewCmd.Flags()
	f.StringVar(&flagModel, "model", "", "Model identifier")
	f.StringVar(&flagAPIKey, "api-key", "", "API key for the provider (or REDLINE_API_KEY)")
	f.StringVar(&flagBaseURL, "base-url", "", "Base URL of an OpenAI-compatible endpoint (or REDLINE_BASE_URL)")
	f.StringVar(&flagContext, "context", "", "Free-text context added to the review prompt")
	f.StringVar(&flagCacheDir, "cache-dir", "", "Directory for the response cache")
	f.StringVar(&flagGuide, "guide", "", "Reviewer guide file path")
	f.IntVar(&flagBudget, "budget", 0, "Per-batch size budget in characters")
	f.IntVar(&flagConcurrency, "concurrency", 0, "Maximum concurrent provider calls")
	f.Float64Var(&flagAlignThreshold, "align-threshold", 0, "Minimum similarity for fuzzy placement (0-1)")
	f.StringVar(&flagFormat, "format", "", "Report format (text, json, markdown)")
	f.StringVar(&flagOut, "out", "", "Report output path (default: stdout)")
	f.StringVar(&flagAuthor, "author", "", "Comment author tag")
	f.BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagAPIKey != "" {
		m["apiKey"] = flagAPIKey
	}
	if flagBaseURL != "" {
		m["baseURL"] = flagBaseURL
	}
	if flagContext != "" {
		m["context"] = flagContext
	}
	if flagCacheDir != "" {
		m["cacheDir"] = flagCacheDir
	}
	if flagGuide != "" {
		m["guideFile"] = flagGuide
	}
	if flagBudget > 0 {
		m["budget"] = fmt.Sprintf("%d", flagBudget)
	}
	if flagConcurrency > 0 {
		m["concurrency"] = fmt.Sprintf("%d", flagConcurrency)
	}
	if flagAlignThreshold > 0 {
		m["alignThreshold"] = fmt.Sprintf("%g", flagAlignThreshold)
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagAuthor != "" {
		m["author"] = flagAuthor
	}
	return m
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runReview(docPath string) {
	log := newLogger()

	cfg, err := config.Load(buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}
	if flagNoRedact {
		cfg.RedactSecrets = false
		fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
	}

	start := time.Now()
	log.Info("opening document", "path", docPath)
	doc, err := docx.Open(docPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}
	units := doc.Units()
	extractMs := time.Since(start).Milliseconds()
	log.Info("extracted units", "count", len(units))

	c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}

	provider, err := providers.NewOpenAI(providers.Options{
		Model:          cfg.Model,
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		MaxRetries:     cfg.MaxRetries,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitUsageError
		return
	}

	guide, err := review.LoadGuide(cfg.GuideFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitUsageError
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := review.NewEngine(provider, c, log, review.Options{
		Model:          cfg.Model,
		Context:        cfg.Context,
		Guide:          guide,
		Budget:         cfg.Budget,
		Concurrency:    cfg.Concurrency,
		AlignThreshold: cfg.AlignThreshold,
		RedactSecrets:  cfg.RedactSecrets,
	})

	res, err := engine.Run(ctx, units)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}

	// Complete provider unavailability is fatal: every batch failed and
	// nothing came from the cache.
	if res.Batches > 0 && len(res.Failures) == res.Batches {
		fmt.Fprintf(os.Stderr, "Error: all %d batches failed; no review produced\n", res.Batches)
		exitCode = ExitRuntimeError
		for _, f := range res.Failures {
			if f.Auth {
				exitCode = ExitAuthError
				break
			}
		}
		return
	}

	// Single-writer phase: anchor comments in unit order, ascending offset.
	placed := make([]review.AlignedSuggestion, 0, len(res.Placed))
	skips := res.Skips
	for _, s := range res.Placed {
		unitText, ok := doc.UnitText(s.Origin)
		if !ok {
			unitText = ""
		}
		original := ""
		if s.Start <= s.End && s.End <= len(unitText) {
			original = unitText[s.Start:s.End]
		}
		log.Info("placing comment",
			"unit", s.UnitID, "span", fmt.Sprintf("%d:%d", s.Start, s.End),
			"category", s.Category)
		log.Debug("proposed change", "diff", diffview.Console(original, s.Replacement))

		body := diffview.CommentBody(s.Explanation, original, s.Replacement)
		if err := doc.AnchorComment(s.Origin, s.Start, s.End, cfg.Author, body); err != nil {
			log.Warn("skipping comment", "unit", s.UnitID, "error", err)
			skips = append(skips, review.Skip{UnitID: s.UnitID, Quoted: s.Quoted, Reason: err.Error()})
			continue
		}
		placed = append(placed, s)
	}

	outPath := docx.ReviewedPath(docPath)
	if err := doc.Save(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}
	log.Info("saved reviewed document", "path", outPath)

	summary := review.ComputeSummary(placed, skips, res.Failures)
	summary.Units = len(units)
	summary.Batches = res.Batches
	summary.CacheHits = res.CacheHits

	report := &review.Report{
		Tool:        "redline",
		Version:     version,
		Document:    docPath,
		Output:      outPath,
		Model:       cfg.Model,
		Summary:     summary,
		Suggestions: placed,
		Skips:       skips,
		Failures:    res.Failures,
		Timing: review.Timing{
			ExtractMs: extractMs,
			LLMMs:     res.LLMMs,
			TotalMs:   time.Since(start).Milliseconds(),
		},
	}

	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		exitCode = ExitRuntimeError
		return
	}
}
