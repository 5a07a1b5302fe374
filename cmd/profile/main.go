// Command profile captures a page snapshot, asks the LLM to annotate it and
// folds the result into a site profile.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/annotate"
	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/llm"
	"github.com/testscribe/testscribe/internal/profile"
	"github.com/testscribe/testscribe/internal/snapshot"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
)

func main() {
	godotenv.Load()

	url := flag.String("url", "", "Page URL to capture")
	profilePath := flag.String("profile", "site_profile.json", "Site profile to create or update")
	pageID := flag.String("page-id", "", "Page id inside the profile (default: derived by the annotator)")
	siteName := flag.String("site-name", "", "Site name for new profiles")
	baseURL := flag.String("base-url", "", "Site base URL for new profiles")
	detailPage := flag.Bool("detail-page", false, "Treat the page as a content detail page")
	detailLabel := flag.String("detail-label", "", "Override the derived detail page label")
	waitFor := flag.String("wait-for", "", "Extra selector to wait for before walking the DOM")
	timeout := flag.Duration("timeout", 0, "Override navigation timeout")
	maxDepth := flag.Int("max-depth", 0, "Override DOM walk depth limit")
	maxNodes := flag.Int("max-nodes", 0, "Override DOM walk node limit")
	headed := flag.Bool("headed", false, "Show the browser window")
	dryRun := flag.Bool("dry-run", false, "Annotate without writing the profile")
	cleanup := flag.Bool("cleanup", false, "Remove expired snapshots and exit")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	logger := newLogger(*verbose)
	defer logger.Sync()

	if *cleanup {
		os.Exit(runCleanup(logger))
	}
	if *url == "" {
		red.Println("✗ -url is required")
		os.Exit(1)
	}
	opts := runOptions{
		url:         *url,
		profilePath: *profilePath,
		pageID:      *pageID,
		siteName:    *siteName,
		baseURL:     *baseURL,
		detailPage:  *detailPage,
		detailLabel: *detailLabel,
		waitFor:     *waitFor,
		timeout:     *timeout,
		maxDepth:    *maxDepth,
		maxNodes:    *maxNodes,
		headed:      *headed,
		dryRun:      *dryRun,
	}
	if err := run(logger, opts); err != nil {
		red.Printf("✗ %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	url         string
	profilePath string
	pageID      string
	siteName    string
	baseURL     string
	detailPage  bool
	detailLabel string
	waitFor     string
	timeout     time.Duration
	maxDepth    int
	maxNodes    int
	headed      bool
	dryRun      bool
}

func run(logger *zap.Logger, opts runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.waitFor != "" {
		cfg.Snapshot.WaitFor = opts.waitFor
	}
	if opts.timeout > 0 {
		cfg.Snapshot.Timeout = opts.timeout
	}
	if opts.maxDepth > 0 {
		cfg.Snapshot.MaxDepth = opts.maxDepth
	}
	if opts.maxNodes > 0 {
		cfg.Snapshot.MaxNodes = opts.maxNodes
	}
	if opts.headed {
		cfg.Snapshot.Headless = false
	}
	start := time.Now()
	ctx := context.Background()

	svc := snapshot.NewService(cfg.Snapshot, logger)
	captured, err := svc.Capture(ctx, opts.url)
	if err != nil {
		return err
	}
	snap := captured.Snapshot
	green.Printf("✓ Captured %s (%d nodes, %d controls)\n",
		snap.SnapshotID, snap.Stats.NodeCount, len(snap.Controls))

	store := snapshot.NewStore(cfg.Snapshot.Root, logger)
	dir, err := store.Save(captured)
	if err != nil {
		return err
	}
	fmt.Printf("  Snapshot: %s\n", dir)

	client, err := llm.NewClient(llm.Config{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		Timeout:      cfg.LLM.Timeout,
		RateLimitRPM: cfg.LLM.RateLimitRPM,
		CacheTTL:     cfg.LLM.CacheTTL,
		MaxTokens:    cfg.LLM.MaxTokens,
	})
	if err != nil {
		return err
	}

	annotated, err := annotate.NewAnnotator(client, logger).Annotate(ctx, snap, opts.pageID)
	if err != nil {
		return err
	}
	if opts.detailPage {
		annotated.Page.Name = detailName(annotated.Page.Name, opts)
	}
	green.Printf("✓ Annotated page %q (%d aliases)\n", annotated.Page.ID, len(annotated.Page.Aliases))
	for _, w := range annotated.Warnings {
		yellow.Printf("  ⚠ %s\n", w)
	}

	merged, err := profile.NewStore(logger).MergePage(opts.profilePath, annotated, profile.MergeOptions{
		SiteName: opts.siteName,
		BaseURL:  opts.baseURL,
		DryRun:   opts.dryRun,
	})
	if err != nil {
		return err
	}

	if opts.dryRun {
		yellow.Println("⚠ Dry run; profile not written")
	} else if merged.CreatedNewFile {
		green.Printf("✓ Profile created: %s\n", merged.OutputPath)
	} else {
		green.Printf("✓ Profile updated: %s\n", merged.OutputPath)
	}
	fmt.Printf("  Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// detailName resolves the stored name for a forced detail page: the explicit
// label wins, then abstraction of the annotated title, then a label derived
// from the URL path.
func detailName(annotatedName string, opts runOptions) string {
	if opts.detailLabel != "" {
		return opts.detailLabel
	}
	if annotatedName != "" {
		return annotate.AbstractDetailName(annotatedName)
	}
	return annotate.DeriveDetailLabel(opts.url)
}

func runCleanup(logger *zap.Logger) int {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		red.Printf("✗ %v\n", err)
		return 1
	}
	removed, err := snapshot.NewStore(cfg.Snapshot.Root, logger).Cleanup(cfg.Snapshot.MaxAge)
	if err != nil {
		red.Printf("✗ %v\n", err)
		return 1
	}
	green.Printf("✓ Removed %d expired snapshot(s)\n", removed)
	return 0
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"/dev/null"}
	logger, _ := cfg.Build()
	return logger
}
