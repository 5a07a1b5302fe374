// Command compile turns a natural-language test request into an executable
// action plan, optionally expanding it over a dataset.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/compiler"
	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/dataset"
	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/dsl"
	"github.com/testscribe/testscribe/internal/llm"
	"github.com/testscribe/testscribe/internal/profile"
	"github.com/testscribe/testscribe/internal/request"
	"github.com/testscribe/testscribe/internal/storage"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
)

func main() {
	godotenv.Load()

	requestPath := flag.String("request", "", "Markdown test request file")
	profilePath := flag.String("profile", "", "Site profile JSON (optional)")
	schemaPath := flag.String("schema", "", "Override DSL schema file (optional)")
	outputRoot := flag.String("output-root", "plans", "Root directory for generated plans")
	planName := flag.String("plan-name", "", "Plan directory name (default: timestamped)")
	caseName := flag.String("case-name", "", "Case directory name (default: from test id)")
	attempts := flag.Int("attempts", 3, "Maximum LLM attempts")
	temperature := flag.Float64("temperature", 0.2, "LLM sampling temperature")
	apiTimeout := flag.Duration("api-timeout", 0, "Override LLM request timeout")
	datasetPath := flag.String("dataset", "", "Dataset JSON for data-driven expansion")
	datasetCategory := flag.String("dataset-category", "", "Dataset category to expand over")
	templatePath := flag.String("skip-llm", "", "Use an existing action plan as template instead of calling the LLM")
	outputStats := flag.Bool("output-stats", false, "Print replacement statistics as JSON")
	summary := flag.Bool("summary", false, "Print a compilation summary")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	logger := newLogger(*verbose)
	defer logger.Sync()

	if err := run(logger, options{
		requestPath:     *requestPath,
		profilePath:     *profilePath,
		schemaPath:      *schemaPath,
		outputRoot:      *outputRoot,
		planName:        *planName,
		caseName:        *caseName,
		attempts:        *attempts,
		temperature:     *temperature,
		apiTimeout:      *apiTimeout,
		datasetPath:     *datasetPath,
		datasetCategory: *datasetCategory,
		templatePath:    *templatePath,
		outputStats:     *outputStats,
		summary:         *summary,
	}); err != nil {
		red.Printf("✗ %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	requestPath     string
	profilePath     string
	schemaPath      string
	outputRoot      string
	planName        string
	caseName        string
	attempts        int
	temperature     float64
	apiTimeout      time.Duration
	datasetPath     string
	datasetCategory string
	templatePath    string
	outputStats     bool
	summary         bool
}

func run(logger *zap.Logger, opts options) error {
	start := time.Now()

	var siteProfile *domain.SiteProfile
	if opts.profilePath != "" {
		var err error
		siteProfile, err = profile.NewStore(logger).Load(opts.profilePath)
		if err != nil {
			return err
		}
	}

	var plan *domain.ActionPlan
	var attempts int
	if opts.templatePath != "" {
		var p domain.ActionPlan
		if err := storage.ReadJSON(opts.templatePath, &p); err != nil {
			return fmt.Errorf("reading template plan: %w", err)
		}
		plan = &p
	} else {
		if opts.requestPath == "" {
			return domain.MissingFieldError("request")
		}
		req, err := request.ParseFile(opts.requestPath)
		if err != nil {
			return err
		}

		result, err := compilePlan(logger, opts, req, siteProfile)
		if err != nil {
			return err
		}
		plan = result.Plan
		attempts = result.Attempts
	}

	if opts.datasetPath != "" {
		return expand(logger, opts, plan, start)
	}

	planDir, caseDir, err := compiler.WritePlan(plan, compiler.WriteOptions{
		PlanRoot: opts.outputRoot,
		PlanName: opts.planName,
		CaseName: opts.caseName,
	})
	if err != nil {
		return err
	}

	green.Printf("✓ Plan compiled: %s\n", plan.Meta.TestID)
	if opts.summary {
		fmt.Printf("  Steps:    %d\n", len(plan.Steps))
		if attempts > 0 {
			fmt.Printf("  Attempts: %d\n", attempts)
		}
		fmt.Printf("  Plan:     %s\n", planDir)
		fmt.Printf("  Case:     %s\n", caseDir)
		fmt.Printf("  Elapsed:  %s\n", time.Since(start).Round(time.Millisecond))
	} else {
		fmt.Printf("  %s\n", caseDir)
	}
	return nil
}

func compilePlan(logger *zap.Logger, opts options, req *domain.TestRequest, siteProfile *domain.SiteProfile) (*compiler.Result, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	llmCfg := llm.Config{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		Timeout:      cfg.LLM.Timeout,
		RateLimitRPM: cfg.LLM.RateLimitRPM,
		CacheTTL:     cfg.LLM.CacheTTL,
		MaxTokens:    cfg.LLM.MaxTokens,
	}
	if opts.apiTimeout > 0 {
		llmCfg.Timeout = opts.apiTimeout
	}
	client, err := llm.NewClient(llmCfg)
	if err != nil {
		return nil, err
	}

	validator, err := newValidator(opts.schemaPath)
	if err != nil {
		return nil, err
	}

	comp := compiler.New(client, validator, compiler.DefaultVocabulary(), logger)
	return comp.Compile(context.Background(), req, siteProfile, compiler.Options{
		MaxAttempts: opts.attempts,
		Temperature: opts.temperature,
	})
}

func expand(logger *zap.Logger, opts options, plan *domain.ActionPlan, start time.Time) error {
	if opts.datasetCategory == "" {
		return domain.MissingFieldError("dataset-category")
	}

	raw, err := dataset.LoadFile(opts.datasetPath)
	if err != nil {
		return err
	}
	ds, err := dataset.ExtractCategory(raw, opts.datasetCategory)
	if err != nil {
		return err
	}

	// The expander works on the raw JSON shape so unknown template keys
	// survive the round trip.
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encoding template: %w", err)
	}
	var template map[string]any
	if err := json.Unmarshal(data, &template); err != nil {
		return fmt.Errorf("decoding template: %w", err)
	}

	result, err := dataset.NewExpander(logger).Expand(template, plan.Meta.TestID, plan.Meta.BaseURL, ds)
	if err != nil {
		return err
	}

	planDir, _, err := dataset.WriteResults(result, dataset.WriteOptions{
		OutputRoot: opts.outputRoot,
		PlanName:   opts.planName,
		CaseName:   opts.caseName,
	}, logger)
	if err != nil {
		return err
	}

	stats := result.Stats
	if stats.FailedItems > 0 {
		yellow.Printf("⚠ %d of %d rows dropped\n", stats.FailedItems, stats.TotalItems)
	}
	green.Printf("✓ Expanded %d cases from category %q\n", len(result.Cases), opts.datasetCategory)

	if opts.outputStats {
		out, err := json.MarshalIndent(map[string]any{
			"total_items":      stats.TotalItems,
			"successful_items": stats.SuccessfulItems,
			"failed_items":     stats.FailedItems,
			"error_summary":    stats.ErrorSummary(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding stats: %w", err)
		}
		fmt.Println(string(out))
	}
	if opts.summary {
		fmt.Printf("  Plan:    %s\n", planDir)
		fmt.Printf("  Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func newValidator(schemaPath string) (*dsl.Validator, error) {
	if schemaPath != "" {
		return dsl.NewValidatorFromFile(schemaPath)
	}
	return dsl.NewValidator()
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
