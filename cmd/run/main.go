// Command run replays compiled action plans in a real browser, one case at a
// time or as a sampled batch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/executor"
	"github.com/testscribe/testscribe/internal/storage"
)

var (
	green = color.New(color.FgGreen, color.Bold)
	red   = color.New(color.FgRed, color.Bold)
)

func main() {
	godotenv.Load()

	planDir := flag.String("plan-dir", "", "Plan directory (or a single action plan JSON file)")
	caseName := flag.String("case", "", "Case name inside the plan directory")
	batch := flag.Int("batch", 0, "Run a batch of N sampled cases (0 runs a single case)")
	seed := flag.Int64("random-seed", time.Now().UnixNano(), "Sampling seed for batch runs")
	output := flag.String("output", "", "Override result output root")
	headed := flag.Bool("headed", false, "Show the browser window")
	screenshots := flag.String("screenshots", "", "Screenshot policy: none, on-failure or all")
	timeout := flag.Int("timeout", 0, "Override default step timeout in milliseconds")
	summary := flag.Bool("summary", false, "Print a per-step summary")
	noReport := flag.Bool("no-report", false, "Skip the Markdown batch report")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	logger := newLogger(*verbose)
	defer logger.Sync()

	cfg, err := config.LoadWithDefaults()
	if err != nil {
		red.Printf("✗ %v\n", err)
		os.Exit(1)
	}
	execCfg := cfg.Executor
	if *headed {
		execCfg.Headless = false
	}
	if *screenshots != "" {
		execCfg.Screenshots = *screenshots
	}
	if *timeout > 0 {
		execCfg.DefaultTimeout = time.Duration(*timeout) * time.Millisecond
	}
	if *output != "" {
		execCfg.OutputRoot = *output
	}
	execCfg.GenerateReport = execCfg.GenerateReport && !*noReport

	if *planDir == "" {
		red.Println("✗ -plan-dir is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := executor.New(execCfg, logger)
	if *batch > 0 {
		os.Exit(runBatch(ctx, e, *planDir, *batch, *seed, execCfg.OutputRoot))
	}
	os.Exit(runSingle(ctx, e, *planDir, *caseName, *summary))
}

func runBatch(ctx context.Context, e *executor.Executor, planDir string, count int, seed int64, outputRoot string) int {
	result, err := e.RunBatch(ctx, planDir, executor.BatchOptions{
		Count:      count,
		Seed:       seed,
		OutputRoot: outputRoot,
		Progress:   true,
	})
	if err != nil {
		red.Printf("✗ %v\n", err)
		return 1
	}

	fmt.Printf("批次完成：共 %d，通过 %d，失败 %d，错误 %d\n",
		result.Total, result.Passed, result.Failed, result.Error)
	fmt.Printf("结果目录：%s\n", result.ArtifactsDir)
	if result.Passed == result.Total {
		green.Println("✓ 全部通过")
		return 0
	}
	red.Println("✗ 存在未通过的用例")
	return 1
}

func runSingle(ctx context.Context, e *executor.Executor, planDir, caseName string, summary bool) int {
	planPath, err := resolvePlanPath(planDir, caseName)
	if err != nil {
		red.Printf("✗ %v\n", err)
		return 1
	}

	var plan domain.ActionPlan
	if err := storage.ReadJSON(planPath, &plan); err != nil {
		red.Printf("✗ reading plan: %v\n", err)
		return 1
	}

	run, err := e.Run(ctx, &plan, "")
	if err != nil {
		red.Printf("✗ %v\n", err)
		return 1
	}

	if summary {
		printSteps(run)
	}
	fmt.Printf("结果目录:%s\n", run.ArtifactsDir)

	if run.Status == domain.StatusPassed {
		green.Printf("✓ %s 通过（%d 步）\n", plan.Meta.TestID, len(run.Steps))
		return 0
	}
	if f := run.FirstFailure(); f != nil {
		red.Printf("✗ %s 第%d步失败：%s\n", plan.Meta.TestID, f.Index+1, f.Error)
	} else {
		red.Printf("✗ %s 失败：%s\n", plan.Meta.TestID, run.Error)
	}
	return 1
}

// resolvePlanPath accepts a direct plan file, a case directory, or a plan
// directory plus -case.
func resolvePlanPath(planDir, caseName string) (string, error) {
	if strings.HasSuffix(planDir, ".json") {
		return planDir, nil
	}
	if caseName != "" {
		nested := filepath.Join(planDir, "cases", caseName, "action_plan.json")
		if _, err := os.Stat(nested); err == nil {
			return nested, nil
		}
		loose := filepath.Join(planDir, "cases", caseName+".json")
		if _, err := os.Stat(loose); err == nil {
			return loose, nil
		}
		return "", fmt.Errorf("case %s not found under %s", caseName, planDir)
	}
	direct := filepath.Join(planDir, "action_plan.json")
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	cases, err := executor.DiscoverCases(planDir)
	if err != nil {
		return "", err
	}
	if len(cases) == 1 {
		return cases[0].PlanPath, nil
	}
	if len(cases) == 0 {
		return "", fmt.Errorf("no cases found under %s", planDir)
	}
	return "", fmt.Errorf("%d cases under %s; pick one with -case or use -batch", len(cases), planDir)
}

func printSteps(run *domain.RunResult) {
	for _, s := range run.Steps {
		mark := green.Sprint("✓")
		if s.Status != domain.StatusPassed {
			mark = red.Sprint("✗")
		}
		line := fmt.Sprintf("%s 第%d步 %s", mark, s.Index+1, s.Action)
		if s.Selector != "" {
			line += " " + s.Selector
		}
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Println(line)
	}
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
