package executor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/storage"
)

// Case is one discovered plan inside a plan directory.
type Case struct {
	Name     string
	PlanPath string
}

// DiscoverCases scans <planDir>/cases for case subdirectories holding an
// action_plan.json and for top-level *.json plan files, sorted by name.
func DiscoverCases(planDir string) ([]Case, error) {
	casesDir := filepath.Join(planDir, "cases")
	entries, err := os.ReadDir(casesDir)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}

	var cases []Case
	for _, entry := range entries {
		if entry.IsDir() {
			planPath := filepath.Join(casesDir, entry.Name(), "action_plan.json")
			if _, err := os.Stat(planPath); err == nil {
				cases = append(cases, Case{Name: entry.Name(), PlanPath: planPath})
			}
			continue
		}
		if strings.HasSuffix(entry.Name(), ".json") {
			cases = append(cases, Case{
				Name:     strings.TrimSuffix(entry.Name(), ".json"),
				PlanPath: filepath.Join(casesDir, entry.Name()),
			})
		}
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}

// SampleCases picks a reproducible random sample of size min(count, total).
// count <= 0 selects everything. The sample keeps name order.
func SampleCases(cases []Case, count int, seed int64) []Case {
	if count <= 0 || count >= len(cases) {
		return cases
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(cases))

	picked := make([]Case, 0, count)
	for _, idx := range perm[:count] {
		picked = append(picked, cases[idx])
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].Name < picked[j].Name })
	return picked
}

// BatchOptions tunes one RunBatch call.
type BatchOptions struct {
	Count      int
	Seed       int64
	OutputRoot string
	Progress   bool
}

// RunBatch executes every selected case of a plan directory sequentially,
// each in its own browser context and artifacts subdirectory, and writes
// batch_summary.json plus the Markdown report.
func (e *Executor) RunBatch(ctx context.Context, planDir string, opts BatchOptions) (*domain.BatchResult, error) {
	cases, err := DiscoverCases(planDir)
	if err != nil {
		return nil, err
	}
	selected := SampleCases(cases, opts.Count, opts.Seed)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no cases found under %s", planDir)
	}

	outputRoot := opts.OutputRoot
	if outputRoot == "" {
		outputRoot = e.cfg.OutputRoot
	}
	now := time.Now()
	batch := &domain.BatchResult{
		BatchID:      domain.Timestamp(now) + "_batch_run",
		Total:        len(selected),
		StartedAt:    now.UTC().Format(time.RFC3339),
		ArtifactsDir: filepath.Join(outputRoot, domain.Timestamp(now)+"_batch_run"),
	}
	if err := os.MkdirAll(batch.ArtifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating batch dir: %w", err)
	}

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.Default(int64(len(selected)), "执行用例")
	}

	for _, c := range selected {
		outcome := e.runCase(ctx, c, batch.ArtifactsDir)
		batch.CaseResults = append(batch.CaseResults, outcome)
		switch {
		case outcome.Error != "":
			batch.Error++
		case outcome.Result.Status == domain.StatusPassed:
			batch.Passed++
		default:
			batch.Failed++
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	batch.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	if batch.Total > 0 {
		batch.SuccessRate = float64(batch.Passed) / float64(batch.Total)
	}

	if err := storage.WriteJSON(filepath.Join(batch.ArtifactsDir, "batch_summary.json"), batch); err != nil {
		return batch, fmt.Errorf("writing batch summary: %w", err)
	}
	if e.cfg.GenerateReport {
		if err := WriteReport(batch, filepath.Join(batch.ArtifactsDir, "test_report.md")); err != nil {
			return batch, err
		}
	}

	e.logger.Info("batch finished",
		zap.String("batch_id", batch.BatchID),
		zap.Int("total", batch.Total),
		zap.Int("passed", batch.Passed),
		zap.Int("failed", batch.Failed),
		zap.Int("error", batch.Error))
	return batch, nil
}

func (e *Executor) runCase(ctx context.Context, c Case, batchDir string) domain.CaseOutcome {
	outcome := domain.CaseOutcome{CaseName: c.Name}

	var plan domain.ActionPlan
	if err := storage.ReadJSON(c.PlanPath, &plan); err != nil {
		outcome.Error = fmt.Sprintf("reading plan: %v", err)
		return outcome
	}
	outcome.TestID = plan.Meta.TestID
	outcome.StepsTotal = len(plan.Steps)

	run, err := e.Run(ctx, &plan, filepath.Join(batchDir, c.Name))
	if err != nil {
		outcome.Error = err.Error()
	}
	if run != nil {
		outcome.Result = run
		outcome.Status = run.Status
		outcome.StepsPassed = run.PassedSteps()
		outcome.ArtifactsDir = run.ArtifactsDir
	}
	return outcome
}
