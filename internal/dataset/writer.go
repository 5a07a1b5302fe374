package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/storage"
)

// WriteOptions controls where expansion results land.
type WriteOptions struct {
	OutputRoot string
	PlanName   string // defaults to <ts>_data_driven_plan
	CaseName   string // defaults to "case"
}

// WriteResults persists the template, per-row cases, statistics and error
// report under <output_root>/<plan_name>/.
func WriteResults(result *ExpandResult, opts WriteOptions, logger *zap.Logger) (planDir, caseDir string, err error) {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}

	ts := domain.Timestamp(time.Now())
	planName := opts.PlanName
	if planName == "" {
		planName = ts + "_data_driven_plan"
	}
	caseName := opts.CaseName
	if caseName == "" {
		caseName = "case"
	}

	planDir = filepath.Join(opts.OutputRoot, planName)
	caseDir = filepath.Join(planDir, "cases")
	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating case directory: %w", err)
	}

	if err := storage.WriteJSON(filepath.Join(planDir, "action_plan_template.json"), result.Template); err != nil {
		return "", "", err
	}

	if err := writeStats(&result.Stats, planDir); err != nil {
		return "", "", err
	}

	if len(result.Stats.Errors) > 0 {
		if err := writeErrorReport(&result.Stats, planDir); err != nil {
			return "", "", err
		}
	}

	for i, casePlan := range result.Cases {
		name := fmt.Sprintf("%s_%03d_%s.json", caseName, i+1, ts)
		if err := storage.WriteJSON(filepath.Join(caseDir, name), casePlan); err != nil {
			return "", "", err
		}
	}

	logger.Info("expansion artifacts written",
		zap.String("plan_dir", planDir),
		zap.Int("cases", len(result.Cases)))

	return planDir, caseDir, nil
}

func writeStats(stats *domain.ReplacementStats, planDir string) error {
	doc := map[string]any{
		"total_items":      stats.TotalItems,
		"successful_items": stats.SuccessfulItems,
		"failed_items":     stats.FailedItems,
		"error_summary":    stats.ErrorSummary(),
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	return storage.WriteJSON(filepath.Join(planDir, "stats.json"), doc)
}

func writeErrorReport(stats *domain.ReplacementStats, planDir string) error {
	byType := make(map[string][]map[string]any)
	for _, e := range stats.Errors {
		byType[e.Type] = append(byType[e.Type], map[string]any{
			"placeholder": e.Placeholder,
			"field_name":  e.FieldName,
			"data_index":  e.DataIndex,
			"message":     e.Message,
		})
	}

	report := map[string]any{
		"total_errors": len(stats.Errors),
		"by_type":      byType,
		"summary":      stats.ErrorSummary(),
	}
	return storage.WriteJSON(filepath.Join(planDir, "errors.json"), report)
}
