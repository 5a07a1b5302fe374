package compiler

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/storage"
)

// WriteOptions names the plan directory layout.
type WriteOptions struct {
	PlanRoot string
	PlanName string
	CaseName string
}

// WritePlan persists an accepted plan under
// <plan_root>/<plan_name>/cases/<case_name>/action_plan.json and returns
// the plan and case directories.
func WritePlan(plan *domain.ActionPlan, opts WriteOptions) (string, string, error) {
	planName := opts.PlanName
	if planName == "" {
		planName = domain.Timestamp(time.Now()) + "_llm_plan"
	}
	caseName := opts.CaseName
	if caseName == "" {
		caseName = "case_" + strings.ToLower(plan.Meta.TestID)
	}

	planDir := filepath.Join(opts.PlanRoot, planName)
	caseDir := filepath.Join(planDir, "cases", caseName)
	if err := storage.WriteJSON(filepath.Join(caseDir, "action_plan.json"), plan); err != nil {
		return "", "", err
	}
	return planDir, caseDir, nil
}
