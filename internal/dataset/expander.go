package dataset

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
)

// ExpandResult holds the cases generated from one template over a dataset.
type ExpandResult struct {
	Template   map[string]any
	TestIDBase string
	BaseURL    string
	Cases      []map[string]any
	Stats      domain.ReplacementStats
}

// Expander turns a template ActionPlan with placeholders into one concrete
// plan per dataset row.
type Expander struct {
	logger *zap.Logger
}

// NewExpander creates an Expander.
func NewExpander(logger *zap.Logger) *Expander {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return &Expander{logger: logger}
}

// Expand applies placeholder replacement to a deep copy of the template for
// each row. Rows with any failed replacement are dropped and counted; the
// rest get unique test ids and a dataSource marker.
func (e *Expander) Expand(template map[string]any, testIDBase, baseURL string, ds *domain.DataSet) (*ExpandResult, error) {
	result := &ExpandResult{
		Template:   template,
		TestIDBase: testIDBase,
		BaseURL:    baseURL,
	}
	result.Stats.TotalItems = len(ds.Items)

	for _, item := range ds.Items {
		casePlan, ok, err := e.expandOne(template, testIDBase, item.Index, item.Data, &result.Stats)
		if err != nil {
			return nil, err
		}
		if ok {
			result.Cases = append(result.Cases, casePlan)
			result.Stats.SuccessfulItems++
		} else {
			result.Stats.FailedItems++
		}
	}

	e.logger.Info("dataset expansion complete",
		zap.String("test_id_base", testIDBase),
		zap.Int("total", result.Stats.TotalItems),
		zap.Int("succeeded", result.Stats.SuccessfulItems),
		zap.Int("failed", result.Stats.FailedItems))

	return result, nil
}

func (e *Expander) expandOne(template map[string]any, testIDBase string, dataIndex int, data map[string]any, stats *domain.ReplacementStats) (map[string]any, bool, error) {
	copied, err := deepCopy(template)
	if err != nil {
		return nil, false, fmt.Errorf("copying template: %w", err)
	}

	replaced, ok := ReplaceInValue(copied, data, stats, dataIndex)
	if !ok {
		return nil, false, nil
	}

	plan, isMap := replaced.(map[string]any)
	if !isMap {
		return nil, false, nil
	}

	updateMeta(plan, testIDBase, dataIndex)
	return plan, true, nil
}

// updateMeta stamps the per-row test id and data source onto the plan.
func updateMeta(plan map[string]any, testIDBase string, dataIndex int) {
	meta, ok := plan["meta"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		plan["meta"] = meta
	}

	testID := testIDBase
	if existing, ok := meta["testId"].(string); ok && existing != "" {
		testID = existing
	}
	meta["testId"] = fmt.Sprintf("%s_%03d", testID, dataIndex+1)
	meta["dataSource"] = fmt.Sprintf("dataset#%d", dataIndex)
}

func deepCopy(obj map[string]any) (map[string]any, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
