package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/storage"
)

func templatePlan() map[string]any {
	return map[string]any{
		"meta": map[string]any{"testId": "REQ-SEARCH", "baseUrl": "https://ex.com"},
		"steps": []any{
			map[string]any{"t": "fill", "selector": "input#q", "value": "s_name"},
			map[string]any{"t": "assert", "selector": ".price", "kind": "text_contains", "value": "s_price*2"},
		},
	}
}

func sampleDataSet() *domain.DataSet {
	return &domain.DataSet{
		Category: "books",
		Items: []domain.DataItem{
			{Index: 0, Data: map[string]any{"name": "Book A", "price": "550"}},
			{Index: 1, Data: map[string]any{"name": "Book B", "price": "10"}},
			{Index: 2, Data: map[string]any{"name": "Book C"}},
		},
	}
}

func TestExpand(t *testing.T) {
	exp := NewExpander(zap.NewNop())

	result, err := exp.Expand(templatePlan(), "REQ-SEARCH", "https://ex.com", sampleDataSet())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Stats.TotalItems)
	assert.Equal(t, 2, result.Stats.SuccessfulItems)
	assert.Equal(t, 1, result.Stats.FailedItems)
	require.Len(t, result.Cases, 2)

	first := result.Cases[0]
	meta := first["meta"].(map[string]any)
	assert.Equal(t, "REQ-SEARCH_001", meta["testId"])
	assert.Equal(t, "dataset#0", meta["dataSource"])

	steps := first["steps"].([]any)
	assert.Equal(t, "Book A", steps[0].(map[string]any)["value"])
	assert.Equal(t, "1100", steps[1].(map[string]any)["value"])

	second := result.Cases[1]
	assert.Equal(t, "REQ-SEARCH_002", second["meta"].(map[string]any)["testId"])
	assert.Equal(t, "dataset#1", second["meta"].(map[string]any)["dataSource"])

	// Template itself stays untouched.
	tplSteps := result.Template["steps"].([]any)
	assert.Equal(t, "s_name", tplSteps[0].(map[string]any)["value"])
}

func TestExpandRecordsErrors(t *testing.T) {
	exp := NewExpander(zap.NewNop())

	ds := &domain.DataSet{Items: []domain.DataItem{{Index: 0, Data: map[string]any{}}}}
	result, err := exp.Expand(templatePlan(), "T", "https://ex.com", ds)
	require.NoError(t, err)

	assert.Empty(t, result.Cases)
	assert.Equal(t, 1, result.Stats.FailedItems)
	summary := result.Stats.ErrorSummary()
	assert.Equal(t, 2, summary[domain.ReplaceErrMissingField])
}

func TestExtractCategory(t *testing.T) {
	raw := map[string]any{
		"data": map[string]any{
			"categories": []any{
				map[string]any{"category_key": "books", "items": []any{
					map[string]any{"name": "A"},
					map[string]any{"name": "B"},
				}},
				map[string]any{"category_key": "toys", "items": []any{}},
			},
		},
	}

	ds, err := ExtractCategory(raw, "books")
	require.NoError(t, err)
	assert.Equal(t, "books", ds.Category)
	require.Len(t, ds.Items, 2)
	assert.Equal(t, 1, ds.Items[1].Index)

	_, err = ExtractCategory(raw, "missing")
	assert.Error(t, err)

	_, err = ExtractCategory(map[string]any{"data": map[string]any{}}, "books")
	assert.Error(t, err)
}

func TestWriteResults(t *testing.T) {
	exp := NewExpander(zap.NewNop())
	result, err := exp.Expand(templatePlan(), "REQ-SEARCH", "https://ex.com", sampleDataSet())
	require.NoError(t, err)

	root := t.TempDir()
	planDir, caseDir, err := WriteResults(result, WriteOptions{OutputRoot: root, PlanName: "plan_x"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "plan_x"), planDir)

	_, err = os.Stat(filepath.Join(planDir, "action_plan_template.json"))
	require.NoError(t, err)

	var stats map[string]any
	require.NoError(t, storage.ReadJSON(filepath.Join(planDir, "stats.json"), &stats))
	assert.Equal(t, float64(3), stats["total_items"])
	assert.Equal(t, float64(2), stats["successful_items"])

	var errReport map[string]any
	require.NoError(t, storage.ReadJSON(filepath.Join(planDir, "errors.json"), &errReport))
	assert.Equal(t, float64(2), errReport["total_errors"])

	entries, err := os.ReadDir(caseDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
