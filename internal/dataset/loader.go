package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/testscribe/testscribe/internal/domain"
)

// LoadFile reads and parses a dataset JSON file.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}
	return raw, nil
}

// ExtractCategory pulls one category's rows out of a parsed dataset
// document of the form {data:{categories:[{category_key, items:[...]}]}}.
func ExtractCategory(raw map[string]any, category string) (*domain.DataSet, error) {
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected dataset shape: missing data.categories")
	}
	categories, ok := data["categories"].([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected dataset shape: missing data.categories")
	}

	var target map[string]any
	for _, c := range categories {
		cat, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if key, _ := cat["category_key"].(string); key == category {
			target = cat
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("category not found: %s", category)
	}

	itemsRaw, _ := target["items"].([]any)
	ds := &domain.DataSet{Category: category}
	for i, item := range itemsRaw {
		row, ok := item.(map[string]any)
		if !ok {
			row = map[string]any{}
		}
		ds.Items = append(ds.Items, domain.DataItem{Index: i, Data: row})
	}

	return ds, nil
}
