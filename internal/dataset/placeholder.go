// Package dataset expands template ActionPlans across data rows.
package dataset

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/testscribe/testscribe/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`s_([a-zA-Z_][a-zA-Z0-9_]*)(?:\*(\d+))?`)

// genderTranslation maps enumerated gender codes to display values.
var genderTranslation = map[string]string{
	"m":   "男",
	"f":   "女",
	"m,f": "通用",
}

// Placeholder is one s_<field>[*N] token found in a template string.
type Placeholder struct {
	Raw        string
	FieldName  string
	Multiplier int // 0 when absent
}

// IsGender reports whether the placeholder takes the enumerated gender
// translation.
func (p Placeholder) IsGender() bool { return p.FieldName == "gender" }

// IsExpression reports whether the placeholder carries a *N multiplier.
func (p Placeholder) IsExpression() bool { return p.Multiplier > 0 }

// FindPlaceholders returns every placeholder token in text, in order.
func FindPlaceholders(text string) []Placeholder {
	var out []Placeholder
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		p := Placeholder{Raw: m[0], FieldName: m[1]}
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err == nil {
				p.Multiplier = n
			}
		}
		out = append(out, p)
	}
	return out
}

// TranslateGender maps an enumerated gender code to its display value.
func TranslateGender(value string) (string, error) {
	translated, ok := genderTranslation[value]
	if !ok {
		return "", fmt.Errorf("unknown gender value: %s", value)
	}
	return translated, nil
}

// ApplyExpression multiplies a numeric value, rendering integral results
// without a decimal point.
func ApplyExpression(baseValue string, multiplier int) (string, error) {
	num, err := strconv.ParseFloat(strings.TrimSpace(baseValue), 64)
	if err != nil {
		return "", fmt.Errorf("cannot evaluate expression: %s * %d", baseValue, multiplier)
	}
	result := num * float64(multiplier)
	if result == math.Trunc(result) {
		return strconv.FormatInt(int64(result), 10), nil
	}
	return strconv.FormatFloat(result, 'f', -1, 64), nil
}

// replacementValue resolves one placeholder against a data row. A nil error
// list entry means failure was already recorded into stats.
func replacementValue(p Placeholder, data map[string]any, stats *domain.ReplacementStats, dataIndex int) (string, bool) {
	// Try the bare field name first, then the s_ prefixed form.
	candidates := []string{p.FieldName, "s_" + p.FieldName}

	// A null value counts as missing.
	var raw any
	found := false
	for _, field := range candidates {
		if v, ok := data[field]; ok && v != nil {
			raw = v
			found = true
			break
		}
	}

	if !found {
		stats.Add(domain.ReplacementError{
			Type:        domain.ReplaceErrMissingField,
			Placeholder: p.Raw,
			FieldName:   p.FieldName,
			DataIndex:   dataIndex,
			Message:     fmt.Sprintf("data row is missing field %s (tried: %s)", p.FieldName, strings.Join(candidates, ", ")),
		})
		return "", false
	}

	baseValue := stringify(raw)

	if p.IsGender() {
		translated, err := TranslateGender(baseValue)
		if err != nil {
			stats.Add(domain.ReplacementError{
				Type:        domain.ReplaceErrTranslation,
				Placeholder: p.Raw,
				FieldName:   p.FieldName,
				DataIndex:   dataIndex,
				Message:     err.Error(),
			})
			return "", false
		}
		return translated, true
	}

	if p.IsExpression() {
		result, err := ApplyExpression(baseValue, p.Multiplier)
		if err != nil {
			stats.Add(domain.ReplacementError{
				Type:        domain.ReplaceErrExpression,
				Placeholder: p.Raw,
				FieldName:   p.FieldName,
				DataIndex:   dataIndex,
				Message:     err.Error(),
			})
			return "", false
		}
		return result, true
	}

	return baseValue, true
}

// ReplaceInText substitutes every placeholder in text with values from data.
// Errors accumulate into stats; the bool reports full success.
func ReplaceInText(text string, data map[string]any, stats *domain.ReplacementStats, dataIndex int) (string, bool) {
	placeholders := FindPlaceholders(text)
	if len(placeholders) == 0 {
		return text, true
	}

	result := text
	ok := true
	for _, p := range placeholders {
		replacement, success := replacementValue(p, data, stats, dataIndex)
		if !success {
			ok = false
			continue
		}
		result = strings.ReplaceAll(result, p.Raw, replacement)
	}

	// Substituted values may themselves contain placeholder-shaped tokens.
	for _, p := range FindPlaceholders(result) {
		stats.Add(domain.ReplacementError{
			Type:        domain.ReplaceErrUnreplaced,
			Placeholder: p.Raw,
			FieldName:   p.FieldName,
			DataIndex:   dataIndex,
			Message:     fmt.Sprintf("placeholder still present after replacement: %s", p.Raw),
		})
		ok = false
	}

	return result, ok
}

// ReplaceInValue walks maps, slices and strings recursively; other scalars
// pass through untouched. It never fails hard: errors accumulate into stats
// and the bool reports whether every replacement succeeded.
func ReplaceInValue(obj any, data map[string]any, stats *domain.ReplacementStats, dataIndex int) (any, bool) {
	switch v := obj.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		ok := true
		for key, value := range v {
			processed, success := ReplaceInValue(value, data, stats, dataIndex)
			result[key] = processed
			ok = ok && success
		}
		return result, ok

	case []any:
		result := make([]any, 0, len(v))
		ok := true
		for _, item := range v {
			processed, success := ReplaceInValue(item, data, stats, dataIndex)
			result = append(result, processed)
			ok = ok && success
		}
		return result, ok

	case string:
		return ReplaceInText(v, data, stats, dataIndex)

	default:
		return obj, true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
