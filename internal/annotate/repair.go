// Package annotate asks the LLM to name page regions and normalizes its
// replies into site profile pages.
package annotate

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/testscribe/testscribe/internal/domain"
)

var (
	blockCommentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentPattern   = regexp.MustCompile(`(?m)^\s*//.*$`)
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
)

// StripJSONComments removes // line comments and /* */ block comments.
func StripJSONComments(snippet string) string {
	cleaned := blockCommentPattern.ReplaceAllString(snippet, "")
	return lineCommentPattern.ReplaceAllString(cleaned, "")
}

// InsertMissingCommas adds a comma to lines whose successor starts with a
// quote while the line itself ends without one of ,:{[(.
func InsertMissingCommas(snippet string) string {
	lines := strings.Split(snippet, "\n")
	for i := 0; i < len(lines)-1; i++ {
		next := strings.TrimLeft(lines[i+1], " \t")
		if !strings.HasPrefix(next, `"`) {
			continue
		}
		stripped := strings.TrimRight(lines[i], " \t\r")
		if stripped == "" {
			continue
		}
		last := stripped[len(stripped)-1]
		if last == ',' || last == ':' || last == '[' || last == '{' || last == '(' {
			continue
		}
		lines[i] = stripped + "," + lines[i][len(stripped):]
	}
	return strings.Join(lines, "\n")
}

// RemoveTrailingCommas drops commas that directly precede a closing brace
// or bracket.
func RemoveTrailingCommas(snippet string) string {
	return trailingCommaPattern.ReplaceAllString(snippet, "$1")
}

// AppendMissingClosers balances the brace and bracket counts by appending
// the missing closers.
func AppendMissingClosers(snippet string) string {
	balanced := snippet
	if gap := strings.Count(balanced, "{") - strings.Count(balanced, "}"); gap > 0 {
		balanced += strings.Repeat("}", gap)
	}
	if gap := strings.Count(balanced, "[") - strings.Count(balanced, "]"); gap > 0 {
		balanced += strings.Repeat("]", gap)
	}
	return balanced
}

// ParseObject parses an LLM reply into a JSON object, applying the repair
// ladder on failure: strip comments, insert missing commas, strip trailing
// commas, balance closers. Each rung is tried in order; the first parseable
// form wins.
func ParseObject(payload string) (map[string]any, error) {
	if doc, ok := tryParse(payload); ok {
		return doc, nil
	}

	start := strings.Index(payload, "{")
	if start == -1 {
		return nil, &domain.DomainError{
			Code:    domain.ErrCodeAnnotationUnparseable,
			Message: "reply contains no JSON object",
			Err:     domain.ErrAnnotationUnparseable,
		}
	}
	snippet := payload[start:]
	if end := strings.LastIndex(payload, "}"); end > start {
		snippet = payload[start : end+1]
	}
	snippet = strings.TrimSpace(snippet)
	if doc, ok := tryParse(snippet); ok {
		return doc, nil
	}

	repairs := []func(string) string{
		StripJSONComments,
		InsertMissingCommas,
		RemoveTrailingCommas,
		AppendMissingClosers,
	}
	for _, repair := range repairs {
		repaired := repair(snippet)
		if repaired == snippet {
			continue
		}
		if doc, ok := tryParse(repaired); ok {
			return doc, nil
		}
		snippet = repaired
	}

	return nil, &domain.DomainError{
		Code:    domain.ErrCodeAnnotationUnparseable,
		Message: "reply JSON could not be repaired",
		Err:     domain.ErrAnnotationUnparseable,
	}
}

func tryParse(s string) (map[string]any, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, false
	}
	return doc, true
}
