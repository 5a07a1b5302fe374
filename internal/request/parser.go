// Package request parses natural-language test request documents.
package request

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/testscribe/testscribe/internal/domain"
)

var (
	urlPattern = regexp.MustCompile(`(?i)https?://[\w\-./?=#%&:+]+`)
	// Steps are numbered lines starting at column 0; indented numbering
	// belongs to nested lists and stays out of the step sequence.
	stepPattern = regexp.MustCompile(`^(\d+)[\.、]\s*(.+)$`)
)

// ParseFile reads a Markdown test request from disk.
func ParseFile(path string) (*domain.TestRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}

	req := Parse(string(data))
	req.SourcePath = path
	if req.Title == "" {
		req.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(req.Steps) == 0 {
		return nil, domain.InvalidRequestError(fmt.Sprintf("no numbered steps found in %s", path))
	}

	return req, nil
}

// Parse extracts the title, numbered steps and first URL from Markdown text.
// The first "#" heading is the title; lines like "1." or "1、" become steps;
// the first URL anywhere in the document seeds the base URL.
func Parse(text string) *domain.TestRequest {
	req := &domain.TestRequest{}

	for _, line := range strings.Split(text, "\n") {
		if req.Title == "" && strings.HasPrefix(line, "#") {
			req.Title = strings.TrimSpace(strings.TrimLeft(line, "# "))
			continue
		}

		m := stepPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		req.Steps = append(req.Steps, domain.RequestStep{
			Index: index,
			Text:  strings.TrimSpace(m[2]),
		})
	}

	if url := urlPattern.FindString(text); url != "" {
		req.BaseURL = url
	}

	return req
}
