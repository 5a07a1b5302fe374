package domain

import (
	"strconv"
	"time"
)

// DomNode is one element of the abbreviated DOM tree captured by a snapshot.
// The snapshot script assigns DomID and writes it back onto the live DOM as
// a data-dom-id attribute so later operations can address the same node.
type DomNode struct {
	DomID    string            `json:"dom_id"`
	Tag      string            `json:"tag"`
	Depth    int               `json:"depth"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Path     string            `json:"path"`
	Text     string            `json:"text,omitempty"`
	Children []*DomNode        `json:"children,omitempty"`
}

// Control is a flat descriptor of an input/textarea/select/button element.
type Control struct {
	DomID string            `json:"dom_id,omitempty"`
	Tag   string            `json:"tag"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Path  string            `json:"path"`
	Text  string            `json:"text,omitempty"`
}

// SnapshotStats summarizes the captured DOM tree.
type SnapshotStats struct {
	NodeCount int `json:"node_count"`
	MaxDepth  int `json:"max_depth"`
}

// Snapshot is an offline bundle of one page at one moment.
type Snapshot struct {
	SnapshotID string        `json:"snapshot_id"`
	URL        string        `json:"url"`
	Title      string        `json:"title"`
	CreatedAt  time.Time     `json:"created_at"`
	DomTree    *DomNode      `json:"dom_tree,omitempty"`
	Controls   []Control     `json:"controls,omitempty"`
	A11yTree   any           `json:"a11y_tree,omitempty"`
	HTML       string        `json:"-"`
	Stats      SnapshotStats `json:"stats"`
}

// SiteAlias maps a human-meaningful name to a CSS selector plus metadata.
// Confidence is advisory only; nothing downstream branches on it.
type SiteAlias struct {
	Name        string  `json:"name,omitempty"`
	Selector    string  `json:"selector"`
	Description string  `json:"description,omitempty"`
	Role        string  `json:"role,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	PageID      string  `json:"page_id,omitempty"`
}

// SitePage is one page entry inside a SiteProfile.
type SitePage struct {
	ID          string               `json:"id"`
	Name        string               `json:"name,omitempty"`
	URLPattern  string               `json:"url_pattern,omitempty"`
	Version     string               `json:"version,omitempty"`
	GeneratedAt string               `json:"generated_at,omitempty"`
	GeneratedBy string               `json:"generated_by,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	Aliases     map[string]SiteAlias `json:"aliases,omitempty"`
	History     []SitePage           `json:"history,omitempty"`
}

// SiteInfo identifies the site a profile belongs to.
type SiteInfo struct {
	Name    string `json:"name,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// SiteProfile is the persistent alias knowledge for one site.
type SiteProfile struct {
	Version string      `json:"version"`
	Site    *SiteInfo   `json:"site,omitempty"`
	Pages   []*SitePage `json:"pages"`
}

// FindPage returns the page entry with the given id, or nil.
func (p *SiteProfile) FindPage(id string) *SitePage {
	for _, pg := range p.Pages {
		if pg.ID == id {
			return pg
		}
	}
	return nil
}

// AllAliases flattens every page's alias table, stamping Name and PageID on
// each entry.
func (p *SiteProfile) AllAliases() map[string]SiteAlias {
	out := make(map[string]SiteAlias)
	for _, pg := range p.Pages {
		for name, alias := range pg.Aliases {
			alias.Name = name
			alias.PageID = pg.ID
			out[name] = alias
		}
	}
	return out
}

// AnnotatedPage is the annotator's output: one page entry plus warnings.
type AnnotatedPage struct {
	Page     SitePage `json:"page"`
	Warnings []string `json:"warnings,omitempty"`
}

// RequestStep is one numbered step of a TestRequest.
type RequestStep struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// TestRequest is a natural-language test scenario parsed from Markdown.
type TestRequest struct {
	Title      string        `json:"title"`
	BaseURL    string        `json:"base_url,omitempty"`
	Steps      []RequestStep `json:"steps"`
	SourcePath string        `json:"source_path,omitempty"`
}

// Step kinds of the ActionPlan DSL.
const (
	StepGoto   = "goto"
	StepFill   = "fill"
	StepClick  = "click"
	StepAssert = "assert"
)

// Assertion kinds.
const (
	AssertVisible      = "visible"
	AssertInvisible    = "invisible"
	AssertTextContains = "text_contains"
	AssertTextEquals   = "text_equals"
	AssertTextRegex    = "text_regex"
	AssertCountEquals  = "count_equals"
	AssertCountAtLeast = "count_at_least"
)

// ActionStep is one operation of an ActionPlan. Value holds a string for
// fill/text assertions and a string or number for count assertions,
// mirroring the wire format.
type ActionStep struct {
	T        string `json:"t"`
	Selector string `json:"selector,omitempty"`
	URL      string `json:"url,omitempty"`
	Value    any    `json:"value,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// ValueString renders Value for fill and text assertions.
func (s ActionStep) ValueString() string {
	switch v := s.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// PlanMeta carries ActionPlan identity.
type PlanMeta struct {
	TestID     string `json:"testId"`
	BaseURL    string `json:"baseUrl"`
	DataSource string `json:"dataSource,omitempty"`
}

// ActionPlan is a replayable program of UI steps.
type ActionPlan struct {
	Meta  PlanMeta     `json:"meta"`
	Steps []ActionStep `json:"steps"`
}

// DataItem is one row of a dataset category.
type DataItem struct {
	Index int            `json:"index"`
	Data  map[string]any `json:"data"`
}

// DataSet is one extracted dataset category.
type DataSet struct {
	Category string     `json:"category"`
	Items    []DataItem `json:"items"`
}

// Placeholder replacement error types, accumulated per row rather than thrown.
const (
	ReplaceErrMissingField = "missing_field"
	ReplaceErrTranslation  = "translation_error"
	ReplaceErrExpression   = "expression_error"
	ReplaceErrUnreplaced   = "unreplaced_placeholder"
)

// ReplacementError records one failed placeholder substitution.
type ReplacementError struct {
	Type        string `json:"error_type"`
	Placeholder string `json:"placeholder"`
	FieldName   string `json:"field_name"`
	DataIndex   int    `json:"data_index"`
	Message     string `json:"message"`
}

// ReplacementStats accumulates expansion outcomes across a dataset.
type ReplacementStats struct {
	TotalItems      int                `json:"total_items"`
	SuccessfulItems int                `json:"successful_items"`
	FailedItems     int                `json:"failed_items"`
	Errors          []ReplacementError `json:"-"`
}

// Add records one replacement error.
func (s *ReplacementStats) Add(e ReplacementError) {
	s.Errors = append(s.Errors, e)
}

// ErrorSummary returns error counts keyed by error type.
func (s *ReplacementStats) ErrorSummary() map[string]int {
	out := make(map[string]int)
	for _, e := range s.Errors {
		out[e.Type]++
	}
	return out
}

// Run statuses.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// StepResult records the outcome of one executed step.
type StepResult struct {
	Index        int    `json:"index"`
	Action       string `json:"t"`
	Selector     string `json:"selector,omitempty"`
	Status       string `json:"status"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at"`
	Error        string `json:"error,omitempty"`
	Screenshot   string `json:"screenshot,omitempty"`
	CurrentURL   string `json:"current_url,omitempty"`
	PageTitle    string `json:"page_title,omitempty"`
	DomSizeBytes int    `json:"dom_size_bytes,omitempty"`
}

// RunResult is the structured record of one case execution.
type RunResult struct {
	RunID        string       `json:"run_id"`
	TestID       string       `json:"test_id"`
	Status       string       `json:"status"`
	StartedAt    string       `json:"started_at"`
	FinishedAt   string       `json:"finished_at"`
	Steps        []StepResult `json:"steps"`
	ArtifactsDir string       `json:"artifacts_dir"`
	Error        string       `json:"error,omitempty"`
}

// PassedSteps counts the steps that passed.
func (r *RunResult) PassedSteps() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StatusPassed {
			n++
		}
	}
	return n
}

// FirstFailure returns the first failed step, or nil.
func (r *RunResult) FirstFailure() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StatusFailed {
			return &r.Steps[i]
		}
	}
	return nil
}

// CaseOutcome pairs a case name with its run record inside a batch. The
// summary fields duplicate the run record so batch_summary.json stays
// readable without chasing nested objects.
type CaseOutcome struct {
	CaseName     string     `json:"case_name"`
	TestID       string     `json:"test_id,omitempty"`
	Status       string     `json:"status,omitempty"`
	StepsPassed  int        `json:"steps_passed"`
	StepsTotal   int        `json:"steps_total"`
	ArtifactsDir string     `json:"artifacts_dir,omitempty"`
	Result       *RunResult `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// BatchResult aggregates a batch execution. Passed + Failed + Error always
// equals Total once the batch completes.
type BatchResult struct {
	BatchID      string        `json:"batch_id"`
	Total        int           `json:"total"`
	Passed       int           `json:"passed"`
	Failed       int           `json:"failed"`
	Error        int           `json:"error"`
	SuccessRate  float64       `json:"success_rate"`
	CaseResults  []CaseOutcome `json:"case_results"`
	ArtifactsDir string        `json:"artifacts_dir"`
	StartedAt    string        `json:"started_at"`
	FinishedAt   string        `json:"finished_at"`
}

// Timestamp formats t the way artifact directories and profile versions are
// named.
func Timestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
