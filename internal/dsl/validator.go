package dsl

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/testscribe/testscribe/internal/domain"
)

// ForbiddenSelectorFragments are rejected in any persisted selector.
// Playwright has no :contains; pseudo-elements and XPath text() leaked in
// from jQuery-era prompts.
var ForbiddenSelectorFragments = []string{":contains", "::", "contains(", "[text()"}

// Issue is one schema violation located by a JSON pointer.
type Issue struct {
	Pointer string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Pointer, i.Message)
}

// Validator checks ActionPlan documents against the DSL schema and the
// selector policy.
type Validator struct {
	schema  *jsonschema.Schema
	printer *message.Printer
}

// NewValidator compiles the built-in schema.
func NewValidator() (*Validator, error) {
	return newValidator(SchemaJSON)
}

// NewValidatorFromFile compiles a schema loaded from disk, for deployments
// that override the built-in DSL.
func NewValidatorFromFile(path string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return newValidator(string(data))
}

func newValidator(schemaJSON string) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("actionplan.schema.json", doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	schema, err := c.Compile("actionplan.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	return &Validator{
		schema:  schema,
		printer: message.NewPrinter(language.English),
	}, nil
}

// Validate checks a decoded ActionPlan document. It returns one Issue per
// leaf violation; an empty slice means the document is valid.
func (v *Validator) Validate(doc any) []Issue {
	err := v.schema.Validate(doc)
	if err == nil {
		return v.checkSelectors(doc)
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Issue{{Pointer: "/", Message: err.Error()}}
	}

	var issues []Issue
	v.flatten(ve, &issues)
	return append(issues, v.checkSelectors(doc)...)
}

// ValidateJSON parses raw JSON and validates it.
func (v *Validator) ValidateJSON(data []byte) (any, []Issue, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing plan JSON: %w", err)
	}
	return doc, v.Validate(doc), nil
}

// ValidatePlan round-trips a typed plan through JSON and validates it.
func (v *Validator) ValidatePlan(plan *domain.ActionPlan) []Issue {
	data, err := json.Marshal(plan)
	if err != nil {
		return []Issue{{Pointer: "/", Message: err.Error()}}
	}
	_, issues, err := v.ValidateJSON(data)
	if err != nil {
		return []Issue{{Pointer: "/", Message: err.Error()}}
	}
	return issues
}

// Err converts issues to a SCHEMA_VIOLATION error, nil when there are none.
func Err(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	first := issues[0]
	err := domain.SchemaViolationError(first.Pointer, first.Message)
	if len(issues) > 1 {
		err.WithDetail("additional_issues", len(issues)-1)
	}
	return err
}

// Summarize renders issues for a repair prompt, one per line.
func Summarize(issues []Issue) string {
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = "- " + issue.String()
	}
	return strings.Join(lines, "\n")
}

func (v *Validator) flatten(ve *jsonschema.ValidationError, out *[]Issue) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Issue{
			Pointer: pointer(ve.InstanceLocation),
			Message: ve.ErrorKind.LocalizedString(v.printer),
		})
		return
	}
	for _, cause := range ve.Causes {
		v.flatten(cause, out)
	}
}

// checkSelectors applies the selector policy to every step selector.
func (v *Validator) checkSelectors(doc any) []Issue {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	steps, ok := root["steps"].([]any)
	if !ok {
		return nil
	}

	var issues []Issue
	for i, raw := range steps {
		step, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		selector, _ := step["selector"].(string)
		if selector == "" {
			continue
		}
		if frag := ForbiddenFragment(selector); frag != "" {
			issues = append(issues, Issue{
				Pointer: fmt.Sprintf("/steps/%d/selector", i),
				Message: fmt.Sprintf("selector contains forbidden fragment %q", frag),
			})
		}
	}
	return issues
}

// ForbiddenFragment returns the first disallowed fragment found in the
// selector, or empty string when the selector is acceptable.
func ForbiddenFragment(selector string) string {
	for _, frag := range ForbiddenSelectorFragments {
		if strings.Contains(selector, frag) {
			return frag
		}
	}
	return ""
}

func pointer(location []string) string {
	if len(location) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, token := range location {
		token = strings.ReplaceAll(token, "~", "~0")
		token = strings.ReplaceAll(token, "/", "~1")
		b.WriteString("/")
		b.WriteString(token)
	}
	return b.String()
}
