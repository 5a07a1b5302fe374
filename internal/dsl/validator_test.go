package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testscribe/testscribe/internal/domain"
)

func mustValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func validPlan() *domain.ActionPlan {
	return &domain.ActionPlan{
		Meta: domain.PlanMeta{TestID: "REQ-LOGIN", BaseURL: "https://ex.com"},
		Steps: []domain.ActionStep{
			{T: domain.StepGoto, URL: "/login"},
			{T: domain.StepFill, Selector: "input#username", Value: "alice"},
			{T: domain.StepClick, Selector: "button.sign-in"},
			{T: domain.StepAssert, Selector: ".welcome", Kind: domain.AssertTextContains, Value: "alice"},
		},
	}
}

func TestValidPlanPasses(t *testing.T) {
	v := mustValidator(t)
	assert.Empty(t, v.ValidatePlan(validPlan()))
}

func TestMissingMetaFields(t *testing.T) {
	v := mustValidator(t)

	plan := validPlan()
	plan.Meta.TestID = ""
	issues := v.ValidatePlan(plan)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues[0].Pointer, "/meta")
}

func TestStepRequirements(t *testing.T) {
	v := mustValidator(t)

	tests := []struct {
		name    string
		step    domain.ActionStep
		pointer string
	}{
		{"goto without url", domain.ActionStep{T: domain.StepGoto}, "/steps/0"},
		{"fill without value", domain.ActionStep{T: domain.StepFill, Selector: "input"}, "/steps/0"},
		{"click without selector", domain.ActionStep{T: domain.StepClick}, "/steps/0"},
		{"assert without kind", domain.ActionStep{T: domain.StepAssert, Selector: ".x"}, "/steps/0"},
		{"unknown step type", domain.ActionStep{T: "hover", Selector: ".x"}, "/steps/0/t"},
		{"text assert without value", domain.ActionStep{T: domain.StepAssert, Selector: ".x", Kind: domain.AssertTextEquals}, "/steps/0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &domain.ActionPlan{
				Meta:  domain.PlanMeta{TestID: "T", BaseURL: "https://ex.com"},
				Steps: []domain.ActionStep{tt.step},
			}
			issues := v.ValidatePlan(plan)
			require.NotEmpty(t, issues)
			assert.Contains(t, issues[0].Pointer, tt.pointer)
		})
	}
}

func TestCountValueShapes(t *testing.T) {
	v := mustValidator(t)

	base := func(value any) *domain.ActionPlan {
		return &domain.ActionPlan{
			Meta: domain.PlanMeta{TestID: "T", BaseURL: "https://ex.com"},
			Steps: []domain.ActionStep{
				{T: domain.StepAssert, Selector: ".item", Kind: domain.AssertCountAtLeast, Value: value},
			},
		}
	}

	assert.Empty(t, v.ValidatePlan(base(3)))
	assert.Empty(t, v.ValidatePlan(base("3")))
	assert.NotEmpty(t, v.ValidatePlan(base(-1)))
	assert.NotEmpty(t, v.ValidatePlan(base("three")))
	assert.NotEmpty(t, v.ValidatePlan(base(nil)))
}

func TestSelectorPolicy(t *testing.T) {
	v := mustValidator(t)

	plan := validPlan()
	plan.Steps[2].Selector = `button:contains('Buy')`
	issues := v.ValidatePlan(plan)
	require.NotEmpty(t, issues)
	assert.Equal(t, "/steps/2/selector", issues[0].Pointer)
	assert.Contains(t, issues[0].Message, ":contains")
}

func TestForbiddenFragment(t *testing.T) {
	assert.Equal(t, "", ForbiddenFragment(`button:has-text("Buy")`))
	assert.Equal(t, ":contains", ForbiddenFragment(`a:contains('x')`))
	assert.Equal(t, "::", ForbiddenFragment("p::first-line"))
	assert.Equal(t, "contains(", ForbiddenFragment("//div[contains(@class,'x')]"))
	assert.Equal(t, "[text()", ForbiddenFragment("//a[text()='x']"))
}

func TestErrAndSummarize(t *testing.T) {
	require.NoError(t, Err(nil))

	issues := []Issue{
		{Pointer: "/steps/0/t", Message: "bad type"},
		{Pointer: "/steps/1", Message: "missing url"},
	}
	err := Err(issues)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeSchemaViolation, domain.ErrorCode(err))

	summary := Summarize(issues)
	assert.Contains(t, summary, "/steps/0/t: bad type")
	assert.Contains(t, summary, "/steps/1: missing url")
}
