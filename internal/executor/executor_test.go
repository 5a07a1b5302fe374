package executor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testscribe/testscribe/internal/domain"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base string
		ref  string
		want string
	}{
		{"https://ex.com", "/login", "https://ex.com/login"},
		{"https://ex.com/app/", "search", "https://ex.com/app/search"},
		{"https://ex.com", "https://other.com/x", "https://other.com/x"},
		{"https://ex.com/login", "", "https://ex.com/login"},
		{"", "/login", "/login"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveURL(tt.base, tt.ref), "%s + %s", tt.base, tt.ref)
	}
}

func TestNormalizeStepError(t *testing.T) {
	got := NormalizeStepError(errors.New("playwright: Timeout 10000ms exceeded waiting for locator"))
	assert.Equal(t, "验证失败：未能找到指定的DOM元素", got)

	got = NormalizeStepError(errors.New("断言失败：期望文本包含 \"x\""))
	assert.Contains(t, got, "断言失败")
}

func TestCountValue(t *testing.T) {
	n, err := CountValue(float64(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CountValue("12")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	for _, bad := range []any{float64(-1), float64(1.5), "three", nil} {
		_, err := CountValue(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestCheckText(t *testing.T) {
	assert.NoError(t, checkText(domain.AssertTextContains, "价格：1100M币", "1100"))
	assert.Error(t, checkText(domain.AssertTextContains, "价格：550M币", "1100"))

	assert.NoError(t, checkText(domain.AssertTextEquals, "  Book A \n", "Book A"))
	assert.Error(t, checkText(domain.AssertTextEquals, "Book B", "Book A"))

	assert.NoError(t, checkText(domain.AssertTextRegex, "总计 42 件", `\d+ 件`))
	assert.Error(t, checkText(domain.AssertTextRegex, "无结果", `\d+ 件`))
	assert.Error(t, checkText(domain.AssertTextRegex, "x", `([`))
}

func TestCheckCount(t *testing.T) {
	assert.NoError(t, checkCount(domain.AssertCountEquals, 3, 3))
	assert.Error(t, checkCount(domain.AssertCountEquals, 2, 3))
	assert.NoError(t, checkCount(domain.AssertCountAtLeast, 5, 3))
	assert.Error(t, checkCount(domain.AssertCountAtLeast, 2, 3))
}

func TestClickWithRetry(t *testing.T) {
	firstErr := errors.New("element detached")
	secondErr := errors.New("still detached")

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantRetry bool
		wantErr   error
	}{
		{name: "first try succeeds", errs: []error{nil}, wantCalls: 1},
		{name: "retry succeeds", errs: []error{firstErr, nil}, wantCalls: 2, wantRetry: true},
		{name: "retry fails", errs: []error{firstErr, secondErr}, wantCalls: 2, wantRetry: true, wantErr: secondErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			click := func() error {
				err := tt.errs[calls]
				calls++
				return err
			}

			var retryWith error
			err := clickWithRetry(click, time.Millisecond, func(e error) { retryWith = e })

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantRetry {
				assert.Equal(t, firstErr, retryWith)
			} else {
				assert.NoError(t, retryWith)
			}
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeTestID(t *testing.T) {
	assert.Equal(t, "REQ-LOGIN-TEST", SanitizeTestID("REQ-LOGIN-TEST"))
	assert.Equal(t, "REQ-A-B", SanitizeTestID("REQ A/B"))
	assert.Equal(t, "plan", SanitizeTestID("???"))
}

func writeCase(t *testing.T, casesDir, name string) {
	t.Helper()
	dir := filepath.Join(casesDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "action_plan.json"), []byte(`{"meta":{"testId":"T","baseUrl":"https://ex.com"},"steps":[]}`), 0o644))
}

func TestDiscoverCases(t *testing.T) {
	planDir := t.TempDir()
	casesDir := filepath.Join(planDir, "cases")
	writeCase(t, casesDir, "case_b")
	writeCase(t, casesDir, "case_a")

	// A directory without a plan file is skipped; a loose JSON file counts.
	require.NoError(t, os.MkdirAll(filepath.Join(casesDir, "empty_dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(casesDir, "case_c.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(casesDir, "notes.txt"), []byte("x"), 0o644))

	cases, err := DiscoverCases(planDir)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "case_a", cases[0].Name)
	assert.Equal(t, "case_b", cases[1].Name)
	assert.Equal(t, "case_c", cases[2].Name)
}

func TestSampleCasesDeterministic(t *testing.T) {
	var cases []Case
	for _, n := range []string{"c01", "c02", "c03", "c04", "c05", "c06", "c07", "c08", "c09", "c10"} {
		cases = append(cases, Case{Name: n})
	}

	first := SampleCases(cases, 3, 42)
	second := SampleCases(cases, 3, 42)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)

	other := SampleCases(cases, 3, 7)
	require.Len(t, other, 3)

	all := SampleCases(cases, 0, 42)
	assert.Len(t, all, 10)
	capped := SampleCases(cases, 99, 42)
	assert.Len(t, capped, 10)
}

func sampleBatch() *domain.BatchResult {
	return &domain.BatchResult{
		BatchID: "20260101T000000Z_batch_run",
		Total:   3, Passed: 1, Failed: 1, Error: 1,
		StartedAt:  "2026-01-01T00:00:00Z",
		FinishedAt: "2026-01-01T00:01:00Z",
		CaseResults: []domain.CaseOutcome{
			{CaseName: "case_a", Result: &domain.RunResult{
				Status:       domain.StatusPassed,
				StartedAt:    "2026-01-01T00:00:00Z",
				FinishedAt:   "2026-01-01T00:00:10Z",
				ArtifactsDir: "results/batch/case_a",
				Steps: []domain.StepResult{
					{Index: 0, Action: "goto", Status: domain.StatusPassed},
					{Index: 1, Action: "fill", Status: domain.StatusPassed},
				},
			}},
			{CaseName: "case_b", Result: &domain.RunResult{
				Status:       domain.StatusFailed,
				StartedAt:    "2026-01-01T00:00:10Z",
				FinishedAt:   "2026-01-01T00:00:30Z",
				ArtifactsDir: "results/batch/case_b",
				Steps: []domain.StepResult{
					{Index: 0, Action: "goto", Status: domain.StatusPassed},
					{Index: 1, Action: "assert", Status: domain.StatusFailed, Error: "验证失败：未能找到指定的DOM元素"},
				},
			}},
			{CaseName: "case_c", Error: "reading plan: file vanished"},
		},
	}
}

func TestRenderReport(t *testing.T) {
	got := RenderReport(sampleBatch())

	assert.Contains(t, got, "## 📊 总体统计")
	assert.Contains(t, got, "| 总用例数 | 3 |")
	assert.Contains(t, got, "| 通过率 | 33.3% |")

	assert.Contains(t, got, "## ❌ 未通过的用例")
	assert.Contains(t, got, "| case_b |")
	assert.Contains(t, got, "第2步 (assert)")
	assert.Contains(t, got, "验证失败：未能找到指定的DOM元素")
	assert.Contains(t, got, "| case_c |")
	assert.Contains(t, got, "file vanished")

	assert.Contains(t, got, "## ✅ 通过的用例")
	assert.Contains(t, got, "| case_a | results/batch/case_a | 10s | 2 |")
	assert.Contains(t, got, "报告生成时间：")
}

func TestBatchAccounting(t *testing.T) {
	b := sampleBatch()
	assert.Equal(t, b.Total, b.Passed+b.Failed+b.Error)
}

func TestRunResultHelpers(t *testing.T) {
	run := sampleBatch().CaseResults[1].Result
	assert.Equal(t, 1, run.PassedSteps())
	require.NotNil(t, run.FirstFailure())
	assert.Equal(t, 1, run.FirstFailure().Index)

	passed := sampleBatch().CaseResults[0].Result
	assert.Nil(t, passed.FirstFailure())
}
