package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/storage"
)

// WriteReport renders the batch's Markdown report to path.
func WriteReport(batch *domain.BatchResult, path string) error {
	return storage.WriteFileAtomic(path, []byte(RenderReport(batch)), 0o644)
}

// RenderReport builds the Markdown summary: an overall table, the failed
// cases with their first failure, and the passed cases.
func RenderReport(batch *domain.BatchResult) string {
	var b strings.Builder

	b.WriteString("# 测试报告\n\n")
	fmt.Fprintf(&b, "- 批次：%s\n", batch.BatchID)
	fmt.Fprintf(&b, "- 开始时间：%s\n", batch.StartedAt)
	fmt.Fprintf(&b, "- 结束时间：%s\n\n", batch.FinishedAt)

	b.WriteString("## 📊 总体统计\n\n")
	b.WriteString("| 指标 | 数值 |\n|---|---|\n")
	fmt.Fprintf(&b, "| 总用例数 | %d |\n", batch.Total)
	fmt.Fprintf(&b, "| 通过 | %d |\n", batch.Passed)
	fmt.Fprintf(&b, "| 失败 | %d |\n", batch.Failed)
	fmt.Fprintf(&b, "| 错误 | %d |\n", batch.Error)
	fmt.Fprintf(&b, "| 通过率 | %s |\n\n", passRate(batch))

	var failed, passed []domain.CaseOutcome
	for _, c := range batch.CaseResults {
		if c.Error == "" && c.Result != nil && c.Result.Status == domain.StatusPassed {
			passed = append(passed, c)
		} else {
			failed = append(failed, c)
		}
	}

	if len(failed) > 0 {
		b.WriteString("## ❌ 未通过的用例\n\n")
		b.WriteString("| Case ID | 结果目录 | 执行时长 | 通过步骤 | 失败步骤 | 错误信息 |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, c := range failed {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
				c.CaseName,
				caseDir(c),
				caseDuration(c),
				passedSteps(c),
				failedStep(c),
				escapeCell(failureMessage(c)))
		}
		b.WriteString("\n")
	}

	if len(passed) > 0 {
		b.WriteString("## ✅ 通过的用例\n\n")
		b.WriteString("| Case ID | 结果目录 | 执行时长 | 通过步骤 |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, c := range passed {
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n",
				c.CaseName, caseDir(c), caseDuration(c), passedSteps(c))
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	fmt.Fprintf(&b, "报告生成时间：%s\n", time.Now().UTC().Format(time.RFC3339))
	return b.String()
}

func passRate(batch *domain.BatchResult) string {
	if batch.Total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(batch.Passed)/float64(batch.Total)*100)
}

func caseDir(c domain.CaseOutcome) string {
	if c.Result != nil && c.Result.ArtifactsDir != "" {
		return c.Result.ArtifactsDir
	}
	return "-"
}

func caseDuration(c domain.CaseOutcome) string {
	if c.Result == nil {
		return "-"
	}
	start, err1 := time.Parse(time.RFC3339, c.Result.StartedAt)
	end, err2 := time.Parse(time.RFC3339, c.Result.FinishedAt)
	if err1 != nil || err2 != nil {
		return "-"
	}
	return end.Sub(start).Round(time.Millisecond).String()
}

func passedSteps(c domain.CaseOutcome) int {
	if c.Result == nil {
		return 0
	}
	return c.Result.PassedSteps()
}

func failedStep(c domain.CaseOutcome) string {
	if c.Result == nil {
		return "-"
	}
	if f := c.Result.FirstFailure(); f != nil {
		return fmt.Sprintf("第%d步 (%s)", f.Index+1, f.Action)
	}
	return "-"
}

func failureMessage(c domain.CaseOutcome) string {
	if c.Error != "" {
		return c.Error
	}
	if c.Result == nil {
		return "-"
	}
	if f := c.Result.FirstFailure(); f != nil {
		return f.Error
	}
	if c.Result.Error != "" {
		return c.Result.Error
	}
	return "-"
}

// escapeCell keeps pipes and newlines from breaking the table.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
