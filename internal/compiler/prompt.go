package compiler

import (
	"fmt"
	"strings"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/dsl"
)

const systemPrompt = `你是一名浏览器自动化测试DSL专家。你把自然语言测试需求编译成严格符合JSON Schema的ActionPlan。
只输出一个完整的JSON对象，不要输出任何解释、注释或Markdown以外的文字。`

const generationRules = `生成规则：
1. selector 必须是 Playwright 兼容的CSS选择器。按文本过滤时使用 :has-text("...")，绝对禁止 :contains。
2. 优先使用站点档案中列出的别名选择器，不要自己猜测新的选择器。
3. 操作类型要与元素角色匹配：fill 只用于输入框类别名；click 只用于按钮/链接类别名；assert 用于文本/标题/图片类别名。
4. 图片断言的 kind 必须是 visible，且 img 选择器不能与 :has-text 组合，也不能携带 value。
5. goto 步骤的 url 可以是相对路径，会基于 meta.baseUrl 解析。`

const exemplarPlan = `{
  "meta": {"testId": "REQ-SEARCH-BOOK", "baseUrl": "https://example.com"},
  "steps": [
    {"t": "goto", "url": "/search"},
    {"t": "fill", "selector": "input#q", "value": "Go in Action"},
    {"t": "click", "selector": "button.search-btn"},
    {"t": "assert", "selector": ".result-list", "kind": "text_contains", "value": "Go in Action"}
  ]
}`

// dslPrompt is the schema-plus-rules message sent once per compile.
func dslPrompt() string {
	var b strings.Builder
	b.WriteString("ActionPlan JSON Schema：\n```json\n")
	b.WriteString(dsl.SchemaJSON)
	b.WriteString("\n```\n\n")
	b.WriteString(generationRules)
	b.WriteString("\n\n示例ActionPlan：\n```json\n")
	b.WriteString(exemplarPlan)
	b.WriteString("\n```")
	return b.String()
}

// requestPrompt renders the test request and the site profile summary.
func requestPrompt(req *domain.TestRequest, profile *domain.SiteProfile) string {
	var b strings.Builder
	b.WriteString("测试需求：\n")
	fmt.Fprintf(&b, "标题：%s\n", req.Title)
	if req.BaseURL != "" {
		fmt.Fprintf(&b, "基础URL：%s\n", req.BaseURL)
	}
	b.WriteString("步骤：\n")
	for _, step := range req.Steps {
		fmt.Fprintf(&b, "%d. %s\n", step.Index, step.Text)
	}

	b.WriteString("\n")
	b.WriteString(renderProfile(profile))
	b.WriteString("\n请输出完整的ActionPlan JSON。")
	return b.String()
}

// renderProfile lists every page's aliases as name, selector, role and
// description lines the model can copy from.
func renderProfile(profile *domain.SiteProfile) string {
	if profile == nil || len(profile.Pages) == 0 {
		return "站点档案：无可用别名。"
	}
	var b strings.Builder
	b.WriteString("站点档案（别名 → 选择器）：\n")
	for _, page := range profile.Pages {
		fmt.Fprintf(&b, "页面 %s", page.ID)
		if page.Name != "" {
			fmt.Fprintf(&b, "（%s）", page.Name)
		}
		if page.URLPattern != "" {
			fmt.Fprintf(&b, " %s", page.URLPattern)
		}
		b.WriteString("：\n")
		for name, alias := range page.Aliases {
			fmt.Fprintf(&b, "  - %s → %s", name, alias.Selector)
			if alias.Role != "" {
				fmt.Fprintf(&b, " [%s]", alias.Role)
			}
			if alias.Description != "" {
				fmt.Fprintf(&b, " %s", alias.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// repairMessage quotes the fault back to the model and asks for a full
// corrected plan.
func repairMessage(fault string) string {
	return fmt.Sprintf("上一次输出存在以下问题：\n%s\n请修正后重新输出完整的ActionPlan JSON对象，不要只输出差异。", fault)
}
