package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/llm"
)

// Completer is the slice of the LLM client the annotator needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

const annotateSystemPrompt = `你是一名资深前端测试工程专家，擅长阅读页面DOM结构并为页面中的关键元素起稳定、语义化的别名。
别名使用 "区域.元素" 的点分格式，例如 search.input、detail.title、nav.login_button。
只输出一个JSON对象，不要输出任何解释性文字。`

const annotateUserTemplate = `请分析下面的页面快照，识别页面类型，并为可交互元素和关键文本元素生成别名表。

输出JSON格式：
{
  "id": "页面标识，如 search、detail、home",
  "name": "页面中文名称",
  "url_pattern": "URL匹配模式，如 /search*",
  "summary": "一句话页面摘要",
  "aliases": {
    "search.input": {"selector": "input#q", "description": "搜索输入框", "role": "输入框", "confidence": 0.9}
  }
}

要求：
1. selector 必须是标准CSS选择器，优先使用 id、稳定的 class、data-test 属性，禁止使用 :contains。
2. 每个别名给出 role（如 输入框、按钮、文本、链接）和 0 到 1 的 confidence。
3. 只收录对测试有意义的元素，不要逐一罗列装饰性节点。

页面快照：
%s`

// Annotator turns a page snapshot into a named profile page entry.
type Annotator struct {
	client Completer
	logger *zap.Logger
}

// NewAnnotator creates an Annotator.
func NewAnnotator(client Completer, logger *zap.Logger) *Annotator {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return &Annotator{client: client, logger: logger}
}

// Annotate asks the LLM to describe the snapshot, repairs and normalizes the
// reply, and deterministically enriches the alias table from the captured
// controls. pageID is used when the reply carries no id of its own.
func (a *Annotator) Annotate(ctx context.Context, snap *domain.Snapshot, pageID string) (*domain.AnnotatedPage, error) {
	summary, err := snapshotSummary(snap)
	if err != nil {
		return nil, fmt.Errorf("rendering snapshot summary: %w", err)
	}

	messages := []llm.Message{
		llm.System(annotateSystemPrompt),
		llm.User(fmt.Sprintf(annotateUserTemplate, summary)),
	}
	reply, err := a.client.Complete(ctx, messages, 0.2)
	if err != nil {
		return nil, fmt.Errorf("annotating page: %w", err)
	}

	doc, err := ParseObject(reply)
	if err != nil {
		return nil, err
	}
	payload := pagePayload(doc)

	aliases, warnings := NormalizeAliases(rawAliases(payload))

	page := domain.SitePage{
		ID:         firstNonEmpty(stringField(payload, "id", "page_id"), pageID),
		Name:       stringField(payload, "name", "title"),
		URLPattern: stringField(payload, "url_pattern", "path"),
		Summary:    stringField(payload, "summary", "description"),
		Aliases:    aliases,
	}
	if page.ID == "" {
		page.ID = "page"
	}
	if page.URLPattern == "" {
		page.URLPattern = urlPathPattern(snap.URL)
	}
	if isDetailPage(page.ID, page.Name) {
		if page.Name == "" {
			page.Name = DeriveDetailLabel(snap.URL)
		} else {
			page.Name = AbstractDetailName(page.Name)
		}
	}

	added := EnrichSearchAliases(&page, snap.Controls)
	for _, name := range added {
		a.logger.Debug("added alias from controls", zap.String("alias", name))
	}

	a.logger.Info("annotated page",
		zap.String("page_id", page.ID),
		zap.Int("aliases", len(page.Aliases)),
		zap.Int("warnings", len(warnings)))

	return &domain.AnnotatedPage{Page: page, Warnings: warnings}, nil
}

// NormalizeAliases accepts both reply shapes the LLM produces, a map keyed by
// alias name and a list of objects carrying an alias or name field. Entries
// without a selector are dropped with a warning.
func NormalizeAliases(raw any) (map[string]domain.SiteAlias, []string) {
	out := make(map[string]domain.SiteAlias)
	var warnings []string

	add := func(name string, body map[string]any) {
		selector := stringField(body, "selector")
		if selector == "" {
			warnings = append(warnings, fmt.Sprintf("alias %q has no selector, dropped", name))
			return
		}
		out[name] = domain.SiteAlias{
			Selector:    selector,
			Description: stringField(body, "description"),
			Role:        stringField(body, "role"),
			Confidence:  floatField(body, "confidence"),
			Notes:       stringField(body, "notes"),
		}
	}

	switch v := raw.(type) {
	case map[string]any:
		for name, entry := range v {
			body, ok := entry.(map[string]any)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("alias %q is not an object, dropped", name))
				continue
			}
			add(name, body)
		}
	case []any:
		for _, entry := range v {
			body, ok := entry.(map[string]any)
			if !ok {
				warnings = append(warnings, "alias list entry is not an object, dropped")
				continue
			}
			name := stringField(body, "alias", "name")
			if name == "" {
				warnings = append(warnings, "alias list entry has no name, dropped")
				continue
			}
			add(name, body)
		}
	case nil:
	default:
		warnings = append(warnings, "aliases field has unexpected shape, ignored")
	}
	return out, warnings
}

func snapshotSummary(snap *domain.Snapshot) (string, error) {
	payload := map[string]any{
		"url":      snap.URL,
		"title":    snap.Title,
		"stats":    snap.Stats,
		"controls": snap.Controls,
	}
	if snap.DomTree != nil {
		payload["dom_tree"] = snap.DomTree
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(data) + "\n```", nil
}

func pagePayload(doc map[string]any) map[string]any {
	if p, ok := doc["page"].(map[string]any); ok {
		return p
	}
	return doc
}

func rawAliases(payload map[string]any) any {
	if v, ok := payload["aliases"]; ok {
		return v
	}
	return payload["elements"]
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func urlPathPattern(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/"
	}
	return u.Path + "*"
}

func isDetailPage(id, name string) bool {
	return strings.Contains(strings.ToLower(id), "detail") || strings.Contains(name, "详情")
}
