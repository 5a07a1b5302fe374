package annotate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/testscribe/testscribe/internal/domain"
)

var searchKeywordPattern = regexp.MustCompile(`(?i)search|lookup|find`)

// EnrichSearchAliases scans the captured controls for a search box and its
// submit button and adds search.input and search.button aliases when the LLM
// did not already cover them, by name or by selector. It returns the names of
// the aliases it added.
func EnrichSearchAliases(page *domain.SitePage, controls []domain.Control) []string {
	var input, button *domain.Control
	for i := range controls {
		c := &controls[i]
		if !controlLooksLikeSearch(c) {
			continue
		}
		if input == nil && controlIsInput(c) {
			input = c
		}
		if button == nil && controlIsButton(c) {
			button = c
		}
	}

	var added []string
	if input != nil {
		if name, ok := addAlias(page, "search.input", domain.SiteAlias{
			Selector:    ControlSelector(input),
			Description: "搜索区域输入框",
			Role:        "文本输入",
			Confidence:  0.85,
		}); ok {
			added = append(added, name)
		}
	}
	if button != nil {
		if name, ok := addAlias(page, "search.button", domain.SiteAlias{
			Selector:    ControlSelector(button),
			Description: "搜索区域提交按钮",
			Role:        "按钮",
			Confidence:  0.85,
		}); ok {
			added = append(added, name)
		}
	}
	return added
}

func addAlias(page *domain.SitePage, name string, alias domain.SiteAlias) (string, bool) {
	if page.Aliases == nil {
		page.Aliases = make(map[string]domain.SiteAlias)
	}
	if _, exists := page.Aliases[name]; exists {
		return "", false
	}
	for _, existing := range page.Aliases {
		if existing.Selector == alias.Selector {
			return "", false
		}
	}
	page.Aliases[name] = alias
	return name, true
}

func controlLooksLikeSearch(c *domain.Control) bool {
	parts := []string{
		c.Attrs["id"],
		c.Attrs["class"],
		c.Attrs["role"],
		c.Path,
		c.Attrs["aria-label"],
		c.Attrs["name"],
		c.Attrs["data-test"],
	}
	return searchKeywordPattern.MatchString(strings.ToLower(strings.Join(parts, " ")))
}

func controlIsInput(c *domain.Control) bool {
	if c.Tag == "input" || c.Tag == "textarea" {
		return true
	}
	role := c.Attrs["role"]
	return role == "textbox" || role == "combobox"
}

func controlIsButton(c *domain.Control) bool {
	if c.Tag == "button" {
		return true
	}
	role := c.Attrs["role"]
	return role == "button" || role == "link"
}

// ControlSelector builds the most stable CSS selector a control offers:
// id, then first class, then data-test, name, aria-label, finally the
// structural path.
func ControlSelector(c *domain.Control) string {
	if id := c.Attrs["id"]; id != "" {
		return "#" + id
	}
	if class := c.Attrs["class"]; class != "" {
		if first := strings.Fields(class); len(first) > 0 {
			return c.Tag + "." + first[0]
		}
	}
	if dt := c.Attrs["data-test"]; dt != "" {
		return fmt.Sprintf("[data-test='%s']", dt)
	}
	if name := c.Attrs["name"]; name != "" {
		return fmt.Sprintf("%s[name='%s']", c.Tag, name)
	}
	if label := c.Attrs["aria-label"]; label != "" {
		return fmt.Sprintf("%s[aria-label='%s']", c.Tag, label)
	}
	return c.Path
}

var (
	detailQuoteChars   = "“”\"《》"
	detailSeparators   = []string{"：", ":", "——", "—", " - ", "--"}
	detailTrimPattern  = regexp.MustCompile(`[\?？!！。.]+$`)
	detailSegmentLabel = map[string]string{
		"blog":    "博客",
		"article": "文章",
		"news":    "新闻",
		"product": "产品",
		"case":    "案例",
		"course":  "课程",
		"doc":     "文档",
	}
)

// AbstractDetailName turns a concrete page title like 《Go语言实战》：限时特价
// into a reusable page name. It keeps the last separator segment, trims
// punctuation, caps the result at ten runes and appends 详情页.
func AbstractDetailName(raw string) string {
	name := strings.TrimSpace(raw)
	for _, ch := range strings.Split(detailQuoteChars, "") {
		name = strings.ReplaceAll(name, ch, "")
	}
	name = strings.ReplaceAll(name, "详情页", "")

	for _, sep := range detailSeparators {
		if !strings.Contains(name, sep) {
			continue
		}
		parts := strings.Split(name, sep)
		for i := len(parts) - 1; i >= 0; i-- {
			if seg := strings.TrimSpace(parts[i]); seg != "" {
				name = seg
				break
			}
		}
	}

	name = strings.TrimSpace(detailTrimPattern.ReplaceAllString(name, ""))
	if name == "" {
		return "详情页"
	}
	runes := []rune(name)
	if len(runes) > 10 {
		name = string(runes[:10])
	}
	return name + "详情页"
}

// DeriveDetailLabel guesses a detail page label from the URL path, falling
// back to the generic 详情页.
func DeriveDetailLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "详情页"
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if label, ok := detailSegmentLabel[strings.ToLower(seg)]; ok {
			return label + "详情页"
		}
	}
	return "详情页"
}
