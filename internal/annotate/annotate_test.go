package annotate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/llm"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, _ []llm.Message, _ float64) (string, error) {
	return f.reply, f.err
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantKey string
		wantErr bool
	}{
		{
			name:    "clean object",
			payload: `{"id": "search"}`,
			wantKey: "search",
		},
		{
			name:    "prose around object",
			payload: "好的，结果如下：\n```json\n{\"id\": \"search\"}\n```\n希望有帮助",
			wantKey: "search",
		},
		{
			name:    "comments stripped",
			payload: "{\n// page id\n\"id\": \"search\" /* ok */\n}",
			wantKey: "search",
		},
		{
			name:    "missing comma inserted",
			payload: "{\n\"id\": \"search\"\n\"name\": \"搜索页\"\n}",
			wantKey: "search",
		},
		{
			name:    "trailing comma removed",
			payload: `{"id": "search", "aliases": {"a": {"selector": "#q"},},}`,
			wantKey: "search",
		},
		{
			name:    "missing closers appended",
			payload: `{"id": "search", "aliases": {"a": {"selector": "#q"`,
			wantKey: "search",
		},
		{
			name:    "no object at all",
			payload: "抱歉，我无法分析这个页面。",
			wantErr: true,
		},
		{
			name:    "hopeless fragment",
			payload: `{"id": search page`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseObject(tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, domain.ErrCodeAnnotationUnparseable, domain.ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, doc["id"])
		})
	}
}

func TestNormalizeAliasesMapForm(t *testing.T) {
	raw := map[string]any{
		"search.input": map[string]any{
			"selector":    "input#q",
			"description": "搜索输入框",
			"role":        "输入框",
			"confidence":  "0.9",
		},
		"broken": map[string]any{"description": "no selector"},
	}

	aliases, warnings := NormalizeAliases(raw)
	require.Len(t, aliases, 1)
	assert.Equal(t, "input#q", aliases["search.input"].Selector)
	assert.InDelta(t, 0.9, aliases["search.input"].Confidence, 1e-9)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "broken")
}

func TestNormalizeAliasesListForm(t *testing.T) {
	raw := []any{
		map[string]any{"alias": "detail.title", "selector": "h1.title", "confidence": 0.8},
		map[string]any{"name": "detail.price", "selector": ".price"},
		map[string]any{"selector": ".orphan"},
		"not an object",
	}

	aliases, warnings := NormalizeAliases(raw)
	require.Len(t, aliases, 2)
	assert.Equal(t, "h1.title", aliases["detail.title"].Selector)
	assert.Equal(t, ".price", aliases["detail.price"].Selector)
	assert.Len(t, warnings, 2)
}

func TestAnnotate(t *testing.T) {
	reply := "```json\n" + `{
  "page_id": "search",
  "title": "搜索页",
  "path": "/search*",
  "description": "站内搜索",
  "elements": {
    "search.results": {"selector": ".result-list", "role": "列表", "confidence": 0.7}
  }
}` + "\n```"

	snap := &domain.Snapshot{
		URL:   "https://ex.com/search?q=go",
		Title: "搜索",
		Controls: []domain.Control{
			{Tag: "input", Attrs: map[string]string{"id": "search-box"}, Path: "div.search > input"},
			{Tag: "button", Attrs: map[string]string{"class": "search-btn primary"}, Path: "div.search > button"},
		},
	}

	ann := NewAnnotator(&fakeCompleter{reply: reply}, zap.NewNop())
	got, err := ann.Annotate(context.Background(), snap, "fallback")
	require.NoError(t, err)

	assert.Equal(t, "search", got.Page.ID)
	assert.Equal(t, "搜索页", got.Page.Name)
	assert.Equal(t, "/search*", got.Page.URLPattern)
	assert.Equal(t, "站内搜索", got.Page.Summary)

	require.Contains(t, got.Page.Aliases, "search.results")
	require.Contains(t, got.Page.Aliases, "search.input")
	require.Contains(t, got.Page.Aliases, "search.button")
	assert.Equal(t, "#search-box", got.Page.Aliases["search.input"].Selector)
	assert.Equal(t, "button.search-btn", got.Page.Aliases["search.button"].Selector)
}

func TestAnnotateFallsBackToGivenPageID(t *testing.T) {
	ann := NewAnnotator(&fakeCompleter{reply: `{"aliases": {}}`}, zap.NewNop())
	got, err := ann.Annotate(context.Background(), &domain.Snapshot{URL: "https://ex.com/"}, "home")
	require.NoError(t, err)
	assert.Equal(t, "home", got.Page.ID)
	assert.Equal(t, "/", got.Page.URLPattern)
}

func TestAnnotateUnparseableReply(t *testing.T) {
	ann := NewAnnotator(&fakeCompleter{reply: "无法分析"}, zap.NewNop())
	_, err := ann.Annotate(context.Background(), &domain.Snapshot{}, "p")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeAnnotationUnparseable, domain.ErrorCode(err))
}

func TestAnnotateAbstractsDetailName(t *testing.T) {
	reply := `{"id": "detail", "name": "《Go语言实战》：限时特价！", "aliases": {}}`
	ann := NewAnnotator(&fakeCompleter{reply: reply}, zap.NewNop())
	got, err := ann.Annotate(context.Background(), &domain.Snapshot{URL: "https://ex.com/product/42"}, "detail")
	require.NoError(t, err)
	assert.Equal(t, "限时特价详情页", got.Page.Name)
}

func TestEnrichDoesNotDuplicate(t *testing.T) {
	page := &domain.SitePage{Aliases: map[string]domain.SiteAlias{
		"search.input": {Selector: "input#q"},
	}}
	controls := []domain.Control{
		{Tag: "input", Attrs: map[string]string{"id": "search-box"}, Path: "input"},
	}

	added := EnrichSearchAliases(page, controls)
	assert.Empty(t, added)
	assert.Equal(t, "input#q", page.Aliases["search.input"].Selector)
}

func TestEnrichSkipsSelectorAlreadyPresent(t *testing.T) {
	page := &domain.SitePage{Aliases: map[string]domain.SiteAlias{
		"header.search": {Selector: "#search-box"},
	}}
	controls := []domain.Control{
		{Tag: "input", Attrs: map[string]string{"id": "search-box"}, Path: "input"},
	}

	added := EnrichSearchAliases(page, controls)
	assert.Empty(t, added)
	assert.NotContains(t, page.Aliases, "search.input")
}

func TestControlSelector(t *testing.T) {
	tests := []struct {
		name    string
		control domain.Control
		want    string
	}{
		{"id wins", domain.Control{Tag: "input", Attrs: map[string]string{"id": "q", "class": "box"}}, "#q"},
		{"first class", domain.Control{Tag: "input", Attrs: map[string]string{"class": "search-box wide"}}, "input.search-box"},
		{"data-test", domain.Control{Tag: "input", Attrs: map[string]string{"data-test": "kw"}}, "[data-test='kw']"},
		{"name attr", domain.Control{Tag: "input", Attrs: map[string]string{"name": "q"}}, "input[name='q']"},
		{"aria label", domain.Control{Tag: "button", Attrs: map[string]string{"aria-label": "搜索"}}, "button[aria-label='搜索']"},
		{"path fallback", domain.Control{Tag: "button", Path: "div > button", Attrs: map[string]string{}}, "div > button"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ControlSelector(&tt.control))
		})
	}
}

func TestAbstractDetailName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"《Go语言实战》：限时特价！", "限时特价详情页"},
		{"商品详情页", "商品详情页"},
		{"标题——副标题", "副标题详情页"},
		{"一二三四五六七八九十十一十二", "一二三四五六七八九十详情页"},
		{"？！。", "详情页"},
		{"", "详情页"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AbstractDetailName(tt.raw), "raw=%q", tt.raw)
	}
}

func TestDeriveDetailLabel(t *testing.T) {
	assert.Equal(t, "博客详情页", DeriveDetailLabel("https://ex.com/blog/123"))
	assert.Equal(t, "产品详情页", DeriveDetailLabel("https://ex.com/product/go-book"))
	assert.Equal(t, "详情页", DeriveDetailLabel("https://ex.com/xyz/1"))
}
