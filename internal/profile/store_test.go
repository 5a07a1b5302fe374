package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
)

func annotated(pageID, selector string) *domain.AnnotatedPage {
	return &domain.AnnotatedPage{
		Page: domain.SitePage{
			ID:         pageID,
			Name:       "搜索页",
			URLPattern: "/search*",
			Aliases: map[string]domain.SiteAlias{
				"search.input": {Selector: selector, Role: "输入框"},
			},
		},
	}
}

func TestMergeCreatesNewProfile(t *testing.T) {
	store := NewStore(zap.NewNop())
	path := filepath.Join(t.TempDir(), "site.json")

	res, err := store.MergePage(path, annotated("search", "input#q"), MergeOptions{SiteName: "demo", BaseURL: "https://ex.com"})
	require.NoError(t, err)
	assert.True(t, res.CreatedNewFile)

	loaded, err := store.Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Pages, 1)
	assert.Equal(t, "search", loaded.Pages[0].ID)
	assert.Equal(t, "demo", loaded.Site.Name)
	assert.Equal(t, "https://ex.com", loaded.Site.BaseURL)
	assert.NotEmpty(t, loaded.Version)
	assert.Equal(t, "testscribe-profile", loaded.Pages[0].GeneratedBy)
}

func TestMergeMovesPriorEntryIntoHistory(t *testing.T) {
	store := NewStore(zap.NewNop())
	path := filepath.Join(t.TempDir(), "site.json")

	_, err := store.MergePage(path, annotated("search", "input#q"), MergeOptions{})
	require.NoError(t, err)

	res, err := store.MergePage(path, annotated("search", "input#query"), MergeOptions{})
	require.NoError(t, err)
	assert.False(t, res.CreatedNewFile)

	loaded, err := store.Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Pages, 1)

	page := loaded.Pages[0]
	assert.Equal(t, "input#query", page.Aliases["search.input"].Selector)
	require.Len(t, page.History, 1)
	assert.Equal(t, "input#q", page.History[0].Aliases["search.input"].Selector)
	assert.Empty(t, page.History[0].History)

	// A third merge grows history again; it never shrinks.
	_, err = store.MergePage(path, annotated("search", "input#kw"), MergeOptions{})
	require.NoError(t, err)
	loaded, err = store.Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Pages[0].History, 2)
}

func TestMergeAppendsUnknownPage(t *testing.T) {
	store := NewStore(zap.NewNop())
	path := filepath.Join(t.TempDir(), "site.json")

	_, err := store.MergePage(path, annotated("search", "input#q"), MergeOptions{})
	require.NoError(t, err)
	_, err = store.MergePage(path, annotated("detail", ".product-title"), MergeOptions{})
	require.NoError(t, err)

	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Pages, 2)
}

func TestMergeDryRunWritesNothing(t *testing.T) {
	store := NewStore(zap.NewNop())
	path := filepath.Join(t.TempDir(), "site.json")

	_, err := store.MergePage(path, annotated("search", "input#q"), MergeOptions{DryRun: true})
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRejectsMissingPages(t *testing.T) {
	store := NewStore(zap.NewNop())
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "1"}`), 0o644))

	_, err := store.Load(path)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidProfile, domain.ErrorCode(err))

	require.NoError(t, os.WriteFile(path, []byte(`{"pages": "nope"}`), 0o644))
	_, err = store.Load(path)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeInvalidProfile, domain.ErrorCode(err))
}

func TestAllAliases(t *testing.T) {
	p := &domain.SiteProfile{Pages: []*domain.SitePage{
		{ID: "search", Aliases: map[string]domain.SiteAlias{"search.input": {Selector: "input#q"}}},
		{ID: "detail", Aliases: map[string]domain.SiteAlias{"detail.title": {Selector: "h1.title"}}},
	}}

	all := p.AllAliases()
	require.Len(t, all, 2)
	assert.Equal(t, "search", all["search.input"].PageID)
	assert.Equal(t, "search.input", all["search.input"].Name)
	assert.Equal(t, "h1.title", all["detail.title"].Selector)
}
