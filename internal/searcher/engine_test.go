package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/lemma"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage/memory"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/errors"
)

type identityAnalyzer struct{}

func (identityAnalyzer) BaseForms(token string) ([]string, error) { return []string{token}, nil }
func (identityAnalyzer) Tags(string) ([]string, error)            { return nil, nil }

type fixture struct {
	store    storage.Store
	pipeline *lemma.Pipeline
	indexer  *indexer.Engine
}

func newFixture() *fixture {
	store := memory.New()
	pipeline := lemma.NewPipeline(identityAnalyzer{})
	return &fixture{store: store, pipeline: pipeline, indexer: indexer.NewEngine(store, pipeline)}
}

func (f *fixture) site(t *testing.T, url string, status model.Status, pages map[string]string) *model.Site {
	t.Helper()
	ctx := context.Background()
	site := &model.Site{URL: url, Name: "Site " + url, Status: status}
	require.NoError(t, f.store.SaveSite(ctx, site))
	for path, content := range pages {
		require.NoError(t, f.indexer.AddPage(ctx, &model.Page{SiteID: site.ID, Path: url + path, Code: 200, Content: content}))
	}
	require.NoError(t, f.indexer.RecalculateRanks(ctx, site.ID))
	return site
}

func (f *fixture) engine(threshold float64) *Engine {
	return NewEngine(f.store, f.pipeline, config.SearchConfig{FilterThreshold: threshold, CoverageWeight: 1})
}

// Four pages: кот df=1, пес df=2, мышь/слон/жираф df=1.
var zoo = map[string]string{
	"/a": "<html><head><title>Кошки</title></head><body><p>Кот кот пес</p></body></html>",
	"/b": "<p>пес мышь</p>",
	"/c": "<p>слон</p>",
	"/d": "<p>жираф</p>",
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newFixture()
	_, err := f.engine(0.5).Search(context.Background(), Query{Text: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	assert.Equal(t, MsgEmptyQuery, apperrors.Message(err))
}

func TestSearchNotReady(t *testing.T) {
	ctx := context.Background()

	t.Run("no sites", func(t *testing.T) {
		_, err := newFixture().engine(0.5).Search(ctx, Query{Text: "кот"})
		assert.True(t, apperrors.Is(err, apperrors.ErrIndexNotReady))
		assert.Equal(t, MsgIndexNotReady, apperrors.Message(err))
	})

	t.Run("site still indexing", func(t *testing.T) {
		f := newFixture()
		f.site(t, "http://a.test", model.StatusIndexing, zoo)
		_, err := f.engine(0.5).Search(ctx, Query{Text: "кот", Site: "http://a.test"})
		assert.True(t, apperrors.Is(err, apperrors.ErrIndexNotReady))
	})

	t.Run("unknown site", func(t *testing.T) {
		f := newFixture()
		f.site(t, "http://a.test", model.StatusIndexed, zoo)
		_, err := f.engine(0.5).Search(ctx, Query{Text: "кот", Site: "http://b.test"})
		assert.True(t, apperrors.Is(err, apperrors.ErrIndexNotReady))
	})

	t.Run("no lemmas", func(t *testing.T) {
		f := newFixture()
		f.site(t, "http://a.test", model.StatusIndexed, nil)
		_, err := f.engine(0.5).Search(ctx, Query{Text: "кот"})
		assert.True(t, apperrors.Is(err, apperrors.ErrIndexNotReady))
	})
}

func TestSearchSingleSiteIntersects(t *testing.T) {
	f := newFixture()
	f.site(t, "http://a.test", model.StatusIndexed, zoo)

	resp, err := f.engine(0.6).Search(context.Background(), Query{Text: "кот пес", Site: "http://a.test/"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	require.Len(t, resp.Results, 1)

	r := resp.Results[0]
	assert.Equal(t, "http://a.test", r.Site)
	assert.Equal(t, "Site http://a.test", r.SiteName)
	assert.Equal(t, "/a", r.URI)
	assert.Equal(t, "Кошки", r.Title)
	assert.InDelta(t, 1.0, r.Relevance, 1e-9)
	assert.Contains(t, r.Snippet, "<b>Кот</b>")
	assert.Contains(t, r.Snippet, "<b>пес</b>")
}

func TestSearchSingleSiteNoCommonPage(t *testing.T) {
	f := newFixture()
	f.site(t, "http://a.test", model.StatusIndexed, zoo)

	resp, err := f.engine(0.6).Search(context.Background(), Query{Text: "кот мышь", Site: "http://a.test"})
	require.NoError(t, err)
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Results)
}

func TestSearchAllSitesUnites(t *testing.T) {
	f := newFixture()
	f.site(t, "http://a.test", model.StatusIndexed, zoo)

	resp, err := f.engine(0.6).Search(context.Background(), Query{Text: "кот пес"})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "/a", resp.Results[0].URI)
	assert.Equal(t, "/b", resp.Results[1].URI)
	assert.InDelta(t, 1.0, resp.Results[0].Relevance, 1e-9)
	assert.Less(t, resp.Results[1].Relevance, resp.Results[0].Relevance)
	assert.Equal(t, untitled, resp.Results[1].Title)

	paged, err := f.engine(0.6).Search(context.Background(), Query{Text: "кот пес", Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, paged.Count)
	require.Len(t, paged.Results, 1)
	assert.Equal(t, "/b", paged.Results[0].URI)
}

func TestSearchAcrossSeveralSites(t *testing.T) {
	f := newFixture()
	f.site(t, "http://a.test", model.StatusIndexed, zoo)
	f.site(t, "http://b.test", model.StatusIndexed, map[string]string{
		"/":  "<p>кот</p>",
		"/x": "<p>лев</p>",
		"/y": "<p>тигр</p>",
	})

	resp, err := f.engine(0.6).Search(context.Background(), Query{Text: "кот"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	sites := map[string]string{}
	for _, r := range resp.Results {
		sites[r.Site] = r.URI
	}
	assert.Equal(t, map[string]string{"http://a.test": "/a", "http://b.test": "/"}, sites)
}

func TestSearchFiltersCommonLemmas(t *testing.T) {
	f := newFixture()
	f.site(t, "http://a.test", model.StatusIndexed, zoo)

	// пес is on 2 of 4 pages.
	resp, err := f.engine(0.3).Search(context.Background(), Query{Text: "пес"})
	require.NoError(t, err)
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Results)

	resp, err = f.engine(0.3).Search(context.Background(), Query{Text: "пес кот"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "/a", resp.Results[0].URI)
}

func TestSearchUnknownWord(t *testing.T) {
	f := newFixture()
	f.site(t, "http://a.test", model.StatusIndexed, zoo)

	resp, err := f.engine(0.5).Search(context.Background(), Query{Text: "носорог"})
	require.NoError(t, err)
	assert.Zero(t, resp.Count)
}

func TestNormalize(t *testing.T) {
	e := NewEngine(memory.New(), lemma.NewPipeline(identityAnalyzer{}), config.SearchConfig{DefaultLimit: 20, MaxLimit: 50})
	q := e.Normalize(Query{Text: "  кот ", Offset: -3})
	assert.Equal(t, Query{Text: "кот", Offset: 0, Limit: 20}, q)
	assert.Equal(t, 50, e.Normalize(Query{Text: "кот", Limit: 500}).Limit)
}

func TestRelativeURI(t *testing.T) {
	tests := []struct {
		site, path, want string
	}{
		{"http://a.test", "http://a.test/", "/"},
		{"http://a.test/", "http://a.test", "/"},
		{"http://a.test", "http://a.test/news/1?p=2", "/news/1?p=2"},
		{"http://a.test", "http://www.a.test/about", "/about"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relativeURI(tt.site, tt.path), tt.path)
	}
}
