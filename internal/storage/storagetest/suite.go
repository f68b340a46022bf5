// Package storagetest holds a behavioural test suite shared by every
// storage.Store implementation.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
)

// Run exercises newStore against the storage contract. newStore must return
// an empty store; the suite closes it.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"SiteRoundTrip", testSiteRoundTrip},
		{"PageUniquePerPath", testPageUniquePerPath},
		{"LemmaLookup", testLemmaLookup},
		{"PostingUpsert", testPostingUpsert},
		{"DeletePageCascades", testDeletePageCascades},
		{"DeleteLemmaCascades", testDeleteLemmaCascades},
		{"DeleteSiteCascades", testDeleteSiteCascades},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func seedSite(t *testing.T, s storage.Store, url string) *model.Site {
	t.Helper()
	site := &model.Site{URL: url, Name: url, Status: model.StatusIndexing, StatusTime: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, s.SaveSite(context.Background(), site))
	require.NotZero(t, site.ID)
	return site
}

func seedPage(t *testing.T, s storage.Store, siteID int64, path string) *model.Page {
	t.Helper()
	page := &model.Page{SiteID: siteID, Path: path, Code: 200, Content: "<p>" + path + "</p>"}
	require.NoError(t, s.SavePage(context.Background(), page))
	require.NotZero(t, page.ID)
	return page
}

func seedLemma(t *testing.T, s storage.Store, siteID int64, text string, freq int) *model.Lemma {
	t.Helper()
	lemma := &model.Lemma{SiteID: siteID, Text: text, Frequency: freq}
	require.NoError(t, s.SaveLemma(context.Background(), lemma))
	require.NotZero(t, lemma.ID)
	return lemma
}

func testSiteRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	exists, err := s.AnySites(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	site := seedSite(t, s, "http://a.test")
	site.SetStatus(model.StatusFailed, "boom", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, s.SaveSite(ctx, site))

	got, err := s.FindSiteByURL(ctx, "http://a.test")
	require.NoError(t, err)
	assert.Equal(t, site.ID, got.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.LastError)
	assert.True(t, site.StatusTime.Equal(got.StatusTime))

	byID, err := s.FindSiteByID(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://a.test", byID.URL)

	seedSite(t, s, "http://b.test")
	all, err := s.FindAllSites(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.FindSiteByURL(ctx, "http://missing.test")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testPageUniquePerPath(t *testing.T, s storage.Store) {
	ctx := context.Background()
	site := seedSite(t, s, "http://a.test")
	page := seedPage(t, s, site.ID, "http://a.test/x")

	got, err := s.FindPageByPath(ctx, site.ID, "http://a.test/x")
	require.NoError(t, err)
	assert.Equal(t, page.ID, got.ID)
	assert.Equal(t, page.Content, got.Content)

	seedPage(t, s, site.ID, "http://a.test/y")
	n, err := s.CountPagesBySite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pages, err := s.FindPagesBySite(ctx, site.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	_, err = s.FindPageByPath(ctx, site.ID, "http://a.test/z")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testLemmaLookup(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := seedSite(t, s, "http://a.test")
	b := seedSite(t, s, "http://b.test")
	seedLemma(t, s, a.ID, "кот", 3)
	seedLemma(t, s, a.ID, "пес", 1)
	seedLemma(t, s, b.ID, "кот", 5)

	lemma, err := s.FindLemma(ctx, a.ID, "кот")
	require.NoError(t, err)
	assert.Equal(t, 3, lemma.Frequency)

	lemma.Frequency = 7
	require.NoError(t, s.SaveLemma(ctx, lemma))
	lemma, err = s.FindLemma(ctx, a.ID, "кот")
	require.NoError(t, err)
	assert.Equal(t, 7, lemma.Frequency)

	all, err := s.FindLemmasByText(ctx, []string{"кот"}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := s.FindLemmasByText(ctx, []string{"кот", "пес"}, a.ID)
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	n, err := s.CountLemmasBySite(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exists, err := s.AnyLemmas(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func testPostingUpsert(t *testing.T, s storage.Store) {
	ctx := context.Background()
	site := seedSite(t, s, "http://a.test")
	p1 := seedPage(t, s, site.ID, "http://a.test/1")
	p2 := seedPage(t, s, site.ID, "http://a.test/2")
	lemma := seedLemma(t, s, site.ID, "кот", 3)

	require.NoError(t, s.SavePosting(ctx, &model.Posting{PageID: p1.ID, LemmaID: lemma.ID, Rank: 2}))
	require.NoError(t, s.SavePosting(ctx, &model.Posting{PageID: p1.ID, LemmaID: lemma.ID, Rank: 5}))
	require.NoError(t, s.SavePostings(ctx, []model.Posting{{PageID: p2.ID, LemmaID: lemma.ID, Rank: 1}}))

	postings, err := s.FindPostingsByLemma(ctx, lemma.ID, site.ID)
	require.NoError(t, err)
	require.Len(t, postings, 2)
	ranks := map[int64]float64{}
	for _, p := range postings {
		ranks[p.PageID] = p.Rank
	}
	assert.Equal(t, 5.0, ranks[p1.ID])
	assert.Equal(t, 1.0, ranks[p2.ID])

	n, err := s.CountPagesByLemma(ctx, lemma.ID, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DeletePosting(ctx, postings[0].ID))
	n, err = s.CountPagesByLemma(ctx, lemma.ID, site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testDeletePageCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	site := seedSite(t, s, "http://a.test")
	page := seedPage(t, s, site.ID, "http://a.test/1")
	lemma := seedLemma(t, s, site.ID, "кот", 1)
	require.NoError(t, s.SavePosting(ctx, &model.Posting{PageID: page.ID, LemmaID: lemma.ID, Rank: 1}))

	require.NoError(t, s.DeletePage(ctx, page.ID))

	_, err := s.FindPageByID(ctx, page.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	n, err := s.CountPagesByLemma(ctx, lemma.ID, site.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = s.FindLemma(ctx, site.ID, "кот")
	assert.NoError(t, err, "lemma rows survive page deletion")
}

func testDeleteLemmaCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	site := seedSite(t, s, "http://a.test")
	page := seedPage(t, s, site.ID, "http://a.test/1")
	lemma := seedLemma(t, s, site.ID, "кот", 1)
	require.NoError(t, s.SavePosting(ctx, &model.Posting{PageID: page.ID, LemmaID: lemma.ID, Rank: 1}))

	require.NoError(t, s.DeleteLemma(ctx, lemma.ID))

	_, err := s.FindLemma(ctx, site.ID, "кот")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	postings, err := s.FindPostingsByLemma(ctx, lemma.ID, site.ID)
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func testDeleteSiteCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := seedSite(t, s, "http://a.test")
	b := seedSite(t, s, "http://b.test")
	pa := seedPage(t, s, a.ID, "http://a.test/1")
	pb := seedPage(t, s, b.ID, "http://b.test/1")
	la := seedLemma(t, s, a.ID, "кот", 1)
	lb := seedLemma(t, s, b.ID, "кот", 1)
	require.NoError(t, s.SavePosting(ctx, &model.Posting{PageID: pa.ID, LemmaID: la.ID, Rank: 1}))
	require.NoError(t, s.SavePosting(ctx, &model.Posting{PageID: pb.ID, LemmaID: lb.ID, Rank: 1}))

	require.NoError(t, s.DeleteSiteByURL(ctx, "http://a.test"))

	_, err := s.FindSiteByID(ctx, a.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.FindPageByID(ctx, pa.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.FindLemma(ctx, a.ID, "кот")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err := s.CountPagesByLemma(ctx, lb.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "other sites are untouched")

	require.NoError(t, s.DeleteSiteByID(ctx, b.ID))
	exists, err := s.AnySites(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = s.AnyLemmas(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}
