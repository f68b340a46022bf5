package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
)

func list(lemmaID int64, freq int, ranks map[int64]float64) LemmaPostings {
	lp := LemmaPostings{Lemma: model.Lemma{ID: lemmaID, SiteID: 1, Frequency: freq}}
	for pageID, rank := range ranks {
		lp.Postings = append(lp.Postings, model.Posting{PageID: pageID, LemmaID: lemmaID, Rank: rank})
	}
	return lp
}

func TestIntersect(t *testing.T) {
	got := Intersect([]LemmaPostings{
		list(1, 1, map[int64]float64{10: 1, 11: 2}),
		list(2, 3, map[int64]float64{10: 0.5, 12: 4}),
	})
	require.Len(t, got, 1)
	assert.Equal(t, &PageScore{PageID: 10, Absolute: 1.5, Matched: 2}, got[10])

	assert.Empty(t, Intersect(nil))
	assert.Empty(t, Intersect([]LemmaPostings{
		list(1, 1, map[int64]float64{10: 1}),
		list(2, 1, map[int64]float64{11: 1}),
	}))
}

func TestUnion(t *testing.T) {
	got := Union([]LemmaPostings{
		list(1, 1, map[int64]float64{10: 1, 11: 2}),
		list(2, 3, map[int64]float64{10: 0.5, 12: 4}),
	})
	require.Len(t, got, 3)
	assert.Equal(t, 1.5, got[10].Absolute)
	assert.Equal(t, 2, got[10].Matched)
	assert.Equal(t, 1, got[12].Matched)
}

func TestFanOutMergesRarestFirst(t *testing.T) {
	lemmas := []model.Lemma{
		{ID: 1, SiteID: 1, Frequency: 9},
		{ID: 2, SiteID: 2, Frequency: 2},
		{ID: 3, SiteID: 1, Frequency: 2},
	}
	got, err := FanOut(context.Background(), lemmas, func(_ context.Context, siteID int64, ls []model.Lemma) ([]LemmaPostings, error) {
		out := make([]LemmaPostings, 0, len(ls))
		for _, l := range ls {
			assert.Equal(t, siteID, l.SiteID)
			out = append(out, LemmaPostings{Lemma: l})
		}
		return out, nil
	})
	require.NoError(t, err)
	ids := make([]int64, 0, len(got))
	for _, lp := range got {
		ids = append(ids, lp.Lemma.ID)
	}
	assert.Equal(t, []int64{2, 3, 1}, ids)
}

func TestFanOutFailsOnAnySite(t *testing.T) {
	boom := errors.New("boom")
	lemmas := []model.Lemma{{ID: 1, SiteID: 1}, {ID: 2, SiteID: 2}}
	_, err := FanOut(context.Background(), lemmas, func(_ context.Context, siteID int64, ls []model.Lemma) ([]LemmaPostings, error) {
		if siteID == 2 {
			return nil, boom
		}
		return []LemmaPostings{{Lemma: ls[0]}}, nil
	})
	assert.ErrorIs(t, err, boom)
}
