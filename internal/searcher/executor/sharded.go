package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
)

// SiteLoader selects and loads the posting lists of one site's query lemmas.
type SiteLoader func(ctx context.Context, siteID int64, lemmas []model.Lemma) ([]LemmaPostings, error)

type shardResult struct {
	siteID int64
	lists  []LemmaPostings
}

// FanOut groups lemmas by site and runs load for every site concurrently.
// The merged lists are ordered rarest lemma first, ties by lemma ID. The
// first site failure cancels the others and fails the whole query.
func FanOut(ctx context.Context, lemmas []model.Lemma, load SiteLoader) ([]LemmaPostings, error) {
	bySite := make(map[int64][]model.Lemma)
	for _, l := range lemmas {
		bySite[l.SiteID] = append(bySite[l.SiteID], l)
	}

	results := make([]shardResult, 0, len(bySite))
	for siteID := range bySite {
		results = append(results, shardResult{siteID: siteID})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range results {
		r := &results[i]
		g.Go(func() error {
			lists, err := load(gctx, r.siteID, bySite[r.siteID])
			if err != nil {
				slog.Default().With("component", "sharded-executor").Error("site lookup failed",
					"site_id", r.siteID,
					"error", err,
				)
				return fmt.Errorf("site %d: %w", r.siteID, err)
			}
			r.lists = lists
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []LemmaPostings
	for _, r := range results {
		merged = append(merged, r.lists...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].Lemma, merged[j].Lemma
		if a.Frequency != b.Frequency {
			return a.Frequency < b.Frequency
		}
		return a.ID < b.ID
	})
	return merged, nil
}
