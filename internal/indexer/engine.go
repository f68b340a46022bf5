// Package indexer maintains the per-site lemma frequencies and the
// page/lemma postings, and re-weights postings once a site crawl completes.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/lemma"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/metrics"
)

type Engine struct {
	store    storage.Store
	pipeline *lemma.Pipeline
	siteMu   sync.Map // site ID -> *sync.Mutex, guards lemma counters
	pageMu   sync.Map // site ID -> *sync.Mutex, guards page rows
	logger   *slog.Logger
}

func NewEngine(store storage.Store, pipeline *lemma.Pipeline) *Engine {
	return &Engine{
		store:    store,
		pipeline: pipeline,
		logger:   slog.Default().With("component", "indexer"),
	}
}

// lock serialises lemma counter updates within one site.
func (e *Engine) lock(siteID int64) func() {
	return lockIn(&e.siteMu, siteID)
}

// lockPages serialises page row replacement within one site. It is always
// taken before lock, never after.
func (e *Engine) lockPages(siteID int64) func() {
	return lockIn(&e.pageMu, siteID)
}

func lockIn(m *sync.Map, siteID int64) func() {
	v, _ := m.LoadOrStore(siteID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// AddPage saves a freshly crawled page and indexes its content.
func (e *Engine) AddPage(ctx context.Context, page *model.Page) error {
	unlock := e.lockPages(page.SiteID)
	err := e.store.SavePage(ctx, page)
	unlock()
	if err != nil {
		return fmt.Errorf("saving page %s: %w", page.Path, err)
	}
	return e.IndexPage(ctx, page)
}

// IndexPage adds the lemmas of an already stored page: each lemma's site
// frequency grows by its count on the page and the posting rank is set to
// that count.
func (e *Engine) IndexPage(ctx context.Context, page *model.Page) error {
	counts := e.pipeline.Lemmas(page.Content)
	unlock := e.lock(page.SiteID)
	defer unlock()
	return e.apply(ctx, page, counts)
}

func (e *Engine) apply(ctx context.Context, page *model.Page, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}
	postings := make([]model.Posting, 0, len(counts))
	for text, count := range counts {
		lm, err := e.store.FindLemma(ctx, page.SiteID, text)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			lm = &model.Lemma{SiteID: page.SiteID, Text: text}
		case err != nil:
			return fmt.Errorf("looking up lemma %q: %w", text, err)
		}
		lm.Frequency += count
		if err := e.store.SaveLemma(ctx, lm); err != nil {
			return fmt.Errorf("saving lemma %q: %w", text, err)
		}
		postings = append(postings, model.Posting{PageID: page.ID, LemmaID: lm.ID, Rank: float64(count)})
	}
	if err := e.store.SavePostings(ctx, postings); err != nil {
		return fmt.Errorf("saving postings of page %d: %w", page.ID, err)
	}
	e.logger.Debug("page indexed", "page_id", page.ID, "path", page.Path, "lemmas", len(counts))
	return nil
}

// DeindexPage subtracts the page's lemma counts, recomputed from its stored
// content, from the site frequencies. Lemmas that reach zero are deleted
// together with their postings.
func (e *Engine) DeindexPage(ctx context.Context, page *model.Page) error {
	counts := e.pipeline.Lemmas(page.Content)
	unlock := e.lock(page.SiteID)
	defer unlock()
	return e.unapply(ctx, page, counts)
}

func (e *Engine) unapply(ctx context.Context, page *model.Page, counts map[string]int) error {
	for text, count := range counts {
		lm, err := e.store.FindLemma(ctx, page.SiteID, text)
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Debug("lemma already gone", "lemma", text, "site_id", page.SiteID)
			continue
		}
		if err != nil {
			return fmt.Errorf("looking up lemma %q: %w", text, err)
		}
		lm.Frequency = max(lm.Frequency-count, 0)
		if lm.Frequency == 0 {
			err = e.store.DeleteLemma(ctx, lm.ID)
		} else {
			err = e.store.SaveLemma(ctx, lm)
		}
		if err != nil {
			return fmt.Errorf("decreasing lemma %q: %w", text, err)
		}
	}
	return nil
}

// ReindexPage replaces the stored page at page.Path, if any, with page: the
// old page's contribution is removed and the old row deleted before the new
// one is saved and indexed. Ranks are not recalculated.
func (e *Engine) ReindexPage(ctx context.Context, page *model.Page) error {
	unlock := e.lockPages(page.SiteID)
	defer unlock()

	old, err := e.store.FindPageByPath(ctx, page.SiteID, page.Path)
	switch {
	case err == nil:
		if err := e.DeindexPage(ctx, old); err != nil {
			return err
		}
		if err := e.store.DeletePage(ctx, old.ID); err != nil {
			return fmt.Errorf("deleting stale page %d: %w", old.ID, err)
		}
		e.logger.Info("stale page removed before re-indexing", "path", page.Path, "page_id", old.ID)
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("looking up page %s: %w", page.Path, err)
	}

	page.ID = 0
	if err := e.store.SavePage(ctx, page); err != nil {
		return fmt.Errorf("saving page %s: %w", page.Path, err)
	}
	return e.IndexPage(ctx, page)
}

// RecalculateRanks overwrites every posting of the site with
// tf * ln(totalPages / (df + 1)), where tf is recounted from the page content
// and df is the number of pages bearing the lemma.
func (e *Engine) RecalculateRanks(ctx context.Context, siteID int64) error {
	start := time.Now()
	unlock := e.lock(siteID)
	defer unlock()

	pages, err := e.store.FindPagesBySite(ctx, siteID)
	if err != nil {
		return fmt.Errorf("loading pages of site %d: %w", siteID, err)
	}
	total := len(pages)
	tf := make(map[int64]map[string]int, total)
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		tf[p.ID] = e.pipeline.Lemmas(p.Content)
	}

	lemmas, err := e.store.FindLemmasBySite(ctx, siteID)
	if err != nil {
		return fmt.Errorf("loading lemmas of site %d: %w", siteID, err)
	}
	updated := 0
	for _, lm := range lemmas {
		if err := ctx.Err(); err != nil {
			return err
		}
		df, err := e.store.CountPagesByLemma(ctx, lm.ID, siteID)
		if err != nil {
			return fmt.Errorf("counting pages of lemma %q: %w", lm.Text, err)
		}
		postings, err := e.store.FindPostingsByLemma(ctx, lm.ID, siteID)
		if err != nil {
			return fmt.Errorf("loading postings of lemma %q: %w", lm.Text, err)
		}
		idf := math.Log(float64(total) / float64(df+1))
		batch := postings[:0]
		for _, p := range postings {
			count, ok := tf[p.PageID][lm.Text]
			if !ok {
				continue
			}
			p.Rank = float64(count) * idf
			batch = append(batch, p)
		}
		if err := e.store.SavePostings(ctx, batch); err != nil {
			return fmt.Errorf("saving ranks of lemma %q: %w", lm.Text, err)
		}
		updated += len(batch)
	}

	elapsed := time.Since(start)
	metrics.Default.RankRecalcDuration.Observe(elapsed.Seconds())
	e.logger.Info("ranks recalculated",
		"site_id", siteID,
		"pages", total,
		"lemmas", len(lemmas),
		"postings", updated,
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}
