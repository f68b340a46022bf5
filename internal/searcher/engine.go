// Package searcher answers ranked queries against the lemma index: query
// lemmas are filtered by document frequency, their postings are intersected
// (one site) or united (all sites), and each page gets a title and a
// highlighted snippet.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/lemma"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/tracing"
)

const (
	MsgEmptyQuery    = "Задан пустой поисковый запрос"
	MsgIndexNotReady = "Индекс ещё не готов. Попробуйте позже."
	slowSearch       = 500 * time.Millisecond
)

type Query struct {
	Text   string `json:"query"`
	Site   string `json:"site,omitempty"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

type Result struct {
	Site      string  `json:"site"`
	SiteName  string  `json:"siteName"`
	URI       string  `json:"uri"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

// Response holds one page of results; Count is the number of ranked pages
// before offset and limit were applied.
type Response struct {
	Count   int      `json:"count"`
	Results []Result `json:"data"`
}

// Searcher is implemented by Engine and by the caching decorator.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Response, error)
}

type Engine struct {
	store    storage.Store
	pipeline *lemma.Pipeline
	cfg      config.SearchConfig
	logger   *slog.Logger
}

func NewEngine(store storage.Store, pipeline *lemma.Pipeline, cfg config.SearchConfig) *Engine {
	if cfg.FilterThreshold <= 0 {
		cfg.FilterThreshold = 0.30
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	return &Engine{
		store:    store,
		pipeline: pipeline,
		cfg:      cfg,
		logger:   logger.WithComponent("search-engine"),
	}
}

// Lemmas returns the distinct query lemmas in first-seen order.
func (e *Engine) Lemmas(text string) []string {
	return e.pipeline.SearchLemmas(text)
}

// Normalize trims the query text and clamps offset and limit.
func (e *Engine) Normalize(q Query) Query {
	q.Text = strings.TrimSpace(q.Text)
	q.Site = strings.TrimSpace(q.Site)
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 {
		q.Limit = e.cfg.DefaultLimit
	}
	if q.Limit > e.cfg.MaxLimit {
		q.Limit = e.cfg.MaxLimit
	}
	return q
}

func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()
	q = e.Normalize(q)
	log := logger.FromContext(ctx).With("component", "search-engine")
	if q.Text == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, MsgEmptyQuery)
	}

	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	span.SetAttr("query", q.Text)
	defer func() {
		span.End()
		metrics.Default.SearchLatency.WithLabelValues("miss").Observe(span.Duration.Seconds())
		if span.Duration > slowSearch {
			span.Log()
		}
	}()

	resp, err := e.search(ctx, q)
	span.Fail(err)
	switch {
	case apperrors.Is(err, apperrors.ErrIndexNotReady):
		metrics.Default.SearchQueriesTotal.WithLabelValues("not_ready").Inc()
		return nil, err
	case err != nil:
		metrics.Default.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	case resp.Count == 0:
		metrics.Default.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
	default:
		metrics.Default.SearchQueriesTotal.WithLabelValues("hit").Inc()
	}
	metrics.Default.SearchResultsCount.Observe(float64(resp.Count))
	log.Info("search completed",
		"query", q.Text,
		"site", q.Site,
		"count", resp.Count,
		"returned", len(resp.Results),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (e *Engine) search(ctx context.Context, q Query) (*Response, error) {
	_, readySpan := tracing.StartChildSpan(ctx, "readiness")
	site, err := e.checkReady(ctx, q.Site)
	readySpan.End()
	if err != nil {
		return nil, err
	}
	var siteID int64
	if site != nil {
		siteID = site.ID
	}

	queryLemmas := e.pipeline.SearchLemmas(q.Text)
	if len(queryLemmas) == 0 {
		return &Response{Results: []Result{}}, nil
	}

	_, lookupSpan := tracing.StartChildSpan(ctx, "lookup")
	rows, err := e.store.FindLemmasByText(ctx, queryLemmas, siteID)
	if err != nil {
		lookupSpan.End()
		return nil, fmt.Errorf("loading query lemmas: %w", err)
	}
	lists, err := e.selectLemmas(ctx, rows)
	lookupSpan.SetAttr("lemmas", len(lists))
	lookupSpan.End()
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		e.logger.Debug("every query lemma was filtered out", "query", q.Text)
		return &Response{Results: []Result{}}, nil
	}

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	var scores map[int64]*executor.PageScore
	if site != nil {
		scores = executor.Intersect(lists)
	} else {
		scores = executor.Union(lists)
	}
	ranked := ranker.Rank(scores, len(queryLemmas), e.cfg.CoverageWeight)
	rankSpan.SetAttr("candidates", len(ranked))
	rankSpan.End()

	_, buildSpan := tracing.StartChildSpan(ctx, "build")
	defer buildSpan.End()
	results, err := e.buildResults(ctx, ranker.Page(ranked, q.Offset, q.Limit), queryWords(q.Text))
	if err != nil {
		return nil, err
	}
	return &Response{Count: len(ranked), Results: results}, nil
}

// checkReady returns the requested site, or nil when searching all sites.
func (e *Engine) checkReady(ctx context.Context, siteURL string) (*model.Site, error) {
	anySites, err := e.store.AnySites(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking sites: %w", err)
	}
	if !anySites {
		return nil, notReady("no sites have been indexed")
	}

	var site *model.Site
	if siteURL != "" {
		site, err = e.findSite(ctx, siteURL)
		if apperrors.Is(err, storage.ErrNotFound) {
			return nil, notReady("site %s has not been indexed", siteURL)
		}
		if err != nil {
			return nil, fmt.Errorf("loading site %s: %w", siteURL, err)
		}
		if site.Status != model.StatusIndexed {
			return nil, notReady("site %s is %s", siteURL, site.Status)
		}
	}

	anyLemmas, err := e.store.AnyLemmas(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking lemmas: %w", err)
	}
	if !anyLemmas {
		return nil, notReady("the lemma index is empty")
	}
	return site, nil
}

func notReady(format string, args ...any) error {
	logger.WithComponent("search-engine").Warn("index not ready", "reason", fmt.Sprintf(format, args...))
	return apperrors.New(apperrors.ErrIndexNotReady, 400, MsgIndexNotReady)
}

// findSite matches the site URL with or without a trailing slash.
func (e *Engine) findSite(ctx context.Context, siteURL string) (*model.Site, error) {
	site, err := e.store.FindSiteByURL(ctx, siteURL)
	if !apperrors.Is(err, storage.ErrNotFound) {
		return site, err
	}
	alt := strings.TrimSuffix(siteURL, "/")
	if alt == siteURL {
		alt = siteURL + "/"
	}
	return e.store.FindSiteByURL(ctx, alt)
}

// selectLemmas fans out over the sites of rows and keeps, per site, the
// lemmas whose postings cover at most the filter threshold of its pages.
func (e *Engine) selectLemmas(ctx context.Context, rows []model.Lemma) ([]executor.LemmaPostings, error) {
	return executor.FanOut(ctx, rows, e.loadSite)
}

func (e *Engine) loadSite(ctx context.Context, siteID int64, lemmas []model.Lemma) ([]executor.LemmaPostings, error) {
	total, err := e.store.CountPagesBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("counting pages: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	lists := make([]executor.LemmaPostings, 0, len(lemmas))
	for _, l := range lemmas {
		df, err := e.store.CountPagesByLemma(ctx, l.ID, siteID)
		if err != nil {
			return nil, fmt.Errorf("counting pages of lemma %q: %w", l.Text, err)
		}
		if float64(df)/float64(total) > e.cfg.FilterThreshold {
			e.logger.Debug("lemma filtered as too common", "lemma", l.Text, "site_id", siteID, "pages", df, "total", total)
			continue
		}
		postings, err := e.store.FindPostingsByLemma(ctx, l.ID, siteID)
		if err != nil {
			return nil, fmt.Errorf("loading postings of lemma %q: %w", l.Text, err)
		}
		lists = append(lists, executor.LemmaPostings{Lemma: l, Postings: postings})
	}
	return lists, nil
}

func (e *Engine) buildResults(ctx context.Context, pages []ranker.ScoredPage, words []string) ([]Result, error) {
	sites := make(map[int64]*model.Site)
	results := make([]Result, 0, len(pages))
	for _, sp := range pages {
		page, err := e.store.FindPageByID(ctx, sp.PageID)
		if err != nil {
			return nil, fmt.Errorf("loading page %d: %w", sp.PageID, err)
		}
		site, ok := sites[page.SiteID]
		if !ok {
			site, err = e.store.FindSiteByID(ctx, page.SiteID)
			if err != nil {
				return nil, fmt.Errorf("loading site %d: %w", page.SiteID, err)
			}
			sites[page.SiteID] = site
		}
		title := e.pipeline.Title(page.Content)
		if title == "" {
			title = untitled
		}
		results = append(results, Result{
			Site:      strings.TrimSuffix(site.URL, "/"),
			SiteName:  site.Name,
			URI:       relativeURI(site.URL, page.Path),
			Title:     title,
			Snippet:   buildSnippet(e.pipeline.Text(page.Content), words),
			Relevance: sp.Relative,
		})
	}
	return results, nil
}

// relativeURI strips the site URL from an absolute page path; "/" stands
// for the home page.
func relativeURI(siteURL, path string) string {
	base := strings.TrimSuffix(siteURL, "/")
	if rest, ok := strings.CutPrefix(path, base); ok {
		if rest == "" {
			return "/"
		}
		if strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, "?") {
			return rest
		}
	}
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	return u.RequestURI()
}
