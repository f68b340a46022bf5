package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/fetcher"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/tracing"
)

const statusWriteTimeout = 10 * time.Second

// Session is the state of one crawl run.
type Session struct {
	runID   string
	visited sync.Map // normalised URL -> struct{}
	active  sync.Map // site ID -> *siteRun
	stopped atomic.Bool
	cancel  context.CancelFunc
	pool    *ants.Pool
	done    chan struct{}
	manager *Manager
	logger  *slog.Logger

	// interrupted counts sites marked FAILED by a stop.
	interrupted atomic.Int64
}

// siteRun tracks the outstanding page tasks of one site.
type siteRun struct {
	mu     sync.Mutex
	site   *model.Site
	domain string
	wg     sync.WaitGroup
	pages  atomic.Int64
	errs   *multierror.Error
}

func (r *siteRun) fail(err error) {
	metrics.Default.PageFailuresTotal.Inc()
	r.mu.Lock()
	r.errs = multierror.Append(r.errs, err)
	r.mu.Unlock()
}

func (r *siteRun) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs.ErrorOrNil()
}

func visitKey(rawURL string) string {
	return strings.TrimSuffix(rawURL, "/")
}

// visit reports whether url had not been seen in this session and marks it.
func (s *Session) visit(rawURL string) bool {
	_, seen := s.visited.LoadOrStore(visitKey(rawURL), struct{}{})
	return !seen
}

func (s *Session) cancelled(ctx context.Context) bool {
	return s.stopped.Load() || ctx.Err() != nil
}

func (s *Session) crawlSite(ctx context.Context, sc config.SiteConfig) {
	ctx, span := tracing.StartSpan(ctx, "crawl-site", s.runID)
	span.SetAttr("site", sc.URL)
	defer func() {
		span.End()
		span.Log()
	}()
	log := s.logger.With("site", sc.URL)
	m := s.manager

	run := &siteRun{
		site:   &model.Site{URL: sc.URL, Name: sc.Name},
		domain: strings.TrimSuffix(sc.URL, "/"),
	}
	if s.cancelled(ctx) {
		return
	}
	run.site.SetStatus(model.StatusIndexing, "", time.Now().UTC())
	if err := m.store.SaveSite(ctx, run.site); err != nil {
		if !s.cancelled(ctx) {
			log.Error("failed to create site row", "error", err)
		}
		return
	}
	s.active.Store(run.site.ID, run)

	defer func() {
		if r := recover(); r != nil {
			log.Error("site crawl panicked", "panic", r)
			s.finish(run, model.StatusFailed, fmt.Sprint(r))
		}
	}()

	// Stop may have swept the active registry before this site joined it.
	if s.cancelled(ctx) {
		s.interrupt(run)
		return
	}
	s.visit(sc.URL)
	urls := []string{sc.URL}
	for _, link := range m.fetcher.Links(ctx, sc.URL, run.domain) {
		if s.visit(link) {
			urls = append(urls, link)
		}
	}
	_, pagesSpan := tracing.StartChildSpan(ctx, "pages")
	s.submitPages(ctx, run, urls)
	run.wg.Wait()
	pagesSpan.SetAttr("pages", run.pages.Load())
	pagesSpan.End()

	if s.cancelled(ctx) {
		log.Info("site crawl interrupted", "pages", run.pages.Load())
		s.interrupt(run)
		return
	}
	if err := run.err(); err != nil {
		log.Error("site pages failed", "error", err)
		span.Fail(err)
		s.finish(run, model.StatusFailed, msgPageErrors)
		return
	}
	_, rankSpan := tracing.StartChildSpan(ctx, "recalculate-ranks")
	err := m.engine.RecalculateRanks(ctx, run.site.ID)
	rankSpan.End()
	if err != nil {
		log.Error("rank recalculation failed", "error", err)
		span.Fail(err)
		s.finish(run, model.StatusFailed, err.Error())
		return
	}
	s.finish(run, model.StatusIndexed, "")
}

// submitPages accounts for every url on the site's wait group up front and
// feeds the pool from a separate goroutine so no worker ever blocks on a
// full pool.
func (s *Session) submitPages(ctx context.Context, run *siteRun, urls []string) {
	if len(urls) == 0 {
		return
	}
	run.wg.Add(len(urls))
	go func() {
		for i, u := range urls {
			if s.cancelled(ctx) {
				run.wg.Add(i - len(urls))
				return
			}
			if err := s.pool.Submit(func() { s.crawlPage(ctx, run, u) }); err != nil {
				if !s.cancelled(ctx) {
					s.logger.Error("failed to submit page task", "url", u, "error", err)
				}
				run.wg.Add(i - len(urls))
				return
			}
		}
	}()
}

func (s *Session) crawlPage(ctx context.Context, run *siteRun, pageURL string) {
	defer run.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			run.fail(fmt.Errorf("page %s panicked: %v", pageURL, r))
		}
	}()
	if s.cancelled(ctx) {
		return
	}
	m := s.manager
	resp := m.fetcher.FetchWithContent(ctx, pageURL)
	if s.cancelled(ctx) {
		return
	}

	content := resp.Body
	if content == "" {
		content = model.EmptyPageContent
	}
	page := &model.Page{SiteID: run.site.ID, Path: pageURL, Code: resp.StatusCode, Content: content}
	if err := m.engine.AddPage(ctx, page); err != nil {
		if !s.cancelled(ctx) {
			run.fail(fmt.Errorf("indexing %s: %w", pageURL, err))
		}
		return
	}
	run.pages.Add(1)
	metrics.Default.PagesIndexedTotal.Inc()
	s.touch(ctx, run)
	m.events.Track(events.Event{Type: events.PageIndexed, RunID: s.runID, Site: run.site.URL, URL: pageURL, Code: resp.StatusCode})

	if !resp.IsHTML || resp.Body == "" {
		return
	}
	var fresh []string
	for _, link := range fetcher.ExtractLinks(resp.Body, pageURL, run.domain) {
		if s.visit(link) {
			fresh = append(fresh, link)
		}
	}
	s.submitPages(ctx, run, fresh)
}

// touch refreshes the status time of a site that is still indexing. The
// check and the write happen under run.mu so a terminal status recorded
// concurrently is never overwritten.
func (s *Session) touch(ctx context.Context, run *siteRun) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if _, ok := s.active.Load(run.site.ID); !ok {
		return
	}
	run.site.StatusTime = time.Now().UTC()
	site := *run.site

	err := resilience.Bounded(ctx, statusWriteTimeout, "refresh site status time", func(ctx context.Context) error {
		return s.manager.store.SaveSite(ctx, &site)
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("failed to refresh site status time", "site", site.URL, "error", err)
	}
}

// finish claims the site and records its terminal status. Only the first
// caller for a site writes; finish reports whether it was that caller.
func (s *Session) finish(run *siteRun, status model.Status, msg string) bool {
	if _, ok := s.active.LoadAndDelete(run.site.ID); !ok {
		return false
	}
	s.record(run, status, msg)
	return true
}

func (s *Session) interrupt(run *siteRun) {
	if s.finish(run, model.StatusFailed, msgStopped) {
		s.interrupted.Add(1)
	}
}

func (s *Session) record(run *siteRun, status model.Status, msg string) {
	m := s.manager
	run.mu.Lock()
	run.site.SetStatus(status, msg, time.Now().UTC())
	site := *run.site
	err := resilience.Bounded(context.Background(), statusWriteTimeout, "save site status", func(ctx context.Context) error {
		return m.store.SaveSite(ctx, &site)
	})
	run.mu.Unlock()
	if err != nil {
		s.logger.Error("failed to save site status", "site", site.URL, "status", status, "error", err)
	}
	metrics.Default.SitesFinishedTotal.WithLabelValues(string(status)).Inc()
	m.events.Track(events.Event{
		Type:   events.SiteFinished,
		RunID:  s.runID,
		Site:   site.URL,
		Status: status,
		Pages:  int(run.pages.Load()),
		Error:  msg,
	})
	s.logger.Info("site finished", "site", site.URL, "status", status, "pages", run.pages.Load(), "error", msg)
}
