// Package crawler runs whole-site crawls on a bounded worker pool and
// indexes single pages on demand. Each Start builds a fresh Session; Stop
// cancels only the session that is current when it is called.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/fetcher"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/metrics"
)

const (
	MsgCrawlInProgress = "Индексация уже запущена"
	MsgCrawlNotRunning = "Индексация не запущена"
	msgStopped         = "indexing stopped by operator"
	msgPageErrors      = "one or more pages finished with errors"
)

// Fetcher is the part of *fetcher.Fetcher the crawler uses.
type Fetcher interface {
	FetchWithContent(ctx context.Context, url string) fetcher.Response
	Links(ctx context.Context, pageURL, siteDomain string) []string
}

type Manager struct {
	store    storage.Store
	engine   *indexer.Engine
	fetcher  Fetcher
	sites    []config.SiteConfig
	cfg      config.CrawlerConfig
	events   events.Tracker
	onFinish func(ctx context.Context)

	mu       sync.Mutex
	current  *Session
	stopping *Session
	last     *Session
}

type Option func(*Manager)

func WithEvents(t events.Tracker) Option {
	return func(m *Manager) { m.events = t }
}

// WithOnFinish registers a hook run after every crawl, stopped or not.
func WithOnFinish(fn func(ctx context.Context)) Option {
	return func(m *Manager) { m.onFinish = fn }
}

func NewManager(store storage.Store, engine *indexer.Engine, f Fetcher, sites []config.SiteConfig, cfg config.CrawlerConfig, opts ...Option) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	m := &Manager{
		store:   store,
		engine:  engine,
		fetcher: f,
		sites:   sites,
		cfg:     cfg,
		events:  events.Discard,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches a crawl of every configured site in the background. The
// crawl outlives ctx; only Stop cancels it.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil || m.stopping != nil {
		return apperrors.New(apperrors.ErrCrawlInProgress, 400, MsgCrawlInProgress)
	}

	pool, err := ants.NewPool(m.cfg.Workers)
	if err != nil {
		return fmt.Errorf("creating crawl pool: %w", err)
	}
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(logger.WithRunID(context.WithoutCancel(ctx), runID))
	s := &Session{
		runID:   runID,
		pool:    pool,
		cancel:  cancel,
		done:    make(chan struct{}),
		manager: m,
		logger:  logger.FromContext(runCtx).With("component", "crawler"),
	}
	m.current = s
	m.last = s

	metrics.Default.CrawlsActive.Inc()
	m.events.Track(events.Event{Type: events.CrawlStarted, RunID: s.runID, Sites: len(m.sites)})
	s.logger.Info("crawl started", "sites", len(m.sites), "workers", m.cfg.Workers)
	go m.run(runCtx, s)
	return nil
}

func (m *Manager) run(ctx context.Context, s *Session) {
	defer func() {
		s.pool.Release()
		m.mu.Lock()
		if m.current == s {
			m.current = nil
		}
		m.mu.Unlock()
		metrics.Default.CrawlsActive.Dec()
		s.logger.Info("crawl finished", "stopped", s.stopped.Load())
		if m.onFinish != nil {
			m.onFinish(context.WithoutCancel(ctx))
		}
		close(s.done)
	}()

	for _, sc := range m.sites {
		if s.cancelled(ctx) {
			return
		}
		if err := m.store.DeleteSiteByURL(ctx, sc.URL); err != nil {
			s.logger.Error("failed to clear previous crawl", "site", sc.URL, "error", err)
		}
	}
	if s.cancelled(ctx) {
		return
	}

	var wg sync.WaitGroup
	for _, sc := range m.sites {
		wg.Add(1)
		go func(sc config.SiteConfig) {
			defer wg.Done()
			s.crawlSite(ctx, sc)
		}(sc)
	}
	wg.Wait()
}

// Stop cancels the current crawl and waits up to the stop timeout for its
// page and site tasks. Every site still unfinished after that is marked
// FAILED. Start is refused until Stop returns.
func (m *Manager) Stop() error {
	m.mu.Lock()
	s := m.current
	m.current = nil
	if s != nil {
		m.stopping = s
	}
	m.mu.Unlock()
	if s == nil {
		return apperrors.New(apperrors.ErrCrawlNotRunning, 400, MsgCrawlNotRunning)
	}
	defer func() {
		m.mu.Lock()
		if m.stopping == s {
			m.stopping = nil
		}
		m.mu.Unlock()
	}()

	deadline := time.Now().Add(m.cfg.StopTimeout)
	s.stopped.Store(true)
	s.cancel()
	if err := s.pool.ReleaseTimeout(m.cfg.StopTimeout); err != nil && !errors.Is(err, ants.ErrPoolClosed) {
		s.logger.Warn("workers still running after stop timeout", "timeout", m.cfg.StopTimeout, "error", err)
	}
	select {
	case <-s.done:
	case <-time.After(time.Until(deadline)):
		s.logger.Warn("site tasks still running after stop timeout", "timeout", m.cfg.StopTimeout)
	}

	s.active.Range(func(_, v any) bool {
		s.interrupt(v.(*siteRun))
		return true
	})
	interrupted := int(s.interrupted.Load())
	m.events.Track(events.Event{Type: events.CrawlStopped, RunID: s.runID, Sites: interrupted})
	s.logger.Info("crawl stopped", "sites_interrupted", interrupted)
	return nil
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Done returns a channel closed once the most recent crawl, stopped or not,
// has fully finished. It is nil before the first Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil
	}
	return m.last.done
}

// Wait blocks until the most recent crawl finishes.
func (m *Manager) Wait() {
	if done := m.Done(); done != nil {
		<-done
	}
}
