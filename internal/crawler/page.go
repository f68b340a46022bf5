package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
)

// PageIndexer re-indexes one page of a configured site outside a crawl.
// Ranks and site status are left as they are.
type PageIndexer struct {
	store    storage.Store
	engine   *indexer.Engine
	fetcher  Fetcher
	sites    []config.SiteConfig
	onChange func(ctx context.Context)
	logger   *slog.Logger
}

// NewPageIndexer builds the indexer; onChange runs after every successful
// re-index and may be nil.
func NewPageIndexer(store storage.Store, engine *indexer.Engine, f Fetcher, sites []config.SiteConfig, onChange func(ctx context.Context)) *PageIndexer {
	return &PageIndexer{
		store:    store,
		engine:   engine,
		fetcher:  f,
		sites:    sites,
		onChange: onChange,
		logger:   slog.Default().With("component", "page-indexer"),
	}
}

// IndexPage returns false when rawURL belongs to no configured site or
// yields no content.
func (p *PageIndexer) IndexPage(ctx context.Context, rawURL string) (bool, error) {
	sc, ok := p.match(rawURL)
	if !ok {
		p.logger.Info("page outside configured sites", "url", rawURL)
		return false, nil
	}
	resp := p.fetcher.FetchWithContent(ctx, rawURL)
	if resp.Body == "" {
		p.logger.Info("page has no content", "url", rawURL, "status", resp.StatusCode)
		return false, nil
	}

	site, err := p.store.FindSiteByURL(ctx, sc.URL)
	if errors.Is(err, storage.ErrNotFound) {
		site = &model.Site{URL: sc.URL, Name: sc.Name}
		site.SetStatus(model.StatusIndexed, "", time.Now().UTC())
		if err := p.store.SaveSite(ctx, site); err != nil {
			return false, fmt.Errorf("creating site %s: %w", sc.URL, err)
		}
		p.logger.Info("site row created for single page", "site", sc.URL)
	} else if err != nil {
		return false, fmt.Errorf("loading site %s: %w", sc.URL, err)
	}

	page := &model.Page{SiteID: site.ID, Path: rawURL, Code: resp.StatusCode, Content: resp.Body}
	if err := p.engine.ReindexPage(ctx, page); err != nil {
		return false, fmt.Errorf("re-indexing %s: %w", rawURL, err)
	}
	p.logger.Info("page re-indexed", "url", rawURL, "site", sc.URL, "page_id", page.ID)
	if p.onChange != nil {
		p.onChange(ctx)
	}
	return true, nil
}

// match finds the configured site with the same scheme and host, ignoring
// a leading "www.".
func (p *PageIndexer) match(rawURL string) (config.SiteConfig, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return config.SiteConfig{}, false
	}
	for _, sc := range p.sites {
		su, err := url.Parse(sc.URL)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Scheme, su.Scheme) && bareHost(u.Host) == bareHost(su.Host) {
			return sc, true
		}
	}
	return config.SiteConfig{}, false
}

func bareHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
