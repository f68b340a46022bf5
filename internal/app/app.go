// Package app assembles the storage, indexing, crawling and search
// components from a Config. Both the HTTP daemon and the admin CLI build on
// it, so they always share one wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/fetcher"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/lemma"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage/memory"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage/sqlstore"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/kafka"
	pkgredis "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/redis"
)

const eventBuffer = 10000

type App struct {
	Config   *config.Config
	Store    storage.Store
	Pipeline *lemma.Pipeline
	Indexer  *indexer.Engine
	Fetcher  *fetcher.Fetcher
	Engine   *searcher.Engine
	// Search is the cache when Redis is enabled, the engine otherwise.
	Search  searcher.Searcher
	Cache   *cache.QueryCache
	Crawler *crawler.Manager
	Pages   *crawler.PageIndexer
	Stats   *stats.Service
	Checker *health.Checker

	publisher *events.Publisher
	producer  *kafka.Producer
	redis     *pkgredis.Client
	logger    *slog.Logger
}

// Option tweaks assembly, mostly for tests.
type Option func(*options)

type options struct {
	store   storage.Store
	fetcher []fetcher.Option
}

// WithStore uses store instead of opening the configured backend.
func WithStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

func WithFetcherOptions(opts ...fetcher.Option) Option {
	return func(o *options) { o.fetcher = append(o.fetcher, opts...) }
}

// New opens the store and connects the optional Redis cache and Kafka event
// stream. A Redis outage only disables caching.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		Config:  cfg,
		Checker: health.NewChecker(),
		logger:  slog.Default().With("component", "app"),
	}

	store := o.store
	if store == nil {
		var err error
		if store, err = OpenStore(ctx, cfg); err != nil {
			return nil, err
		}
	}
	a.Store = store
	a.Checker.Register("storage", health.Ping(store.Ping, true))

	a.Pipeline = lemma.NewPipeline(lemma.NewRussian())
	a.Indexer = indexer.NewEngine(store, a.Pipeline)
	a.Fetcher = fetcher.New(cfg.Fetch, o.fetcher...)
	a.Engine = searcher.NewEngine(store, a.Pipeline, cfg.Search)
	a.Search = a.Engine
	a.connectCache(ctx)

	var tracker events.Tracker = events.Discard
	if len(cfg.Kafka.Brokers) > 0 {
		a.producer = kafka.NewProducer(cfg.Kafka)
		a.publisher = events.NewPublisher(a.producer, eventBuffer)
		a.publisher.Start(context.WithoutCancel(ctx))
		tracker = a.publisher
		a.logger.Info("crawl events enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topics.CrawlEvents)
	}

	a.Crawler = crawler.NewManager(store, a.Indexer, a.Fetcher, cfg.Sites, cfg.Crawler,
		crawler.WithEvents(tracker),
		crawler.WithOnFinish(a.invalidate),
	)
	a.Pages = crawler.NewPageIndexer(store, a.Indexer, a.Fetcher, cfg.Sites, a.invalidate)
	a.Stats = stats.New(store, a.Crawler.IsRunning)
	return a, nil
}

// OpenStore opens the configured storage backend.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Driver == "memory" {
		return memory.New(), nil
	}
	client, err := database.New(cfg.Storage.Driver, cfg.StorageDSN(), cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("connecting to storage: %w", err)
	}
	store, err := sqlstore.New(ctx, client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("preparing storage: %w", err)
	}
	return store, nil
}

func (a *App) connectCache(ctx context.Context) {
	if !a.Config.Redis.Enabled {
		a.Checker.Register("redis", health.Disabled("search cache disabled"))
		return
	}
	client, err := pkgredis.NewClient(ctx, a.Config.Redis)
	if err != nil {
		a.logger.Warn("redis unavailable, search caching disabled", "error", err)
		a.Checker.Register("redis", health.Disabled(err.Error()))
		return
	}
	a.redis = client
	a.Cache = cache.New(a.Engine, client, a.Config.Redis.CacheTTL)
	a.Search = a.Cache
	a.Checker.Register("redis", health.Ping(client.Ping, false))
	a.logger.Info("search cache enabled", "addr", a.Config.Redis.Addr, "ttl", a.Config.Redis.CacheTTL)
}

// invalidate drops cached results after the index changed.
func (a *App) invalidate(ctx context.Context) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Invalidate(ctx); err != nil {
		a.logger.Error("search cache invalidation failed", "error", err)
	}
}

// Close stops a running crawl, flushes pending events and releases every
// connection.
func (a *App) Close() error {
	if a.Crawler.IsRunning() {
		if err := a.Crawler.Stop(); err != nil {
			a.logger.Warn("stopping crawl on shutdown", "error", err)
		}
	}
	a.Crawler.Wait()

	var result error
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing kafka producer: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing redis: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing storage: %w", err))
	}
	return result
}
