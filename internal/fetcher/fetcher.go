// Package fetcher downloads pages politely: a random user-agent from the
// configured pool, a random pause before every request, a per-host rate
// limit and an optional per-host circuit breaker. It also extracts same-site
// links from fetched documents.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/resilience"
)

const maxBodyBytes = 10 << 20

const defaultUserAgent = "sitesearch-bot/1.0"

// Response is the outcome of a single fetch. Body is set only for a 200
// response with an HTML content type. StatusCode is zero when no response
// was received.
type Response struct {
	URL        string
	StatusCode int
	Body       string
	IsHTML     bool
}

type Fetcher struct {
	cfg      config.FetchConfig
	client   *http.Client
	clock    clock.Clock
	limiters sync.Map // host -> *rate.Limiter
	breakers *resilience.Breakers
	retry    resilience.RetryConfig
	logger   *slog.Logger
}

type Option func(*Fetcher)

// WithClock replaces the clock used for the politeness pause.
func WithClock(c clock.Clock) Option {
	return func(f *Fetcher) { f.clock = c }
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRetry overrides the link discovery retry schedule.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(f *Fetcher) { f.retry = cfg }
}

func New(cfg config.FetchConfig, opts ...Option) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		clock:  clock.WallClock,
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       800 * time.Millisecond,
			Multiplier:     2,
			JitterFraction: 0.05,
		},
		logger: slog.Default().With("component", "fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.retry.Clock == nil {
		f.retry.Clock = f.clock
	}
	f.breakers = resilience.NewBreakers(resilience.BreakerConfig{
		Threshold: cfg.BreakerThreshold,
		Cooldown:  30 * time.Second,
		Clock:     f.clock,
		OnStateChange: func(host string, to resilience.State) {
			metrics.Default.FetchBreakerState.WithLabelValues(host).Set(float64(to))
		},
	})
	return f
}

// Fetch downloads url once. HTTP error statuses are returned as responses;
// the error is non-nil only when no response was received.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, resilience.Permanent(fmt.Errorf("invalid url %q: %w", rawURL, err))
	}

	if err := f.pause(ctx); err != nil {
		return nil, err
	}
	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	var resp *Response
	err = f.breakers.Execute(u.Host, func() error {
		r, err := f.do(ctx, rawURL)
		resp = r
		return err
	})
	if err != nil {
		metrics.Default.FetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.Default.FetchesTotal.WithLabelValues(statusClass(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		f.logger.Warn("http error status", "url", rawURL, "status", resp.StatusCode)
	}
	return resp, nil
}

// FetchWithContent is the single-attempt variant used when indexing a page.
// A failed request yields a Response with StatusCode zero and no body.
func (f *Fetcher) FetchWithContent(ctx context.Context, rawURL string) Response {
	resp, err := f.Fetch(ctx, rawURL)
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Warn("fetch failed", "url", rawURL, "error", err)
		}
		return Response{URL: rawURL}
	}
	return *resp
}

func (f *Fetcher) do(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("User-Agent", f.userAgent())
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	httpResp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer httpResp.Body.Close()

	resp := &Response{
		URL:        rawURL,
		StatusCode: httpResp.StatusCode,
		IsHTML:     isHTML(httpResp.Header.Get("Content-Type")),
	}
	if !resp.IsHTML || httpResp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxBodyBytes))
		return resp, nil
	}
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", rawURL, err)
	}
	resp.Body = string(body)
	return resp, nil
}

// pause sleeps min + rand(max-min+1) milliseconds on the fetcher clock.
func (f *Fetcher) pause(ctx context.Context) error {
	minMs := f.cfg.MinDelay.Milliseconds()
	maxMs := f.cfg.MaxDelay.Milliseconds()
	if maxMs < minMs {
		maxMs = minMs
	}
	delay := time.Duration(minMs+rand.Int64N(maxMs-minMs+1)) * time.Millisecond
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-f.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) userAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return defaultUserAgent
	}
	return f.cfg.UserAgents[rand.IntN(len(f.cfg.UserAgents))]
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	if v, ok := f.limiters.Load(host); ok {
		return v.(*rate.Limiter)
	}
	limit := rate.Inf
	if f.cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(f.cfg.RequestsPerSecond)
	}
	v, _ := f.limiters.LoadOrStore(host, rate.NewLimiter(limit, 1))
	return v.(*rate.Limiter)
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

