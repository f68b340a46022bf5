package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/health"
)

type fakeCrawler struct {
	running   bool
	stopDelay time.Duration
}

func (c *fakeCrawler) Start(context.Context) error {
	if c.running {
		return apperrors.New(apperrors.ErrCrawlInProgress, http.StatusBadRequest, "Индексация уже запущена")
	}
	c.running = true
	return nil
}

func (c *fakeCrawler) Stop() error {
	time.Sleep(c.stopDelay)
	if !c.running {
		return apperrors.New(apperrors.ErrCrawlNotRunning, http.StatusBadRequest, "Индексация не запущена")
	}
	c.running = false
	return nil
}

type fakePages struct {
	indexed []string
	err     error
}

func (p *fakePages) IndexPage(_ context.Context, u string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	if !strings.HasPrefix(u, "http://a.test") {
		return false, nil
	}
	p.indexed = append(p.indexed, u)
	return true, nil
}

type fakeStats struct{}

func (fakeStats) Statistics(context.Context) (*stats.Report, error) {
	return &stats.Report{
		Total:    stats.Total{Sites: 1, Pages: 3, Lemmas: 10},
		Detailed: []stats.Detailed{{URL: "http://a.test", Name: "A", Status: "INDEXED", Pages: 3, Lemmas: 10}},
	}, nil
}

type fakeSearcher struct {
	last searcher.Query
	resp *searcher.Response
	err  error
}

func (s *fakeSearcher) Search(_ context.Context, q searcher.Query) (*searcher.Response, error) {
	s.last = q
	return s.resp, s.err
}

type env struct {
	crawler  *fakeCrawler
	pages    *fakePages
	searcher *fakeSearcher
	server   http.Handler
}

func newEnv() *env {
	return newEnvWith(config.Default())
}

func newEnvWith(cfg *config.Config) *env {
	e := &env{crawler: &fakeCrawler{}, pages: &fakePages{}, searcher: &fakeSearcher{}}
	checker := health.NewChecker()
	checker.Register("storage", health.Ping(func(context.Context) error { return nil }, true))
	e.server = NewRouter(NewHandler(e.crawler, e.pages, fakeStats{}, e.searcher), checker, cfg)
	return e
}

func (e *env) do(t *testing.T, method, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestStartAndStopIndexing(t *testing.T) {
	e := newEnv()

	code, body := e.do(t, http.MethodGet, "/api/startIndexing")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"result": true}, body)

	code, body = e.do(t, http.MethodGet, "/api/startIndexing")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["result"])
	assert.Equal(t, "Индексация уже запущена", body["error"])

	code, _ = e.do(t, http.MethodGet, "/api/stopIndexing")
	assert.Equal(t, http.StatusOK, code)

	code, body = e.do(t, http.MethodGet, "/api/stopIndexing")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Индексация не запущена", body["error"])
}

func TestIndexPage(t *testing.T) {
	e := newEnv()

	code, body := e.do(t, http.MethodPost, "/api/indexPage?url="+url.QueryEscape("http://a.test/news"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["result"])
	assert.Equal(t, []string{"http://a.test/news"}, e.pages.indexed)

	code, body = e.do(t, http.MethodPost, "/api/indexPage?url="+url.QueryEscape("http://other.test/"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgPageOutside, body["error"])

	code, body = e.do(t, http.MethodPost, "/api/indexPage")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgEmptyPageURL, body["error"])

	e.pages.err = errors.New("disk full")
	code, body = e.do(t, http.MethodPost, "/api/indexPage?url=http://a.test/x")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MsgInternalError, body["error"])
}

func TestIndexPageFormBody(t *testing.T) {
	e := newEnv()
	req := httptest.NewRequest(http.MethodPost, "/api/indexPage", strings.NewReader("url="+url.QueryEscape("http://a.test/form")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"http://a.test/form"}, e.pages.indexed)
}

func TestStatistics(t *testing.T) {
	code, body := newEnv().do(t, http.MethodGet, "/api/statistics")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["result"])
	st := body["statistics"].(map[string]any)
	assert.Equal(t, float64(3), st["total"].(map[string]any)["pages"])
	assert.Len(t, st["detailed"], 1)
}

func TestSearch(t *testing.T) {
	e := newEnv()
	e.searcher.resp = &searcher.Response{Count: 7, Results: []searcher.Result{{
		Site: "http://a.test", SiteName: "A", URI: "/a", Title: "Кошки", Snippet: "<b>кот</b>", Relevance: 1,
	}}}

	code, body := e.do(t, http.MethodGet, "/api/search?query="+url.QueryEscape("кот")+"&site=http://a.test&offset=5&limit=1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["result"])
	assert.Equal(t, float64(7), body["count"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "/a", data[0].(map[string]any)["uri"])
	assert.Equal(t, searcher.Query{Text: "кот", Site: "http://a.test", Offset: 5, Limit: 1}, e.searcher.last)
}

func TestSearchErrors(t *testing.T) {
	e := newEnv()

	e.searcher.resp = &searcher.Response{}
	code, body := e.do(t, http.MethodGet, "/api/search?query=x")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, MsgNoResults, body["error"])

	e.searcher.err = apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, searcher.MsgEmptyQuery)
	code, body = e.do(t, http.MethodGet, "/api/search?query=")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, searcher.MsgEmptyQuery, body["error"])

	code, body = e.do(t, http.MethodGet, "/api/search?query=x&limit=-1")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MsgBadPaging, body["error"])

	e.searcher.err = errors.New("db closed")
	code, body = e.do(t, http.MethodGet, "/api/search?query=x")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MsgInternalError, body["error"])
}

func TestRoutingFallbacks(t *testing.T) {
	e := newEnv()

	code, _ := e.do(t, http.MethodGet, "/api/nothing")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodGet, "/api/indexPage")
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	code, body := e.do(t, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "up", body["status"])
}

func TestStopIndexingOutlastsRequestTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RequestTimeout = 20 * time.Millisecond
	cfg.Crawler.StopTimeout = time.Second
	e := newEnvWith(cfg)
	e.crawler.running = true
	e.crawler.stopDelay = 100 * time.Millisecond

	code, body := e.do(t, http.MethodGet, "/api/stopIndexing")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"result": true}, body)

	assert.Equal(t, time.Second+stopStatusGrace, stopRequestTimeout(cfg))
	cfg.Server.RequestTimeout = time.Minute
	assert.Equal(t, time.Minute, stopRequestTimeout(cfg))
	cfg.Server.RequestTimeout = 0
	assert.Zero(t, stopRequestTimeout(cfg))
}
