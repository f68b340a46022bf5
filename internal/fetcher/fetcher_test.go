package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/resilience"
)

func newTestFetcher(opts ...Option) *Fetcher {
	return New(config.FetchConfig{
		UserAgents: []string{"agent-a", "agent-b"},
		Referer:    "http://www.google.com",
		Timeout:    2 * time.Second,
	}, opts...)
}

func TestFetchHTML(t *testing.T) {
	var gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotReferer = r.Referer()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	resp, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsHTML)
	assert.Contains(t, resp.Body, "hi")
	assert.Contains(t, []string{"agent-a", "agent-b"}, gotUA)
	assert.Equal(t, "http://www.google.com", gotReferer)
}

func TestFetchErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<html>missing</html>"))
	}))
	defer srv.Close()

	resp := newTestFetcher().FetchWithContent(context.Background(), srv.URL)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, resp.IsHTML)
	assert.Empty(t, resp.Body)
}

func TestFetchNonHTMLHasNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	resp := newTestFetcher().FetchWithContent(context.Background(), srv.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.IsHTML)
	assert.Empty(t, resp.Body)
}

func TestFetchWithContentConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	resp := newTestFetcher().FetchWithContent(context.Background(), addr)
	assert.Zero(t, resp.StatusCode)
	assert.Empty(t, resp.Body)
}

func TestPauseUsesClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	clk := testclock.NewClock(time.Now())
	f := New(config.FetchConfig{MinDelay: time.Second, MaxDelay: time.Second}, WithClock(clk))

	done := make(chan Response, 1)
	go func() { done <- f.FetchWithContent(context.Background(), srv.URL) }()

	require.NoError(t, clk.WaitAdvance(time.Second, 5*time.Second, 1))
	select {
	case resp := <-done:
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not complete after the clock advanced")
	}
}

func TestLinksRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/a">a</a><a href="` + srv.URL + `/b#top">b</a><a href="http://other.test/c">c</a>`))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	f := newTestFetcher(WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}))
	links := f.Links(context.Background(), srv.URL+"/", srv.URL)
	assert.Equal(t, []string{srv.URL + "/a", srv.URL + "/b"}, links)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestLinksSkipsAssetsWithoutFetching(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	assert.Nil(t, newTestFetcher().Links(context.Background(), srv.URL+"/logo.PNG#x", srv.URL))
	assert.Zero(t, calls.Load())
}

func TestExtractLinks(t *testing.T) {
	body := `<html><body>
		<a href="/a">a</a>
		<a href="/a#frag">dup</a>
		<a href="b/c?x=1">rel</a>
		<a href="/img/logo.png">asset</a>
		<a href="mailto:me@example.test">mail</a>
		<a href="http://elsewhere.test/x">ext</a>
		<a href="http://example.test.evil.com/x">lookalike</a>
		<a href="http://example.testing/x">longer host</a>
	</body></html>`
	links := ExtractLinks(body, "http://example.test/dir/", "http://example.test")
	assert.Equal(t, []string{"http://example.test/a", "http://example.test/dir/b/c?x=1"}, links)
}

func TestInSite(t *testing.T) {
	assert.True(t, InSite("http://example.test", "http://example.test"))
	assert.True(t, InSite("http://example.test/", "http://example.test/"))
	assert.True(t, InSite("http://example.test/a/b", "http://example.test"))
	assert.True(t, InSite("http://example.test?p=1", "http://example.test"))
	assert.True(t, InSite("http://example.test/blog/post", "http://example.test/blog"))
	assert.False(t, InSite("http://example.test.evil.com/x", "http://example.test"))
	assert.False(t, InSite("http://example.testing/x", "http://example.test"))
	assert.False(t, InSite("http://example.test/blogger", "http://example.test/blog"))
	assert.False(t, InSite("https://example.test/a", "http://example.test"))
	assert.False(t, InSite("http://example.test/a", ""))
}

func TestIsAsset(t *testing.T) {
	assert.True(t, IsAsset("http://x.test/style.CSS"))
	assert.True(t, IsAsset("http://x.test/app.js#v2"))
	assert.False(t, IsAsset("http://x.test/page.html"))
	assert.False(t, IsAsset("http://x.test/jsdoc"))
}
