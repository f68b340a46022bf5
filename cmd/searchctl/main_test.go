package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher"
)

func writeConfig(t *testing.T, siteURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`storage:
  driver: memory
sites:
  - url: %s
    name: Тест
fetch:
  minDelay: 0s
  maxDelay: 0s
crawler:
  workers: 2
`, siteURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &errOut
	a.ExitErrHandler = func(*cli.Context, error) {}
	err := a.Run(append([]string{"searchctl"}, args...))
	return out.String(), err
}

func TestCrawlPrintsStatistics(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><body><a href="/about">о нас</a></body></html>`)
		case "/about":
			fmt.Fprint(w, `<html><body><p>Мы продаем книги</p></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer site.Close()

	out, err := run(t, "--config", writeConfig(t, site.URL), "crawl")
	require.NoError(t, err)
	assert.Contains(t, out, "sites: 1, pages: 2")
	assert.Contains(t, out, site.URL)
	assert.Contains(t, out, "INDEXED")
}

func TestSearchOnEmptyIndex(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t, "http://example.test"), "search", "книги")
	require.Error(t, err)
	assert.Equal(t, searcher.MsgIndexNotReady, err.Error())
}

func TestArgumentChecks(t *testing.T) {
	cfg := writeConfig(t, "http://example.test")

	_, err := run(t, "--config", cfg, "search")
	assert.EqualError(t, err, "search needs a query")

	_, err = run(t, "--config", cfg, "index-page")
	assert.EqualError(t, err, "index-page needs exactly one URL")
}

func TestWatchNeedsBrokers(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t, "http://example.test"), "watch")
	assert.EqualError(t, err, "no kafka brokers configured")
}
