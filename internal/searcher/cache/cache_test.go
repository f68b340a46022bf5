package cache

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher"
	pkgredis "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/redis"
)

type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapBackend() *mapBackend { return &mapBackend{data: map[string][]byte{}} }

func (b *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *mapBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

// countingSource lower-cases words as lemmas and counts real searches.
type countingSource struct {
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (s *countingSource) Search(_ context.Context, q searcher.Query) (*searcher.Response, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	return &searcher.Response{Count: 1, Results: []searcher.Result{{URI: "/", Title: q.Text, Relevance: 1}}}, nil
}

func (s *countingSource) Lemmas(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func (s *countingSource) Normalize(q searcher.Query) searcher.Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return q
}

func TestSearchCachesResponses(t *testing.T) {
	src := &countingSource{}
	c := New(src, newMapBackend(), time.Minute)
	ctx := context.Background()

	first, err := c.Search(ctx, searcher.Query{Text: "кот пес"})
	require.NoError(t, err)
	second, err := c.Search(ctx, searcher.Query{Text: "Пес  кот", Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, int64(1), src.calls.Load(), "same lemmas and window share an entry")
	assert.Equal(t, first.Count, second.Count)
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.GreaterOrEqual(t, misses, int64(1))

	_, err = c.Search(ctx, searcher.Query{Text: "кот пес", Offset: 20})
	require.NoError(t, err)
	_, err = c.Search(ctx, searcher.Query{Text: "кот пес", Site: "http://a.test"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), src.calls.Load())
}

func TestSearchDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("not ready")}
	c := New(src, newMapBackend(), time.Minute)

	for i := 0; i < 2; i++ {
		_, err := c.Search(context.Background(), searcher.Query{Text: "кот"})
		assert.Error(t, err)
	}
	assert.Equal(t, int64(2), src.calls.Load())
}

func TestConcurrentSearchesCollapse(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond}
	c := New(src, newMapBackend(), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Search(context.Background(), searcher.Query{Text: "кот"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, src.calls.Load(), int64(10))
}

func TestInvalidate(t *testing.T) {
	src := &countingSource{}
	backend := newMapBackend()
	backend.data["other:key"] = []byte("x")
	c := New(src, backend, time.Minute)
	ctx := context.Background()

	_, err := c.Search(ctx, searcher.Query{Text: "кот"})
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	_, err = c.Search(ctx, searcher.Query{Text: "кот"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), src.calls.Load())
	assert.Contains(t, backend.data, "other:key")
}
