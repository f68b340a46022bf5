package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/kafka"
)

type recordingSink struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (s *recordingSink) Publish(_ context.Context, messages ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, messages...)
	return nil
}

func (s *recordingSink) snapshot() []kafka.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]kafka.Message(nil), s.messages...)
}

func TestPublisherForwardsEvents(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, 16)
	p.Start(context.Background())

	p.Track(Event{Type: CrawlStarted, RunID: "run-1", Sites: 2})
	p.Track(Event{Type: SiteFinished, RunID: "run-1", Site: "http://a.test", Status: model.StatusIndexed, Pages: 3})
	p.Close()

	msgs := sink.snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "run-1", msgs[0].Key)
	assert.Equal(t, string(CrawlStarted), msgs[0].Type)
	assert.Equal(t, "http://a.test", msgs[1].Key)
	e := msgs[1].Value.(Event)
	assert.Equal(t, model.StatusIndexed, e.Status)
	assert.False(t, e.Timestamp.IsZero())

	p.Track(Event{Type: CrawlStopped})
	assert.Len(t, sink.snapshot(), 2, "closed publisher ignores events")
}

func TestPublisherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, 1)

	p.Track(Event{Type: PageIndexed, URL: "http://a.test/1"})
	p.Track(Event{Type: PageIndexed, URL: "http://a.test/2"})

	p.Start(context.Background())
	p.Close()
	require.Len(t, sink.snapshot(), 1)
	assert.Equal(t, "http://a.test/1", sink.snapshot()[0].Value.(Event).URL)
}

func TestPublisherSurvivesSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	p := NewPublisher(sink, 4)
	p.Start(context.Background())
	p.Track(Event{Type: CrawlStarted})
	p.Close()
	assert.Empty(t, sink.snapshot())
}

func TestPublisherDrainsOnCancel(t *testing.T) {
	sink := &recordingSink{}
	p := NewPublisher(sink, 8)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	p.Track(Event{Type: CrawlStarted, RunID: "r"})
	cancel()
	p.Close()

	assert.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestTally(t *testing.T) {
	tally := NewTally()
	handle := tally.Handler(nil)
	ctx := context.Background()

	feed := func(e Event) {
		data, err := json.Marshal(e)
		require.NoError(t, err)
		require.NoError(t, handle(ctx, string(e.Type), data))
	}
	feed(Event{Type: CrawlStarted, RunID: "r1"})
	feed(Event{Type: PageIndexed, URL: "http://a.test/", Code: 200})
	feed(Event{Type: PageIndexed, URL: "http://a.test/x", Code: 404})
	feed(Event{Type: SiteFinished, Site: "http://b.test", Status: model.StatusFailed, Error: "boom"})
	feed(Event{Type: SiteFinished, Site: "http://a.test", Status: model.StatusIndexed, Pages: 2})
	feed(Event{Type: CrawlStopped, RunID: "r1"})

	s := tally.Summary()
	assert.Equal(t, 1, s.Runs)
	assert.Equal(t, 1, s.Stopped)
	assert.Equal(t, int64(2), s.PagesIndexed)
	assert.Equal(t, int64(1), s.PageErrors)
	require.Len(t, s.Sites, 2)
	assert.Equal(t, "http://a.test", s.Sites[0].Site)
	assert.Equal(t, model.StatusFailed, s.Sites[1].Status)

	assert.Error(t, handle(ctx, "page_indexed", []byte(`{"type":"crawl_started"}`)))
	assert.Error(t, handle(ctx, "", []byte(`not json`)))
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard.Track(Event{Type: CrawlStarted}) })
}
