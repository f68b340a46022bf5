package events

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/kafka"
)

// SiteOutcome is the last reported result of one site.
type SiteOutcome struct {
	Site   string       `json:"site"`
	Status model.Status `json:"status"`
	Pages  int          `json:"pages"`
	Error  string       `json:"error,omitempty"`
}

// Summary is a snapshot of everything a Tally has seen.
type Summary struct {
	Runs         int           `json:"runs"`
	Stopped      int           `json:"stopped"`
	PagesIndexed int64         `json:"pages_indexed"`
	PageErrors   int64         `json:"page_errors"`
	Sites        []SiteOutcome `json:"sites"`
}

// Tally aggregates consumed crawl events.
type Tally struct {
	mu      sync.RWMutex
	runs    map[string]struct{}
	stopped int
	pages   int64
	errors  int64
	sites   map[string]SiteOutcome
}

func NewTally() *Tally {
	return &Tally{
		runs:  make(map[string]struct{}),
		sites: make(map[string]SiteOutcome),
	}
}

func (t *Tally) Record(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e.Type {
	case CrawlStarted:
		t.runs[e.RunID] = struct{}{}
	case CrawlStopped:
		t.stopped++
	case PageIndexed:
		t.pages++
		if e.Error != "" || e.Code >= 400 || e.Code == 0 {
			t.errors++
		}
	case SiteFinished:
		t.sites[e.Site] = SiteOutcome{Site: e.Site, Status: e.Status, Pages: e.Pages, Error: e.Error}
	}
}

func (t *Tally) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Summary{
		Runs:         len(t.runs),
		Stopped:      t.stopped,
		PagesIndexed: t.pages,
		PageErrors:   t.errors,
		Sites:        make([]SiteOutcome, 0, len(t.sites)),
	}
	for _, o := range t.sites {
		s.Sites = append(s.Sites, o)
	}
	sort.Slice(s.Sites, func(i, j int) bool { return s.Sites[i].Site < s.Sites[j].Site })
	return s
}

// Handler decodes each message, records it and passes it to onEvent when
// that is non-nil.
func (t *Tally) Handler(onEvent func(Event)) kafka.MessageHandler {
	return func(_ context.Context, msgType string, value []byte) error {
		e, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			return err
		}
		if msgType != "" && Type(msgType) != e.Type {
			return fmt.Errorf("event type header %q does not match body %q", msgType, e.Type)
		}
		t.Record(e)
		if onEvent != nil {
			onEvent(e)
		}
		return nil
	}
}
