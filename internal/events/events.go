// Package events publishes crawl lifecycle events to Kafka and tallies them
// on the consuming side.
package events

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
)

type Type string

const (
	CrawlStarted Type = "crawl_started"
	SiteFinished Type = "site_finished"
	CrawlStopped Type = "crawl_stopped"
	PageIndexed  Type = "page_indexed"
)

// Event describes one step of a crawl run. Fields that do not apply to the
// type are left empty.
type Event struct {
	Type      Type         `json:"type"`
	RunID     string       `json:"run_id,omitempty"`
	Site      string       `json:"site,omitempty"`
	URL       string       `json:"url,omitempty"`
	Status    model.Status `json:"status,omitempty"`
	Code      int          `json:"code,omitempty"`
	Pages     int          `json:"pages,omitempty"`
	Sites     int          `json:"sites,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Tracker accepts events without blocking.
type Tracker interface {
	Track(e Event)
}

type discard struct{}

func (discard) Track(Event) {}

// Discard is the Tracker used when no brokers are configured.
var Discard Tracker = discard{}
