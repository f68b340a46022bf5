// Package model defines the indexed entities: sites, their pages, the lemmas
// seen on each site and the postings linking pages to lemmas.
package model

import "time"

// Status is the crawl state of a site.
type Status string

const (
	StatusIndexing Status = "INDEXING"
	StatusIndexed  Status = "INDEXED"
	StatusFailed   Status = "FAILED"
)

// Site is one configured website and the outcome of its last crawl.
type Site struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	StatusTime time.Time `json:"status_time"`
	LastError  string    `json:"last_error,omitempty"`
}

// SetStatus moves the site to status and stamps the transition time.
func (s *Site) SetStatus(status Status, lastError string, now time.Time) {
	s.Status = status
	s.LastError = lastError
	s.StatusTime = now
}

// Page is a fetched URL. Path holds the absolute URL and is unique per site.
type Page struct {
	ID      int64  `json:"id"`
	SiteID  int64  `json:"site_id"`
	Path    string `json:"path"`
	Code    int    `json:"code"`
	Content string `json:"-"`
}

// Lemma is a base word form seen on a site. Frequency is the total number of
// occurrences across all pages of the site.
type Lemma struct {
	ID        int64  `json:"id"`
	SiteID    int64  `json:"site_id"`
	Text      string `json:"text"`
	Frequency int    `json:"frequency"`
}

// Posting records that a lemma occurs on a page with the given weight.
type Posting struct {
	ID      int64   `json:"id"`
	PageID  int64   `json:"page_id"`
	LemmaID int64   `json:"lemma_id"`
	Rank    float64 `json:"rank"`
}

// EmptyPageContent is stored for pages whose fetch produced no body.
const EmptyPageContent = "<html><body></body></html>"
