// Package storage declares the persistence contract for sites, pages, lemmas
// and postings. Deleting a site or a page removes everything that hangs off it.
package storage

import (
	"context"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
)

// ErrNotFound is returned by Find* methods when no row matches.
var ErrNotFound = errors.New("storage: not found")

type SiteStore interface {
	FindSiteByURL(ctx context.Context, url string) (*model.Site, error)
	FindSiteByID(ctx context.Context, id int64) (*model.Site, error)
	FindAllSites(ctx context.Context) ([]model.Site, error)
	AnySites(ctx context.Context) (bool, error)
	// SaveSite inserts the site when ID is zero, assigning the ID, and
	// updates it otherwise.
	SaveSite(ctx context.Context, site *model.Site) error
	DeleteSiteByURL(ctx context.Context, url string) error
	DeleteSiteByID(ctx context.Context, id int64) error
}

type PageStore interface {
	FindPageByPath(ctx context.Context, siteID int64, path string) (*model.Page, error)
	FindPageByID(ctx context.Context, id int64) (*model.Page, error)
	FindPagesBySite(ctx context.Context, siteID int64) ([]model.Page, error)
	CountPagesBySite(ctx context.Context, siteID int64) (int, error)
	SavePage(ctx context.Context, page *model.Page) error
	// DeletePage removes the page and its postings. Lemma frequencies are
	// left untouched.
	DeletePage(ctx context.Context, id int64) error
}

type LemmaStore interface {
	FindLemma(ctx context.Context, siteID int64, text string) (*model.Lemma, error)
	FindLemmasBySite(ctx context.Context, siteID int64) ([]model.Lemma, error)
	// FindLemmasByText returns the lemmas whose text is in texts, limited to
	// siteID unless it is zero.
	FindLemmasByText(ctx context.Context, texts []string, siteID int64) ([]model.Lemma, error)
	CountLemmasBySite(ctx context.Context, siteID int64) (int, error)
	AnyLemmas(ctx context.Context) (bool, error)
	SaveLemma(ctx context.Context, lemma *model.Lemma) error
	// DeleteLemma removes the lemma and its postings.
	DeleteLemma(ctx context.Context, id int64) error
}

type PostingStore interface {
	FindPostingsByLemma(ctx context.Context, lemmaID, siteID int64) ([]model.Posting, error)
	CountPagesByLemma(ctx context.Context, lemmaID, siteID int64) (int, error)
	// SavePosting upserts on (PageID, LemmaID).
	SavePosting(ctx context.Context, posting *model.Posting) error
	SavePostings(ctx context.Context, postings []model.Posting) error
	DeletePosting(ctx context.Context, id int64) error
}

// Store is the full persistence contract.
type Store interface {
	SiteStore
	PageStore
	LemmaStore
	PostingStore
	Ping(ctx context.Context) error
	Close() error
}
