// Package memory is an in-process Store built from ID-keyed tables and
// secondary indexes. Cascades are performed step by step: postings first,
// then the rows that own them.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type pageKey struct {
	siteID int64
	path   string
}

type lemmaKey struct {
	siteID int64
	text   string
}

type Store struct {
	mu sync.RWMutex

	nextID int64

	sites    map[int64]model.Site
	pages    map[int64]model.Page
	lemmas   map[int64]model.Lemma
	postings map[int64]model.Posting

	siteByURL       map[string]int64
	pageByPath      map[pageKey]int64
	pagesBySite     map[int64]map[int64]struct{}
	lemmaByText     map[lemmaKey]int64
	lemmasBySite    map[int64]map[int64]struct{}
	postingsByPage  map[int64]map[int64]int64 // page -> lemma -> posting
	postingsByLemma map[int64]map[int64]int64 // lemma -> page -> posting
}

func New() *Store {
	return &Store{
		sites:           make(map[int64]model.Site),
		pages:           make(map[int64]model.Page),
		lemmas:          make(map[int64]model.Lemma),
		postings:        make(map[int64]model.Posting),
		siteByURL:       make(map[string]int64),
		pageByPath:      make(map[pageKey]int64),
		pagesBySite:     make(map[int64]map[int64]struct{}),
		lemmaByText:     make(map[lemmaKey]int64),
		lemmasBySite:    make(map[int64]map[int64]struct{}),
		postingsByPage:  make(map[int64]map[int64]int64),
		postingsByLemma: make(map[int64]map[int64]int64),
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Sites

func (s *Store) FindSiteByURL(_ context.Context, url string) (*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.siteByURL[url]
	if !ok {
		return nil, storage.ErrNotFound
	}
	site := s.sites[id]
	return &site, nil
}

func (s *Store) FindSiteByID(_ context.Context, id int64) (*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &site, nil
}

func (s *Store) FindAllSites(context.Context) ([]model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AnySites(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sites) > 0, nil
}

func (s *Store) SaveSite(_ context.Context, site *model.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if site.ID == 0 {
		site.ID = s.id()
	} else if old, ok := s.sites[site.ID]; ok && old.URL != site.URL {
		delete(s.siteByURL, old.URL)
	}
	s.sites[site.ID] = *site
	s.siteByURL[site.URL] = site.ID
	return nil
}

func (s *Store) DeleteSiteByURL(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.siteByURL[url]; ok {
		s.deleteSite(id)
	}
	return nil
}

func (s *Store) DeleteSiteByID(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSite(id)
	return nil
}

func (s *Store) deleteSite(id int64) {
	site, ok := s.sites[id]
	if !ok {
		return
	}
	for pageID := range s.pagesBySite[id] {
		s.deletePage(pageID)
	}
	for lemmaID := range s.lemmasBySite[id] {
		s.deleteLemma(lemmaID)
	}
	delete(s.pagesBySite, id)
	delete(s.lemmasBySite, id)
	delete(s.siteByURL, site.URL)
	delete(s.sites, id)
}

// Pages

func (s *Store) FindPageByPath(_ context.Context, siteID int64, path string) (*model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pageByPath[pageKey{siteID, path}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	page := s.pages[id]
	return &page, nil
}

func (s *Store) FindPageByID(_ context.Context, id int64) (*model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &page, nil
}

func (s *Store) FindPagesBySite(_ context.Context, siteID int64) ([]model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Page, 0, len(s.pagesBySite[siteID]))
	for id := range s.pagesBySite[siteID] {
		out = append(out, s.pages[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountPagesBySite(_ context.Context, siteID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pagesBySite[siteID]), nil
}

func (s *Store) SavePage(_ context.Context, page *model.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[page.SiteID]; !ok {
		return storage.ErrNotFound
	}
	key := pageKey{page.SiteID, page.Path}
	if page.ID == 0 {
		if existing, ok := s.pageByPath[key]; ok {
			page.ID = existing
		} else {
			page.ID = s.id()
		}
	} else if old, ok := s.pages[page.ID]; ok {
		delete(s.pageByPath, pageKey{old.SiteID, old.Path})
	}
	s.pages[page.ID] = *page
	s.pageByPath[key] = page.ID
	if s.pagesBySite[page.SiteID] == nil {
		s.pagesBySite[page.SiteID] = make(map[int64]struct{})
	}
	s.pagesBySite[page.SiteID][page.ID] = struct{}{}
	return nil
}

func (s *Store) DeletePage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletePage(id)
	return nil
}

func (s *Store) deletePage(id int64) {
	page, ok := s.pages[id]
	if !ok {
		return
	}
	for lemmaID, postingID := range s.postingsByPage[id] {
		delete(s.postings, postingID)
		delete(s.postingsByLemma[lemmaID], id)
	}
	delete(s.postingsByPage, id)
	delete(s.pageByPath, pageKey{page.SiteID, page.Path})
	delete(s.pagesBySite[page.SiteID], id)
	delete(s.pages, id)
}

// Lemmas

func (s *Store) FindLemma(_ context.Context, siteID int64, text string) (*model.Lemma, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.lemmaByText[lemmaKey{siteID, text}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	lemma := s.lemmas[id]
	return &lemma, nil
}

func (s *Store) FindLemmasBySite(_ context.Context, siteID int64) ([]model.Lemma, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Lemma, 0, len(s.lemmasBySite[siteID]))
	for id := range s.lemmasBySite[siteID] {
		out = append(out, s.lemmas[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindLemmasByText(_ context.Context, texts []string, siteID int64) ([]model.Lemma, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]struct{}, len(texts))
	for _, t := range texts {
		wanted[t] = struct{}{}
	}
	var out []model.Lemma
	for _, lemma := range s.lemmas {
		if siteID != 0 && lemma.SiteID != siteID {
			continue
		}
		if _, ok := wanted[lemma.Text]; ok {
			out = append(out, lemma)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountLemmasBySite(_ context.Context, siteID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lemmasBySite[siteID]), nil
}

func (s *Store) AnyLemmas(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lemmas) > 0, nil
}

func (s *Store) SaveLemma(_ context.Context, lemma *model.Lemma) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[lemma.SiteID]; !ok {
		return storage.ErrNotFound
	}
	key := lemmaKey{lemma.SiteID, lemma.Text}
	if lemma.ID == 0 {
		if existing, ok := s.lemmaByText[key]; ok {
			lemma.ID = existing
		} else {
			lemma.ID = s.id()
		}
	}
	s.lemmas[lemma.ID] = *lemma
	s.lemmaByText[key] = lemma.ID
	if s.lemmasBySite[lemma.SiteID] == nil {
		s.lemmasBySite[lemma.SiteID] = make(map[int64]struct{})
	}
	s.lemmasBySite[lemma.SiteID][lemma.ID] = struct{}{}
	return nil
}

func (s *Store) DeleteLemma(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLemma(id)
	return nil
}

func (s *Store) deleteLemma(id int64) {
	lemma, ok := s.lemmas[id]
	if !ok {
		return
	}
	for pageID, postingID := range s.postingsByLemma[id] {
		delete(s.postings, postingID)
		delete(s.postingsByPage[pageID], id)
	}
	delete(s.postingsByLemma, id)
	delete(s.lemmaByText, lemmaKey{lemma.SiteID, lemma.Text})
	delete(s.lemmasBySite[lemma.SiteID], id)
	delete(s.lemmas, id)
}

// Postings

func (s *Store) FindPostingsByLemma(_ context.Context, lemmaID, siteID int64) ([]model.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lemma, ok := s.lemmas[lemmaID]; !ok || lemma.SiteID != siteID {
		return nil, nil
	}
	out := make([]model.Posting, 0, len(s.postingsByLemma[lemmaID]))
	for _, postingID := range s.postingsByLemma[lemmaID] {
		out = append(out, s.postings[postingID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out, nil
}

func (s *Store) CountPagesByLemma(_ context.Context, lemmaID, siteID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lemma, ok := s.lemmas[lemmaID]; !ok || lemma.SiteID != siteID {
		return 0, nil
	}
	return len(s.postingsByLemma[lemmaID]), nil
}

func (s *Store) SavePosting(_ context.Context, posting *model.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savePosting(posting)
}

func (s *Store) SavePostings(_ context.Context, postings []model.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range postings {
		if err := s.savePosting(&postings[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) savePosting(posting *model.Posting) error {
	if _, ok := s.pages[posting.PageID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.lemmas[posting.LemmaID]; !ok {
		return storage.ErrNotFound
	}
	if existing, ok := s.postingsByPage[posting.PageID][posting.LemmaID]; ok {
		posting.ID = existing
	} else if posting.ID == 0 {
		posting.ID = s.id()
	}
	s.postings[posting.ID] = *posting
	if s.postingsByPage[posting.PageID] == nil {
		s.postingsByPage[posting.PageID] = make(map[int64]int64)
	}
	if s.postingsByLemma[posting.LemmaID] == nil {
		s.postingsByLemma[posting.LemmaID] = make(map[int64]int64)
	}
	s.postingsByPage[posting.PageID][posting.LemmaID] = posting.ID
	s.postingsByLemma[posting.LemmaID][posting.PageID] = posting.ID
	return nil
}

func (s *Store) DeletePosting(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	posting, ok := s.postings[id]
	if !ok {
		return nil
	}
	delete(s.postingsByPage[posting.PageID], posting.LemmaID)
	delete(s.postingsByLemma[posting.LemmaID], posting.PageID)
	delete(s.postings, id)
	return nil
}
