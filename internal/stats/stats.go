// Package stats reports index totals and per-site crawl outcomes.
package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
)

type Total struct {
	Sites    int  `json:"sites"`
	Pages    int  `json:"pages"`
	Lemmas   int  `json:"lemmas"`
	Indexing bool `json:"indexing"`
}

// Detailed describes one stored site. StatusTime is in unix milliseconds.
type Detailed struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	StatusTime int64  `json:"statusTime"`
	Error      string `json:"error,omitempty"`
	Pages      int    `json:"pages"`
	Lemmas     int    `json:"lemmas"`
}

type Report struct {
	Total    Total      `json:"total"`
	Detailed []Detailed `json:"detailed"`
}

type Service struct {
	store   storage.Store
	running func() bool
	logger  *slog.Logger
}

// New builds the service; running reports whether a crawl is in progress
// and may be nil.
func New(store storage.Store, running func() bool) *Service {
	if running == nil {
		running = func() bool { return false }
	}
	return &Service{
		store:   store,
		running: running,
		logger:  slog.Default().With("component", "stats"),
	}
}

// Statistics lists only sites that have a stored row.
func (s *Service) Statistics(ctx context.Context) (*Report, error) {
	sites, err := s.store.FindAllSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading sites: %w", err)
	}
	report := &Report{
		Total:    Total{Sites: len(sites), Indexing: s.running()},
		Detailed: make([]Detailed, 0, len(sites)),
	}
	for _, site := range sites {
		pages, err := s.store.CountPagesBySite(ctx, site.ID)
		if err != nil {
			return nil, fmt.Errorf("counting pages of %s: %w", site.URL, err)
		}
		lemmas, err := s.store.CountLemmasBySite(ctx, site.ID)
		if err != nil {
			return nil, fmt.Errorf("counting lemmas of %s: %w", site.URL, err)
		}
		report.Total.Pages += pages
		report.Total.Lemmas += lemmas
		report.Detailed = append(report.Detailed, Detailed{
			URL:        site.URL,
			Name:       site.Name,
			Status:     string(site.Status),
			StatusTime: site.StatusTime.UnixMilli(),
			Error:      site.LastError,
			Pages:      pages,
			Lemmas:     lemmas,
		})
	}
	s.logger.Debug("statistics collected", "sites", report.Total.Sites, "pages", report.Total.Pages, "lemmas", report.Total.Lemmas)
	return report, nil
}
