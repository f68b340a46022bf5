// Package sqlstore implements storage.Store on database/sql for PostgreSQL
// (lib/pq) and SQLite (mattn/go-sqlite3). Queries are written with "?"
// placeholders and rebound for the active driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/model"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/database"
)

var _ storage.Store = (*Store)(nil)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	client *database.Client
	logger *slog.Logger
}

// New bootstraps the schema for the client's driver and returns the store.
func New(ctx context.Context, client *database.Client) (*Store, error) {
	schema := sqliteSchema
	if client.Driver == "postgres" {
		schema = postgresSchema
	}
	if _, err := client.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{
		client: client,
		logger: slog.Default().With("component", "sqlstore", "driver", client.Driver),
	}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx) }
func (s *Store) Close() error                   { return s.client.Close() }

func (s *Store) q(query string) string {
	if s.client.Driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Sites

const siteColumns = "id, url, name, status, status_time, last_error"

func scanSite(row interface{ Scan(...any) error }) (*model.Site, error) {
	var site model.Site
	var status string
	if err := row.Scan(&site.ID, &site.URL, &site.Name, &status, &site.StatusTime, &site.LastError); err != nil {
		return nil, err
	}
	site.Status = model.Status(status)
	return &site, nil
}

func (s *Store) FindSiteByURL(ctx context.Context, url string) (*model.Site, error) {
	site, err := scanSite(s.client.DB.QueryRowContext(ctx, s.q("SELECT "+siteColumns+" FROM sites WHERE url = ?"), url))
	if err != nil {
		return nil, notFound(err)
	}
	return site, nil
}

func (s *Store) FindSiteByID(ctx context.Context, id int64) (*model.Site, error) {
	site, err := scanSite(s.client.DB.QueryRowContext(ctx, s.q("SELECT "+siteColumns+" FROM sites WHERE id = ?"), id))
	if err != nil {
		return nil, notFound(err)
	}
	return site, nil
}

func (s *Store) FindAllSites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.client.DB.QueryContext(ctx, "SELECT "+siteColumns+" FROM sites ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying sites: %w", err)
	}
	defer rows.Close()
	var out []model.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}
		out = append(out, *site)
	}
	return out, rows.Err()
}

func (s *Store) AnySites(ctx context.Context) (bool, error) {
	var exists bool
	err := s.client.DB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM sites)").Scan(&exists)
	return exists, err
}

func (s *Store) SaveSite(ctx context.Context, site *model.Site) error {
	if site.StatusTime.IsZero() {
		site.StatusTime = time.Now()
	}
	statusTime := site.StatusTime.UTC()
	if site.ID == 0 {
		err := s.client.DB.QueryRowContext(ctx, s.q(
			"INSERT INTO sites (url, name, status, status_time, last_error) VALUES (?, ?, ?, ?, ?) RETURNING id"),
			site.URL, site.Name, string(site.Status), statusTime, site.LastError,
		).Scan(&site.ID)
		if err != nil {
			return fmt.Errorf("inserting site %s: %w", site.URL, err)
		}
		return nil
	}
	_, err := s.client.DB.ExecContext(ctx, s.q(
		"UPDATE sites SET url = ?, name = ?, status = ?, status_time = ?, last_error = ? WHERE id = ?"),
		site.URL, site.Name, string(site.Status), statusTime, site.LastError, site.ID,
	)
	if err != nil {
		return fmt.Errorf("updating site %d: %w", site.ID, err)
	}
	return nil
}

func (s *Store) DeleteSiteByURL(ctx context.Context, url string) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, s.q("SELECT id FROM sites WHERE url = ?"), url).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("looking up site %s: %w", url, err)
		}
		return s.deleteSite(ctx, tx, id)
	})
}

func (s *Store) DeleteSiteByID(ctx context.Context, id int64) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		return s.deleteSite(ctx, tx, id)
	})
}

func (s *Store) deleteSite(ctx context.Context, tx querier, id int64) error {
	steps := []string{
		"DELETE FROM postings WHERE page_id IN (SELECT id FROM pages WHERE site_id = ?)",
		"DELETE FROM lemmas WHERE site_id = ?",
		"DELETE FROM pages WHERE site_id = ?",
		"DELETE FROM sites WHERE id = ?",
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, s.q(step), id); err != nil {
			return fmt.Errorf("deleting site %d: %w", id, err)
		}
	}
	s.logger.Debug("site deleted", "site_id", id)
	return nil
}

// Pages

const pageColumns = "id, site_id, path, code, content"

func scanPage(row interface{ Scan(...any) error }) (*model.Page, error) {
	var page model.Page
	if err := row.Scan(&page.ID, &page.SiteID, &page.Path, &page.Code, &page.Content); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *Store) FindPageByPath(ctx context.Context, siteID int64, path string) (*model.Page, error) {
	page, err := scanPage(s.client.DB.QueryRowContext(ctx, s.q(
		"SELECT "+pageColumns+" FROM pages WHERE site_id = ? AND path = ?"), siteID, path))
	if err != nil {
		return nil, notFound(err)
	}
	return page, nil
}

func (s *Store) FindPageByID(ctx context.Context, id int64) (*model.Page, error) {
	page, err := scanPage(s.client.DB.QueryRowContext(ctx, s.q("SELECT "+pageColumns+" FROM pages WHERE id = ?"), id))
	if err != nil {
		return nil, notFound(err)
	}
	return page, nil
}

func (s *Store) FindPagesBySite(ctx context.Context, siteID int64) ([]model.Page, error) {
	rows, err := s.client.DB.QueryContext(ctx, s.q("SELECT "+pageColumns+" FROM pages WHERE site_id = ? ORDER BY id"), siteID)
	if err != nil {
		return nil, fmt.Errorf("querying pages of site %d: %w", siteID, err)
	}
	defer rows.Close()
	var out []model.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		out = append(out, *page)
	}
	return out, rows.Err()
}

func (s *Store) CountPagesBySite(ctx context.Context, siteID int64) (int, error) {
	var n int
	err := s.client.DB.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM pages WHERE site_id = ?"), siteID).Scan(&n)
	return n, err
}

func (s *Store) SavePage(ctx context.Context, page *model.Page) error {
	if page.ID == 0 {
		err := s.client.DB.QueryRowContext(ctx, s.q(
			`INSERT INTO pages (site_id, path, code, content) VALUES (?, ?, ?, ?)
			 ON CONFLICT (site_id, path) DO UPDATE SET code = excluded.code, content = excluded.content
			 RETURNING id`),
			page.SiteID, page.Path, page.Code, page.Content,
		).Scan(&page.ID)
		if err != nil {
			return fmt.Errorf("inserting page %s: %w", page.Path, err)
		}
		return nil
	}
	_, err := s.client.DB.ExecContext(ctx, s.q(
		"UPDATE pages SET site_id = ?, path = ?, code = ?, content = ? WHERE id = ?"),
		page.SiteID, page.Path, page.Code, page.Content, page.ID,
	)
	if err != nil {
		return fmt.Errorf("updating page %d: %w", page.ID, err)
	}
	return nil
}

func (s *Store) DeletePage(ctx context.Context, id int64) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM postings WHERE page_id = ?"), id); err != nil {
			return fmt.Errorf("deleting postings of page %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM pages WHERE id = ?"), id); err != nil {
			return fmt.Errorf("deleting page %d: %w", id, err)
		}
		return nil
	})
}

// Lemmas

const lemmaColumns = "id, site_id, lemma, frequency"

func scanLemma(row interface{ Scan(...any) error }) (*model.Lemma, error) {
	var lemma model.Lemma
	if err := row.Scan(&lemma.ID, &lemma.SiteID, &lemma.Text, &lemma.Frequency); err != nil {
		return nil, err
	}
	return &lemma, nil
}

func (s *Store) queryLemmas(ctx context.Context, query string, args ...any) ([]model.Lemma, error) {
	rows, err := s.client.DB.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying lemmas: %w", err)
	}
	defer rows.Close()
	var out []model.Lemma
	for rows.Next() {
		lemma, err := scanLemma(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lemma: %w", err)
		}
		out = append(out, *lemma)
	}
	return out, rows.Err()
}

func (s *Store) FindLemma(ctx context.Context, siteID int64, text string) (*model.Lemma, error) {
	lemma, err := scanLemma(s.client.DB.QueryRowContext(ctx, s.q(
		"SELECT "+lemmaColumns+" FROM lemmas WHERE site_id = ? AND lemma = ?"), siteID, text))
	if err != nil {
		return nil, notFound(err)
	}
	return lemma, nil
}

func (s *Store) FindLemmasBySite(ctx context.Context, siteID int64) ([]model.Lemma, error) {
	return s.queryLemmas(ctx, "SELECT "+lemmaColumns+" FROM lemmas WHERE site_id = ? ORDER BY id", siteID)
}

func (s *Store) FindLemmasByText(ctx context.Context, texts []string, siteID int64) ([]model.Lemma, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(texts)+1)
	for _, t := range texts {
		args = append(args, t)
	}
	query := "SELECT " + lemmaColumns + " FROM lemmas WHERE lemma IN (" + placeholders(len(texts)) + ")"
	if siteID != 0 {
		query += " AND site_id = ?"
		args = append(args, siteID)
	}
	return s.queryLemmas(ctx, query+" ORDER BY id", args...)
}

func (s *Store) CountLemmasBySite(ctx context.Context, siteID int64) (int, error) {
	var n int
	err := s.client.DB.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM lemmas WHERE site_id = ?"), siteID).Scan(&n)
	return n, err
}

func (s *Store) AnyLemmas(ctx context.Context) (bool, error) {
	var exists bool
	err := s.client.DB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM lemmas)").Scan(&exists)
	return exists, err
}

func (s *Store) SaveLemma(ctx context.Context, lemma *model.Lemma) error {
	if lemma.ID == 0 {
		err := s.client.DB.QueryRowContext(ctx, s.q(
			`INSERT INTO lemmas (site_id, lemma, frequency) VALUES (?, ?, ?)
			 ON CONFLICT (site_id, lemma) DO UPDATE SET frequency = excluded.frequency
			 RETURNING id`),
			lemma.SiteID, lemma.Text, lemma.Frequency,
		).Scan(&lemma.ID)
		if err != nil {
			return fmt.Errorf("inserting lemma %q: %w", lemma.Text, err)
		}
		return nil
	}
	_, err := s.client.DB.ExecContext(ctx, s.q("UPDATE lemmas SET frequency = ? WHERE id = ?"), lemma.Frequency, lemma.ID)
	if err != nil {
		return fmt.Errorf("updating lemma %d: %w", lemma.ID, err)
	}
	return nil
}

func (s *Store) DeleteLemma(ctx context.Context, id int64) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM postings WHERE lemma_id = ?"), id); err != nil {
			return fmt.Errorf("deleting postings of lemma %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM lemmas WHERE id = ?"), id); err != nil {
			return fmt.Errorf("deleting lemma %d: %w", id, err)
		}
		return nil
	})
}

// Postings

const upsertPosting = `INSERT INTO postings (page_id, lemma_id, rank) VALUES (?, ?, ?)
	ON CONFLICT (page_id, lemma_id) DO UPDATE SET rank = excluded.rank
	RETURNING id`

func (s *Store) FindPostingsByLemma(ctx context.Context, lemmaID, siteID int64) ([]model.Posting, error) {
	rows, err := s.client.DB.QueryContext(ctx, s.q(
		`SELECT p.id, p.page_id, p.lemma_id, p.rank
		 FROM postings p JOIN lemmas l ON l.id = p.lemma_id
		 WHERE p.lemma_id = ? AND l.site_id = ?
		 ORDER BY p.page_id`), lemmaID, siteID)
	if err != nil {
		return nil, fmt.Errorf("querying postings of lemma %d: %w", lemmaID, err)
	}
	defer rows.Close()
	var out []model.Posting
	for rows.Next() {
		var p model.Posting
		if err := rows.Scan(&p.ID, &p.PageID, &p.LemmaID, &p.Rank); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountPagesByLemma(ctx context.Context, lemmaID, siteID int64) (int, error) {
	var n int
	err := s.client.DB.QueryRowContext(ctx, s.q(
		`SELECT COUNT(DISTINCT p.page_id)
		 FROM postings p JOIN lemmas l ON l.id = p.lemma_id
		 WHERE p.lemma_id = ? AND l.site_id = ?`), lemmaID, siteID).Scan(&n)
	return n, err
}

func (s *Store) SavePosting(ctx context.Context, posting *model.Posting) error {
	err := s.client.DB.QueryRowContext(ctx, s.q(upsertPosting), posting.PageID, posting.LemmaID, posting.Rank).Scan(&posting.ID)
	if err != nil {
		return fmt.Errorf("saving posting page=%d lemma=%d: %w", posting.PageID, posting.LemmaID, err)
	}
	return nil
}

func (s *Store) SavePostings(ctx context.Context, postings []model.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.q(upsertPosting))
		if err != nil {
			return fmt.Errorf("preparing posting upsert: %w", err)
		}
		defer stmt.Close()
		for i := range postings {
			p := &postings[i]
			if err := stmt.QueryRowContext(ctx, p.PageID, p.LemmaID, p.Rank).Scan(&p.ID); err != nil {
				return fmt.Errorf("saving posting page=%d lemma=%d: %w", p.PageID, p.LemmaID, err)
			}
		}
		return nil
	})
}

func (s *Store) DeletePosting(ctx context.Context, id int64) error {
	if _, err := s.client.DB.ExecContext(ctx, s.q("DELETE FROM postings WHERE id = ?"), id); err != nil {
		return fmt.Errorf("deleting posting %d: %w", id, err)
	}
	return nil
}
