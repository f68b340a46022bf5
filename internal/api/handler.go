// Package api serves the admin and search HTTP endpoints. Every response
// uses the {"result": bool, "error": string} envelope; search adds count
// and data.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/internal/stats"
	apperrors "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/logger"
)

const (
	MsgNoResults     = "По запросу ничего не найдено"
	MsgPageOutside   = "Данная страница находится за пределами сайтов, указанных в конфигурационном файле"
	MsgEmptyPageURL  = "Не указан адрес страницы"
	MsgBadPaging     = "Параметры offset и limit должны быть неотрицательными целыми числами"
	MsgInternalError = "Внутренняя ошибка сервера"
)

type Crawler interface {
	Start(ctx context.Context) error
	Stop() error
}

type PageIndexer interface {
	IndexPage(ctx context.Context, url string) (bool, error)
}

type StatsProvider interface {
	Statistics(ctx context.Context) (*stats.Report, error)
}

type Handler struct {
	crawler  Crawler
	pages    PageIndexer
	stats    StatsProvider
	searcher searcher.Searcher
	logger   *slog.Logger
}

func NewHandler(c Crawler, p PageIndexer, s StatsProvider, search searcher.Searcher) *Handler {
	return &Handler{
		crawler:  c,
		pages:    p,
		stats:    s,
		searcher: search,
		logger:   logger.WithComponent("api"),
	}
}

type resultResponse struct {
	Result bool   `json:"result"`
	Error  string `json:"error,omitempty"`
}

type statisticsResponse struct {
	Result     bool          `json:"result"`
	Statistics *stats.Report `json:"statistics"`
}

type searchResponse struct {
	Result bool              `json:"result"`
	Count  int               `json:"count"`
	Data   []searcher.Result `json:"data"`
}

func (h *Handler) StartIndexing(w http.ResponseWriter, r *http.Request) {
	if err := h.crawler.Start(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("indexing started by request")
	h.writeJSON(w, http.StatusOK, resultResponse{Result: true})
}

func (h *Handler) StopIndexing(w http.ResponseWriter, r *http.Request) {
	if err := h.crawler.Stop(); err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("indexing stopped by request")
	h.writeJSON(w, http.StatusOK, resultResponse{Result: true})
}

// IndexPage re-indexes one page. The url comes from the query string or a
// form body.
func (h *Handler) IndexPage(w http.ResponseWriter, r *http.Request) {
	pageURL := strings.TrimSpace(r.FormValue("url"))
	if pageURL == "" {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, MsgEmptyPageURL))
		return
	}
	ok, err := h.pages.IndexPage(r.Context(), pageURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		h.writeError(w, r, apperrors.New(apperrors.ErrPageOutsideSites, http.StatusBadRequest, MsgPageOutside))
		return
	}
	h.writeJSON(w, http.StatusOK, resultResponse{Result: true})
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	report, err := h.stats.Statistics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statisticsResponse{Result: true, Statistics: report})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params := r.URL.Query()
	q := searcher.Query{
		Text: params.Get("query"),
		Site: params.Get("site"),
	}
	var err error
	if q.Offset, err = intParam(params.Get("offset")); err != nil {
		h.writeError(w, r, err)
		return
	}
	if q.Limit, err = intParam(params.Get("limit")); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("search completed",
		"query", q.Text,
		"site", q.Site,
		"count", resp.Count,
		"returned", len(resp.Results),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if resp.Count == 0 {
		h.writeJSON(w, http.StatusNotFound, resultResponse{Error: MsgNoResults})
		return
	}
	h.writeJSON(w, http.StatusOK, searchResponse{Result: true, Count: resp.Count, Data: resp.Results})
}

// intParam parses an optional non-negative integer; empty means zero so the
// engine applies its defaults.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, MsgBadPaging)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps application errors to their status and message. Anything
// else is logged and reported as a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !apperrors.As(err, &appErr) || appErr.StatusCode >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		h.writeJSON(w, http.StatusInternalServerError, resultResponse{Error: MsgInternalError})
		return
	}
	h.writeJSON(w, appErr.StatusCode, resultResponse{Error: appErr.Message})
}
