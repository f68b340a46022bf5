package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/middleware"
)

// NewRouter mounts the API, the health probes and, when the metrics server
// is disabled, /metrics on the main port.
func NewRouter(h *Handler, checker *health.Checker, cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Metrics(metrics.Default),
		middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins)),
	)
	timeout := middleware.Timeout(cfg.Server.RequestTimeout)

	r.With(timeout).Get("/health", checker.LiveHandler())
	r.With(timeout).Get("/ready", checker.ReadyHandler())
	if !cfg.Metrics.Enabled {
		r.With(timeout).Handle("/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.With(timeout).Get("/startIndexing", h.StartIndexing)
		r.With(middleware.Timeout(stopRequestTimeout(cfg))).Get("/stopIndexing", h.StopIndexing)
		r.With(timeout).Post("/indexPage", h.IndexPage)
		r.With(timeout).Get("/statistics", h.Statistics)
		r.With(timeout, middleware.RateLimit(searchLimiter(cfg.Server))).Get("/search", h.Search)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		h.writeJSON(w, http.StatusNotFound, resultResponse{Error: "Метод не найден"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		h.writeJSON(w, http.StatusMethodNotAllowed, resultResponse{Error: "Метод не поддерживается"})
	})
	return r
}

func searchLimiter(cfg config.ServerConfig) *middleware.ClientLimiter {
	if cfg.SearchRatePerSecond <= 0 {
		return nil
	}
	return middleware.NewClientLimiter(cfg.SearchRatePerSecond, cfg.SearchBurst)
}

// stopStatusGrace covers the FAILED status writes that follow the wait for
// workers in a stop.
const stopStatusGrace = 15 * time.Second

// stopRequestTimeout lets /api/stopIndexing outlast the crawler's own stop
// timeout so a slow stop still answers with its real result.
func stopRequestTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.RequestTimeout <= 0 {
		return 0
	}
	return max(cfg.Server.RequestTimeout, cfg.Crawler.StopTimeout+stopStatusGrace)
}
