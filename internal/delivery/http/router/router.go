package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tomichandesu/research-tool-sub000/internal/delivery/http/handler"
	"github.com/tomichandesu/research-tool-sub000/internal/delivery/http/middleware"
	"github.com/tomichandesu/research-tool-sub000/pkg/metrics"
)

const requestTimeout = 30 * time.Second

// New builds the operations API. gatherer backs /metrics; nil serves the
// default registry.
func New(h *handler.Handler, gatherer prometheus.Gatherer, l *zap.Logger, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(l))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(m))

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Get("/health", h.HandleHealthCheck)
		r.Get("/status", h.HandleGetStatus)
		r.Post("/batch", h.HandleSubmitBatch)
		r.Get("/keywords/top", h.HandleTopKeywords)
	})

	return r
}
