package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medssi/internal/exchange/handler"
	"medssi/internal/platform/health"
	"medssi/pkg/platform/middleware/request"
	"medssi/pkg/platform/middleware/requesttime"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

type routerDeps struct {
	handler  *handler.Handler
	health   *health.Handler
	registry *prometheus.Registry
	metrics  *request.Metrics
	logger   *slog.Logger
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(d.logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(d.logger))
	r.Use(request.Latency(d.metrics))

	d.health.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))

	r.Route("/v2", func(r chi.Router) {
		r.Use(request.BodyLimit(maxBodyBytes))
		r.Use(request.ContentTypeJSON)
		r.Use(request.Timeout(requestTimeout))
		d.handler.Register(r)
	})
	return r
}
