package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/crossword-backend/internal/coordinator"
	"github.com/DoyleJ11/crossword-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func SetupRoutes(c *coordinator.Coordinator, gatherer prometheus.Gatherer, opts ws.Options, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/stats", Stats(c))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/move/{team}/{puzzle}/{user}", ws.Handler(c, opts, log))
	return r
}
